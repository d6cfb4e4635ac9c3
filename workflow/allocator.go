package workflow

import (
	"errors"

	"github.com/shopspring/decimal"
)

// allocationInput is one daily payment's expected total for the connection
// type being matched.
type allocationInput struct {
	DailyPaymentId int
	Expected       decimal.Decimal
}

// AllocationSlice is one daily payment's proportional share of a split
// match: its share of the transaction amount and of the overall difference.
type AllocationSlice struct {
	DailyPaymentId int
	Expected       decimal.Decimal
	Amount         decimal.Decimal
	Difference     decimal.Decimal
}

// allocateProportionally splits amount and difference across payments by
// their share of the expected total. Shared by the partial and multi-day
// writers so the two can never diverge. The rounding remainder lands on the
// last slice, so slices always sum exactly to the inputs.
func allocateProportionally(amount decimal.Decimal, difference decimal.Decimal, inputs []allocationInput) ([]AllocationSlice, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no daily payments to allocate across")
	}
	expectedSum := decimal.Zero
	for _, in := range inputs {
		if in.Expected.IsNegative() {
			return nil, errors.New("expected amount cannot be negative")
		}
		expectedSum = expectedSum.Add(in.Expected)
	}
	if !expectedSum.IsPositive() {
		return nil, errors.New("expected totals sum to zero for the requested connection type")
	}

	slices := make([]AllocationSlice, len(inputs))
	allocatedAmount := decimal.Zero
	allocatedDifference := decimal.Zero
	for i, in := range inputs {
		ratio := in.Expected.Div(expectedSum)
		var sliceAmount, sliceDifference decimal.Decimal
		if i == len(inputs)-1 {
			sliceAmount = amount.Sub(allocatedAmount)
			sliceDifference = difference.Sub(allocatedDifference)
		} else {
			sliceAmount = amount.Mul(ratio).Round(2)
			sliceDifference = difference.Mul(ratio).Round(2)
		}
		allocatedAmount = allocatedAmount.Add(sliceAmount)
		allocatedDifference = allocatedDifference.Add(sliceDifference)
		slices[i] = AllocationSlice{
			DailyPaymentId: in.DailyPaymentId,
			Expected:       in.Expected,
			Amount:         sliceAmount,
			Difference:     sliceDifference,
		}
	}
	return slices, nil
}
