package models_test

import (
	"testing"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. Aggregation is the foundation
// every matcher reads from, so its normalization rules are pinned here:
// - NULL tenders count as zero
// - cashCheck + card always equals the total
// - every derived figure is rounded to two decimal places

func d(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func TestAggregateNullTendersCountAsZero(t *testing.T) {
	raw := models.DailyPaymentRaw{
		ID:          1,
		FacilityId:  7,
		PaymentDate: time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC),
		Cash:        d("150.25"),
		// every other tender left NULL
	}
	totals := raw.Aggregate()

	if !totals.CashCheckTotal.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("cashCheck total: got %s want 150.25", totals.CashCheckTotal)
	}
	if !totals.CardTotal.IsZero() {
		t.Fatalf("card total should be zero when all card tenders are NULL, got %s", totals.CardTotal)
	}
	if !totals.TotalAmount.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("total: got %s want 150.25", totals.TotalAmount)
	}
}

func TestAggregateBucketsSumToTotal(t *testing.T) {
	raw := models.DailyPaymentRaw{
		ID:          2,
		FacilityId:  7,
		PaymentDate: time.Date(2026, time.March, 11, 0, 0, 0, 0, time.UTC),
		Cash:        d("120.50"),
		Check:       d("85.25"),
		Visa:        d("310.10"),
		Mastercard:  d("44.90"),
		Amex:        d("12.00"),
		Discover:    d("5.55"),
		Ach:         d("200.00"),
		DinersClub:  d("1.45"),
		Debit:       d("60.25"),
	}
	totals := raw.Aggregate()

	if !totals.CashCheckTotal.Equal(decimal.RequireFromString("205.75")) {
		t.Fatalf("cashCheck total: got %s want 205.75", totals.CashCheckTotal)
	}
	if !totals.CardTotal.Equal(decimal.RequireFromString("634.25")) {
		t.Fatalf("card total: got %s want 634.25", totals.CardTotal)
	}
	if !totals.CashCheckTotal.Add(totals.CardTotal).Equal(totals.TotalAmount) {
		t.Fatalf("cashCheck %s + card %s != total %s", totals.CashCheckTotal, totals.CardTotal, totals.TotalAmount)
	}
}

func TestAggregateRoundsToTwoDecimalPlaces(t *testing.T) {
	raw := models.DailyPaymentRaw{
		ID:          3,
		FacilityId:  7,
		PaymentDate: time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC),
		Cash:        d("10.005"),
		Visa:        d("20.004"),
	}
	totals := raw.Aggregate()

	if totals.CashCheckTotal.Exponent() < -2 || totals.CardTotal.Exponent() < -2 || totals.TotalAmount.Exponent() < -2 {
		t.Fatalf("aggregates must be rounded to 2dp: cashCheck=%s card=%s total=%s",
			totals.CashCheckTotal, totals.CardTotal, totals.TotalAmount)
	}
	if !totals.CashCheckTotal.Equal(decimal.RequireFromString("10.01")) {
		t.Fatalf("cashCheck rounding: got %s want 10.01", totals.CashCheckTotal)
	}
	if !totals.CardTotal.Equal(decimal.RequireFromString("20.00")) {
		t.Fatalf("card rounding: got %s want 20.00", totals.CardTotal)
	}
}

func TestTotalForSelectsBucketByConnectionType(t *testing.T) {
	raw := models.DailyPaymentRaw{
		ID:          4,
		FacilityId:  7,
		PaymentDate: time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC),
		Cash:        d("100.00"),
		Visa:        d("250.00"),
	}
	totals := raw.Aggregate()

	if !totals.TotalFor(models.ConnectionTypeCash).Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("cash bucket: got %s", totals.TotalFor(models.ConnectionTypeCash))
	}
	if !totals.TotalFor(models.ConnectionTypeCreditCard).Equal(decimal.RequireFromString("250.00")) {
		t.Fatalf("card bucket: got %s", totals.TotalFor(models.ConnectionTypeCreditCard))
	}
}

func TestAggregateCarriesCommitmentFlags(t *testing.T) {
	raw := models.DailyPaymentRaw{
		ID:                   5,
		FacilityId:           7,
		PaymentDate:          time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC),
		Cash:                 d("75.00"),
		CashDepositCommitted: true,
	}
	totals := raw.Aggregate()
	if !totals.CashDepositCommitted || totals.CardBatchCommitted {
		t.Fatalf("commitment flags not carried: cash=%v card=%v",
			totals.CashDepositCommitted, totals.CardBatchCommitted)
	}
}
