package workflow

import (
	"context"
	"errors"
	"fmt"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// amount drift warning grades, in percent of the transaction amount
const (
	smallDriftPct    = 1.0
	moderateDriftPct = 5.0

	moderateDateDriftDays = 3
	largeDateDriftDays    = 7
)

type ManualMatchRequest struct {
	BankTransactionId int                   `json:"bank_transaction_id" binding:"required"`
	DailyPaymentId    int                   `json:"daily_payment_id" binding:"required"`
	ConnectionType    models.ConnectionType `json:"connection_type" binding:"required"`
	Amount            decimal.Decimal       `json:"amount"`
	MatchedBy         string                `json:"matched_by"`
}

// MatchValidationResult reports hard errors (blocking) and advisory warnings
// (never blocking) for a proposed pairing, plus the correction the UI should
// offer.
type MatchValidationResult struct {
	IsValid                 bool                  `json:"is_valid"`
	Errors                  []string              `json:"errors"`
	Warnings                []string              `json:"warnings"`
	SuggestedAmount         decimal.Decimal       `json:"suggested_amount"`
	SuggestedConnectionType models.ConnectionType `json:"suggested_connection_type"`
}

// recordedMatchAmount is what gets persisted on the Match row: the amount the
// operator asked to record when one was given, the full transaction amount
// otherwise.
func recordedMatchAmount(requestedAmount, transactionAmount decimal.Decimal) decimal.Decimal {
	if requestedAmount.IsPositive() {
		return requestedAmount
	}
	return transactionAmount
}

// evaluatePairing grades one transaction against one aggregated payment.
// requestedAmount is the amount the operator wants recorded; zero means the
// full transaction amount. Pure; all DB access happens in the wrappers.
func evaluatePairing(txn models.BankTransaction, totals models.DailyPaymentTotals, connectionType models.ConnectionType, requestedAmount decimal.Decimal) MatchValidationResult {
	result := MatchValidationResult{
		IsValid:                 true,
		Errors:                  []string{},
		Warnings:                []string{},
		SuggestedConnectionType: connectionType,
	}

	if !txn.Amount.IsPositive() {
		result.IsValid = false
		result.Errors = append(result.Errors, "bank transaction amount must be positive")
		return result
	}
	if requestedAmount.IsNegative() {
		result.IsValid = false
		result.Errors = append(result.Errors, "requested amount must not be negative")
		return result
	}

	matchAmount := recordedMatchAmount(requestedAmount, txn.Amount)
	if !matchAmount.Equal(txn.Amount) {
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"requested amount %s differs from the bank transaction amount %s",
			matchAmount.StringFixed(2), txn.Amount.StringFixed(2)))
	}

	expected := totals.TotalFor(connectionType)
	alternative := totals.TotalFor(connectionType.Alternate())
	result.SuggestedAmount = expected

	// Suggest the swap when the other bucket is a strictly closer match.
	expectedDiff := matchAmount.Sub(expected).Abs()
	alternativeDiff := matchAmount.Sub(alternative).Abs()
	if alternative.IsPositive() && alternativeDiff.LessThan(expectedDiff) {
		result.SuggestedConnectionType = connectionType.Alternate()
		result.SuggestedAmount = alternative
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"the %s total %s is a closer match than the %s total %s",
			connectionType.Alternate(), alternative.StringFixed(2), connectionType, expected.StringFixed(2)))
	}

	driftPct := expectedDiff.Div(matchAmount).Mul(decimal.NewFromInt(100)).InexactFloat64()
	switch {
	case expectedDiff.IsZero():
		// no drift, no warning
	case driftPct <= smallDriftPct:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"small amount difference of %s (%.2f%%)", expectedDiff.StringFixed(2), driftPct))
	case driftPct <= moderateDriftPct:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"moderate amount difference of %s (%.2f%%)", expectedDiff.StringFixed(2), driftPct))
	default:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"large amount difference of %s (%.2f%%)", expectedDiff.StringFixed(2), driftPct))
	}

	dateDiff := dayDistance(txn.TransactionDate, totals.PaymentDate)
	switch {
	case dateDiff > largeDateDriftDays:
		result.Warnings = append(result.Warnings, fmt.Sprintf("large date difference of %d days", dateDiff))
	case dateDiff > moderateDateDriftDays:
		result.Warnings = append(result.Warnings, fmt.Sprintf("moderate date difference of %d days", dateDiff))
	}

	return result
}

// ValidateManualMatch checks an operator-proposed pairing. Hard errors
// (missing or already-matched rows, cross-facility pairing) make the result
// invalid; amount/date drift only warns. Persistence failures other than
// not-found propagate as errors, never as a not-found verdict.
func ValidateManualMatch(ctx context.Context, request ManualMatchRequest) (MatchValidationResult, error) {
	invalid := func(msg string) MatchValidationResult {
		return MatchValidationResult{IsValid: false, Errors: []string{msg}, Warnings: []string{}}
	}

	db := config.GetDB()
	txn, err := models.GetBankTransaction(ctx, request.BankTransactionId)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return invalid("bank transaction not found"), nil
	}
	if err != nil {
		return MatchValidationResult{}, err
	}
	matched, err := models.TransactionIsMatched(db, ctx, txn.ID)
	if err != nil {
		return MatchValidationResult{}, err
	}
	if matched {
		return invalid("bank transaction is already matched"), nil
	}

	var payment models.DailyPaymentRaw
	if err := db.WithContext(ctx).First(&payment, request.DailyPaymentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return invalid("daily payment not found"), nil
		}
		return MatchValidationResult{}, err
	}
	matched, err = models.PaymentIsMatched(db, ctx, payment.ID)
	if err != nil {
		return MatchValidationResult{}, err
	}
	if matched {
		return invalid("daily payment is already matched"), nil
	}

	account, err := models.GetBankAccount(ctx, txn.BankAccountId)
	if err != nil {
		return MatchValidationResult{}, err
	}
	if account.FacilityId != payment.FacilityId {
		return invalid(utils.ErrorFacilityMismatch.Error()), nil
	}

	return evaluatePairing(*txn, payment.Aggregate(), request.ConnectionType, request.Amount), nil
}

// CreateManualMatch re-validates and commits a manual match. The validity
// re-check inside the transaction is the authoritative one; a pairing stolen
// by a concurrent writer surfaces as ErrorConcurrencyConflict.
func CreateManualMatch(ctx context.Context, request ManualMatchRequest) (*models.Match, MatchValidationResult, error) {
	validation, err := ValidateManualMatch(ctx, request)
	if err != nil {
		return nil, validation, err
	}
	if !validation.IsValid {
		return nil, validation, utils.ErrorValidationFailed
	}

	txn, err := models.GetBankTransaction(ctx, request.BankTransactionId)
	if err != nil {
		return nil, validation, err
	}
	account, err := models.GetBankAccount(ctx, txn.BankAccountId)
	if err != nil {
		return nil, validation, err
	}

	db := config.GetDB()
	var payment models.DailyPaymentRaw
	if err := db.WithContext(ctx).First(&payment, request.DailyPaymentId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validation, utils.ErrorRecordNotFound
		}
		return nil, validation, err
	}
	expected := payment.Aggregate().TotalFor(request.ConnectionType)
	matchAmount := recordedMatchAmount(request.Amount, txn.Amount)

	year, month := txn.TransactionDate.Year(), int(txn.TransactionDate.Month())
	correlationId := correlationIdFromContextOrNew(ctx)

	var match models.Match
	err = WithMatchLock(ctx, db, account.ID, year, month, func(tx *gorm.DB) error {
		if err := models.EnsureUnmatched(tx, ctx, txn.ID, payment.ID); err != nil {
			return err
		}

		match = models.NewMatchRow(
			txn.ID,
			payment.ID,
			request.ConnectionType,
			matchAmount,
			txn.Amount.Sub(expected),
			models.ManualMatch{},
			request.MatchedBy,
			correlationId,
		)
		if err := tx.WithContext(ctx).Create(&match).Error; err != nil {
			return err
		}
		_, err := models.RecomputePeriodSummary(tx, ctx, account.FacilityId, account.ID, year, month)
		return err
	})
	if err != nil {
		return nil, validation, err
	}

	config.GetLogger().WithFields(logrus.Fields{
		"matchId":           match.ID,
		"bankTransactionId": txn.ID,
		"dailyPaymentId":    payment.ID,
		"connectionType":    request.ConnectionType,
		"amount":            matchAmount.StringFixed(2),
		"matchedBy":         request.MatchedBy,
		"correlationId":     correlationId,
	}).Info("manual match created")
	return &match, validation, nil
}
