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

// A multi-day combination above this absolute difference is flagged
// critical. Partial matches use the facility-configured threshold instead.
var multiDayCriticalThreshold = decimal.NewFromInt(50)

type PartialMatchRequest struct {
	BankTransactionId int                   `json:"bank_transaction_id" binding:"required"`
	DailyPaymentIds   []int                 `json:"daily_payment_ids" binding:"required"`
	ConnectionType    models.ConnectionType `json:"connection_type" binding:"required"`
	Reason            string                `json:"reason"`
	MatchedBy         string                `json:"matched_by"`
}

type MultiDayMatchRequest struct {
	BankTransactionId int                   `json:"bank_transaction_id" binding:"required"`
	DailyPaymentIds   []int                 `json:"daily_payment_ids" binding:"required"`
	ConnectionType    models.ConnectionType `json:"connection_type" binding:"required"`
	Description       string                `json:"description"`
	MatchedBy         string                `json:"matched_by"`
}

type SplitMatchResult struct {
	MatchIds      []int `json:"match_ids"`
	DiscrepancyId int   `json:"discrepancy_id"`
}

// splitContext is everything the two split writers need after loading and
// cross-checking both sides of the pairing.
type splitContext struct {
	txn            *models.BankTransaction
	account        *models.BankAccount
	facility       *models.Facility
	connectionType models.ConnectionType
	totals         []models.DailyPaymentTotals
	inputs         []allocationInput
	year           int
	month          int
}

func loadSplitContext(ctx context.Context, bankTransactionId int, dailyPaymentIds []int, connectionType models.ConnectionType) (*splitContext, error) {
	if len(dailyPaymentIds) == 0 {
		return nil, errors.New("at least one daily payment is required")
	}
	seen := make(map[int]bool, len(dailyPaymentIds))
	for _, id := range dailyPaymentIds {
		if seen[id] {
			return nil, fmt.Errorf("daily payment %d appears more than once", id)
		}
		seen[id] = true
	}
	txn, err := models.GetBankTransaction(ctx, bankTransactionId)
	if err != nil {
		return nil, err
	}
	if !txn.Amount.IsPositive() {
		return nil, errors.New("bank transaction amount must be positive")
	}
	account, err := models.GetBankAccount(ctx, txn.BankAccountId)
	if err != nil {
		return nil, err
	}
	facility, err := models.GetFacility(ctx, account.FacilityId)
	if err != nil {
		return nil, err
	}

	db := config.GetDB()
	sc := &splitContext{
		txn:            txn,
		account:        account,
		facility:       facility,
		connectionType: connectionType,
		year:           txn.TransactionDate.Year(),
		month:          int(txn.TransactionDate.Month()),
	}
	for _, id := range dailyPaymentIds {
		var payment models.DailyPaymentRaw
		if err := db.WithContext(ctx).First(&payment, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.ErrorRecordNotFound
			}
			return nil, err
		}
		if payment.FacilityId != account.FacilityId {
			return nil, utils.ErrorFacilityMismatch
		}
		totals := payment.Aggregate()
		sc.totals = append(sc.totals, totals)
		sc.inputs = append(sc.inputs, allocationInput{
			DailyPaymentId: payment.ID,
			Expected:       totals.TotalFor(connectionType),
		})
	}
	return sc, nil
}

func (sc *splitContext) totalExpected() decimal.Decimal {
	sum := decimal.Zero
	for _, in := range sc.inputs {
		sum = sum.Add(in.Expected)
	}
	return sum
}

// CreatePartialMatch explains one transaction by part of several payments'
// totals, e.g. after a data-entry error. Writes N partial match rows plus one
// error discrepancy for the unexplained remainder, all atomically.
func CreatePartialMatch(ctx context.Context, request PartialMatchRequest) (*SplitMatchResult, error) {
	sc, err := loadSplitContext(ctx, request.BankTransactionId, request.DailyPaymentIds, request.ConnectionType)
	if err != nil {
		return nil, err
	}

	difference := sc.txn.Amount.Sub(sc.totalExpected())
	slices, err := allocateProportionally(sc.txn.Amount, difference, sc.inputs)
	if err != nil {
		return nil, err
	}

	correlationId := correlationIdFromContextOrNew(ctx)
	discrepancy := models.Discrepancy{
		FacilityId:        sc.facility.ID,
		Type:              models.DiscrepancyTypeError,
		Description:       request.Reason,
		Amount:            difference,
		Status:            models.DiscrepancyStatusPendingApproval,
		IsCritical:        difference.Abs().GreaterThan(sc.facility.CriticalDiscrepancyThreshold),
		BankTransactionId: sc.txn.ID,
		CreatedBy:         request.MatchedBy,
		CorrelationId:     correlationId,
	}
	if len(request.DailyPaymentIds) == 1 {
		discrepancy.DailyPaymentId = request.DailyPaymentIds[0]
	}

	result, err := sc.commit(ctx, slices, models.PartialMatch{}, &discrepancy, nil, request.MatchedBy, correlationId)
	if err != nil {
		return nil, err
	}
	logSplitMatch("partial match created", sc, result, correlationId)
	return result, nil
}

// CreateMultiDayMatch explains a single deposit that batches several days of
// facility activity (weekend deposits, typically). Writes one manual match
// row per day, one multi-day discrepancy, and one link row per day,
// atomically.
func CreateMultiDayMatch(ctx context.Context, request MultiDayMatchRequest) (*SplitMatchResult, error) {
	sc, err := loadSplitContext(ctx, request.BankTransactionId, request.DailyPaymentIds, request.ConnectionType)
	if err != nil {
		return nil, err
	}

	difference := sc.txn.Amount.Sub(sc.totalExpected())
	slices, err := allocateProportionally(sc.txn.Amount, difference, sc.inputs)
	if err != nil {
		return nil, err
	}

	correlationId := correlationIdFromContextOrNew(ctx)
	discrepancy := models.Discrepancy{
		FacilityId:        sc.facility.ID,
		Type:              models.DiscrepancyTypeMultiDayCombination,
		Description:       request.Description,
		Amount:            difference,
		Status:            models.DiscrepancyStatusPendingApproval,
		IsCritical:        difference.Abs().GreaterThan(multiDayCriticalThreshold),
		BankTransactionId: sc.txn.ID,
		CreatedBy:         request.MatchedBy,
		CorrelationId:     correlationId,
	}

	links := make([]models.MultiDayDiscrepancyLink, len(slices))
	for i, slice := range slices {
		links[i] = models.MultiDayDiscrepancyLink{
			DailyPaymentId: slice.DailyPaymentId,
			Notes: fmt.Sprintf("%s: expected %s, allocated %s",
				sc.totals[i].PaymentDate.Format("2006-01-02"),
				slice.Expected.StringFixed(2),
				slice.Amount.StringFixed(2)),
		}
	}

	result, err := sc.commit(ctx, slices, models.ManualMatch{MultiDay: true}, &discrepancy, links, request.MatchedBy, correlationId)
	if err != nil {
		return nil, err
	}
	logSplitMatch("multi-day match created", sc, result, correlationId)
	return result, nil
}

// commit writes the match rows, the discrepancy, and any link rows in one
// transaction. Partial writes are a correctness violation; every failure
// path rolls all of it back.
func (sc *splitContext) commit(ctx context.Context, slices []AllocationSlice, variant models.MatchVariant,
	discrepancy *models.Discrepancy, links []models.MultiDayDiscrepancyLink,
	matchedBy string, correlationId string) (*SplitMatchResult, error) {

	db := config.GetDB()
	result := &SplitMatchResult{}
	err := WithMatchLock(ctx, db, sc.account.ID, sc.year, sc.month, func(tx *gorm.DB) error {
		paymentIds := make([]int, len(slices))
		for i, slice := range slices {
			paymentIds[i] = slice.DailyPaymentId
		}
		if err := models.EnsureUnmatched(tx, ctx, sc.txn.ID, paymentIds...); err != nil {
			return err
		}

		for _, slice := range slices {
			match := models.NewMatchRow(sc.txn.ID, slice.DailyPaymentId, sc.connectionType, slice.Amount, slice.Difference, variant, matchedBy, correlationId)
			if err := tx.WithContext(ctx).Create(&match).Error; err != nil {
				return err
			}
			result.MatchIds = append(result.MatchIds, match.ID)
		}

		if err := tx.WithContext(ctx).Create(discrepancy).Error; err != nil {
			return err
		}
		result.DiscrepancyId = discrepancy.ID

		for i := range links {
			links[i].DiscrepancyId = discrepancy.ID
			if err := tx.WithContext(ctx).Create(&links[i]).Error; err != nil {
				return err
			}
		}

		_, err := models.RecomputePeriodSummary(tx, ctx, sc.facility.ID, sc.account.ID, sc.year, sc.month)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func logSplitMatch(msg string, sc *splitContext, result *SplitMatchResult, correlationId string) {
	config.GetLogger().WithFields(logrus.Fields{
		"bankTransactionId": sc.txn.ID,
		"matchIds":          result.MatchIds,
		"discrepancyId":     result.DiscrepancyId,
		"correlationId":     correlationId,
	}).Info(msg)
}
