package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationPeriod is the per-facility-per-bank-account-per-month unit of
// work. Counters are derived data recomputed after every match/discrepancy
// write and can always be rebuilt (see cmd/period-recompute); status moves
// only by explicit operator action.
type ReconciliationPeriod struct {
	ID            int                  `gorm:"primary_key" json:"id"`
	FacilityId    int                  `gorm:"not null;uniqueIndex:idx_period_unit,priority:1" json:"facility_id"`
	BankAccountId int                  `gorm:"not null;uniqueIndex:idx_period_unit,priority:2" json:"bank_account_id"`
	Year          int                  `gorm:"not null;uniqueIndex:idx_period_unit,priority:3" json:"year"`
	Month         int                  `gorm:"not null;uniqueIndex:idx_period_unit,priority:4" json:"month"`
	Status        ReconciliationStatus `gorm:"size:32;not null;default:in_progress" json:"status"`

	MatchedTransactionCount   int             `gorm:"default:0" json:"matched_transaction_count"`
	UnmatchedTransactionCount int             `gorm:"default:0" json:"unmatched_transaction_count"`
	DiscrepancyCount          int             `gorm:"default:0" json:"discrepancy_count"`
	DiscrepancyTotal          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"discrepancy_total"`
	ExpectedCashTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"expected_cash_total"`
	ExpectedCardTotal         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"expected_card_total"`
	ActualCashTotal           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"actual_cash_total"`
	ActualCardTotal           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"actual_card_total"`

	CreatedBy  string     `gorm:"size:100;default:null" json:"created_by"`
	ReviewedBy *string    `gorm:"size:100" json:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p ReconciliationPeriod) GetId() int {
	return p.ID
}

func GetReconciliationPeriod(ctx context.Context, facilityId int, id int) (*ReconciliationPeriod, error) {
	return utils.FetchModel[ReconciliationPeriod](ctx, facilityId, id)
}

// RecomputePeriodSummary rebuilds the denormalized counters for one work
// unit inside the caller's transaction, creating the period row on first
// write.
func RecomputePeriodSummary(tx *gorm.DB, ctx context.Context, facilityId int, bankAccountId int, year int, month int) (*ReconciliationPeriod, error) {
	total, matched, err := CountBankTransactions(tx, ctx, bankAccountId, year, month)
	if err != nil {
		return nil, err
	}
	discrepancyCount, discrepancyTotal, err := CountDiscrepancies(tx, ctx, facilityId, year, month)
	if err != nil {
		return nil, err
	}
	expectedCash, expectedCard, err := SumDailyPaymentTotals(tx, ctx, facilityId, year, month)
	if err != nil {
		return nil, err
	}
	actualCash, actualCard, err := SumMatchedAmounts(tx, ctx, bankAccountId, year, month)
	if err != nil {
		return nil, err
	}

	var period ReconciliationPeriod
	err = tx.WithContext(ctx).
		Where("facility_id = ? AND bank_account_id = ? AND year = ? AND month = ?", facilityId, bankAccountId, year, month).
		First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		createdBy, _ := utils.GetUserNameFromContext(ctx)
		period = ReconciliationPeriod{
			FacilityId:    facilityId,
			BankAccountId: bankAccountId,
			Year:          year,
			Month:         month,
			Status:        ReconciliationStatusInProgress,
			CreatedBy:     createdBy,
		}
		if err := tx.WithContext(ctx).Create(&period).Error; err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"MatchedTransactionCount":   int(matched),
		"UnmatchedTransactionCount": int(total - matched),
		"DiscrepancyCount":          int(discrepancyCount),
		"DiscrepancyTotal":          discrepancyTotal,
		"ExpectedCashTotal":         expectedCash,
		"ExpectedCardTotal":         expectedCard,
		"ActualCashTotal":           actualCash,
		"ActualCardTotal":           actualCard,
	}
	if err := tx.WithContext(ctx).Model(&period).Updates(updates).Error; err != nil {
		return nil, err
	}
	return &period, nil
}

// SetPeriodStatus applies an operator-driven status transition. Completing a
// period also resolves its approved discrepancies in the same transaction.
func SetPeriodStatus(ctx context.Context, facilityId int, periodId int, next ReconciliationStatus) (*ReconciliationPeriod, error) {
	period, err := GetReconciliationPeriod(ctx, facilityId, periodId)
	if err != nil {
		return nil, err
	}
	if !period.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("period %d is %s and cannot become %s", periodId, period.Status, next)
	}

	reviewedBy, _ := utils.GetUserNameFromContext(ctx)
	now := time.Now().UTC()

	db := config.GetDB()
	tx := db.Begin()
	updates := map[string]interface{}{"Status": next}
	if next == ReconciliationStatusCompleted || next == ReconciliationStatusRejected {
		updates["ReviewedBy"] = reviewedBy
		updates["ReviewedAt"] = now
	}
	if err := tx.WithContext(ctx).Model(period).Updates(updates).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if next == ReconciliationStatusCompleted {
		if _, err := ResolveApprovedDiscrepancies(tx, ctx, facilityId, period.Year, period.Month, reviewedBy); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	period.Status = next
	return period, nil
}
