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

// Discrepancy is a recorded, approvable explanation for money that does not
// reconcile exactly. Rows are never deleted, only status-updated.
type Discrepancy struct {
	ID                int               `gorm:"primary_key" json:"id"`
	FacilityId        int               `gorm:"index;not null" json:"facility_id"`
	Type              DiscrepancyType   `gorm:"size:32;not null" json:"type"`
	Description       string            `gorm:"type:text;default:null" json:"description"`
	Amount            decimal.Decimal   `gorm:"type:decimal(20,4);default:0" json:"amount"` // signed
	Status            DiscrepancyStatus `gorm:"size:32;not null;index;default:pending_approval" json:"status"`
	IsCritical        bool              `gorm:"default:false;index" json:"is_critical"`
	BankTransactionId int               `gorm:"index;not null" json:"bank_transaction_id"`
	DailyPaymentId    int               `gorm:"index" json:"daily_payment_id"` // zero for multi-day; see Links
	Links             []MultiDayDiscrepancyLink `gorm:"foreignKey:DiscrepancyId" json:"links"`
	CreatedBy         string            `gorm:"size:100;default:null" json:"created_by"`
	ReviewedBy        *string           `gorm:"size:100" json:"reviewed_by"`
	ReviewNote        string            `gorm:"type:text;default:null" json:"review_note"`
	CorrelationId     string            `gorm:"size:64;index" json:"correlation_id"`
	ResolvedAt        *time.Time        `json:"resolved_at"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (d Discrepancy) GetId() int {
	return d.ID
}

// MultiDayDiscrepancyLink ties one multi-day discrepancy to one of the daily
// payment rows it combines.
type MultiDayDiscrepancyLink struct {
	ID             int       `gorm:"primary_key" json:"id"`
	DiscrepancyId  int       `gorm:"index;not null" json:"discrepancy_id"`
	DailyPaymentId int       `gorm:"index;not null" json:"daily_payment_id"`
	Notes          string    `gorm:"type:text;default:null" json:"notes"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func GetDiscrepancy(ctx context.Context, facilityId int, id int) (*Discrepancy, error) {
	return utils.FetchModel[Discrepancy](ctx, facilityId, id, "Links")
}

// reviewTransition applies approve/reject with the state-machine rules:
// repeating the same terminal decision is a no-op with a warning, anything
// else out of pending is a hard error.
func reviewTransition(ctx context.Context, facilityId int, id int, next DiscrepancyStatus, note string, reviewedBy string) (*Discrepancy, string, error) {
	discrepancy, err := GetDiscrepancy(ctx, facilityId, id)
	if err != nil {
		return nil, "", err
	}

	if discrepancy.Status == next {
		return discrepancy, fmt.Sprintf("discrepancy %d is already %s", id, next), nil
	}
	if !discrepancy.Status.CanTransitionTo(next) {
		return nil, "", fmt.Errorf("discrepancy %d is %s and cannot become %s", id, discrepancy.Status, next)
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Model(discrepancy).Updates(map[string]interface{}{
		"Status":     next,
		"ReviewedBy": reviewedBy,
		"ReviewNote": note,
	}).Error
	if err != nil {
		return nil, "", err
	}
	discrepancy.Status = next
	discrepancy.ReviewedBy = &reviewedBy
	discrepancy.ReviewNote = note
	return discrepancy, "", nil
}

func ApproveDiscrepancy(ctx context.Context, id int, note string) (*Discrepancy, string, error) {
	facilityId, reviewedBy, err := reviewActor(ctx)
	if err != nil {
		return nil, "", err
	}
	return reviewTransition(ctx, facilityId, id, DiscrepancyStatusApproved, note, reviewedBy)
}

func RejectDiscrepancy(ctx context.Context, id int, note string) (*Discrepancy, string, error) {
	facilityId, reviewedBy, err := reviewActor(ctx)
	if err != nil {
		return nil, "", err
	}
	return reviewTransition(ctx, facilityId, id, DiscrepancyStatusRejected, note, reviewedBy)
}

func reviewActor(ctx context.Context) (int, string, error) {
	facilityId, ok := utils.GetFacilityIdFromContext(ctx)
	if !ok || facilityId == 0 {
		return 0, "", errors.New("facility id is required")
	}
	reviewedBy, _ := utils.GetUserNameFromContext(ctx)
	return facilityId, reviewedBy, nil
}

// DiscrepancyActionOutcome is the per-id result of a bulk approve/reject.
type DiscrepancyActionOutcome struct {
	DiscrepancyId int    `json:"discrepancy_id"`
	Status        string `json:"status"`
	Warning       string `json:"warning,omitempty"`
	Error         string `json:"error,omitempty"`
}

// bulkReview applies a transition to each id independently. Best-effort
// batch: a failure on one id never rolls back the others.
func bulkReview(ctx context.Context, ids []int, next DiscrepancyStatus, note string) []DiscrepancyActionOutcome {
	outcomes := make([]DiscrepancyActionOutcome, 0, len(ids))
	facilityId, reviewedBy, err := reviewActor(ctx)
	for _, id := range ids {
		if err != nil {
			outcomes = append(outcomes, DiscrepancyActionOutcome{DiscrepancyId: id, Status: "error", Error: err.Error()})
			continue
		}
		discrepancy, warning, terr := reviewTransition(ctx, facilityId, id, next, note, reviewedBy)
		switch {
		case terr != nil:
			outcomes = append(outcomes, DiscrepancyActionOutcome{DiscrepancyId: id, Status: "error", Error: terr.Error()})
		case warning != "":
			outcomes = append(outcomes, DiscrepancyActionOutcome{DiscrepancyId: id, Status: "skipped", Warning: warning})
		default:
			outcomes = append(outcomes, DiscrepancyActionOutcome{DiscrepancyId: id, Status: string(discrepancy.Status)})
		}
	}
	return outcomes
}

func BulkApproveDiscrepancies(ctx context.Context, ids []int, note string) []DiscrepancyActionOutcome {
	return bulkReview(ctx, ids, DiscrepancyStatusApproved, note)
}

func BulkRejectDiscrepancies(ctx context.Context, ids []int, note string) []DiscrepancyActionOutcome {
	return bulkReview(ctx, ids, DiscrepancyStatusRejected, note)
}

// ResolveApprovedDiscrepancies closes out approved discrepancies for one
// facility/month. Called when a reconciliation period completes.
func ResolveApprovedDiscrepancies(tx *gorm.DB, ctx context.Context, facilityId int, year int, month int, resolvedBy string) (int64, error) {
	start, end := MonthRange(year, month)
	now := time.Now().UTC()
	result := tx.WithContext(ctx).Model(&Discrepancy{}).
		Where("facility_id = ? AND status = ?", facilityId, DiscrepancyStatusApproved).
		Where("created_at >= ? AND created_at < ?", start, end).
		Updates(map[string]interface{}{
			"Status":     DiscrepancyStatusResolved,
			"ReviewedBy": resolvedBy,
			"ResolvedAt": now,
		})
	return result.RowsAffected, result.Error
}

// ExpirePendingDiscrepanciesForPair cancels still-pending discrepancies that
// reference an unmatched pair, either directly or through a multi-day link.
// Approved and resolved rows are never touched.
func ExpirePendingDiscrepanciesForPair(tx *gorm.DB, ctx context.Context, bankTransactionId int, dailyPaymentId int, reason string) error {
	linked := tx.Model(&MultiDayDiscrepancyLink{}).
		Select("discrepancy_id").
		Where("daily_payment_id = ?", dailyPaymentId)

	return tx.WithContext(ctx).Model(&Discrepancy{}).
		Where("status = ?", DiscrepancyStatusPendingApproval).
		Where("bank_transaction_id = ?", bankTransactionId).
		Where("daily_payment_id = ? OR id IN (?)", dailyPaymentId, linked).
		Updates(map[string]interface{}{
			"Status":     DiscrepancyStatusRejected,
			"ReviewNote": "expired on unmatch: " + reason,
		}).Error
}

type DiscrepancyFilter struct {
	Status       *DiscrepancyStatus
	FacilityId   int
	Year         int
	Month        int
	CriticalOnly bool
}

type DiscrepancySummary struct {
	Total          int                       `json:"total"`
	ByStatus       map[DiscrepancyStatus]int `json:"by_status"`
	ByType         map[DiscrepancyType]int   `json:"by_type"`
	CriticalCount  int                       `json:"critical_count"`
	NetAmount      decimal.Decimal           `json:"net_amount"`
	AbsoluteAmount decimal.Decimal           `json:"absolute_amount"`
}

// ReviewDiscrepancies lists discrepancies for the review screen plus summary
// stats over the filtered set.
func ReviewDiscrepancies(ctx context.Context, filter DiscrepancyFilter) ([]Discrepancy, DiscrepancySummary, error) {
	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("facility_id = ?", filter.FacilityId)
	if filter.Status != nil {
		dbCtx = dbCtx.Where("status = ?", *filter.Status)
	}
	if filter.Year > 0 && filter.Month > 0 {
		start, end := MonthRange(filter.Year, filter.Month)
		dbCtx = dbCtx.Where("created_at >= ? AND created_at < ?", start, end)
	}
	if filter.CriticalOnly {
		dbCtx = dbCtx.Where("is_critical = ?", true)
	}

	var discrepancies []Discrepancy
	if err := dbCtx.Preload("Links").Order("created_at DESC, id DESC").Find(&discrepancies).Error; err != nil {
		return nil, DiscrepancySummary{}, err
	}

	summary := DiscrepancySummary{
		Total:          len(discrepancies),
		ByStatus:       map[DiscrepancyStatus]int{},
		ByType:         map[DiscrepancyType]int{},
		NetAmount:      decimal.Zero,
		AbsoluteAmount: decimal.Zero,
	}
	for _, d := range discrepancies {
		summary.ByStatus[d.Status]++
		summary.ByType[d.Type]++
		if d.IsCritical {
			summary.CriticalCount++
		}
		summary.NetAmount = summary.NetAmount.Add(d.Amount)
		summary.AbsoluteAmount = summary.AbsoluteAmount.Add(d.Amount.Abs())
	}
	return discrepancies, summary, nil
}

// CountDiscrepancies feeds the period summary recompute.
func CountDiscrepancies(tx *gorm.DB, ctx context.Context, facilityId int, year int, month int) (count int64, total decimal.Decimal, err error) {
	start, end := MonthRange(year, month)
	var discrepancies []Discrepancy
	err = tx.WithContext(ctx).
		Where("facility_id = ? AND created_at >= ? AND created_at < ?", facilityId, start, end).
		Where("status <> ?", DiscrepancyStatusRejected).
		Find(&discrepancies).Error
	if err != nil {
		return 0, decimal.Zero, err
	}
	total = decimal.Zero
	for _, d := range discrepancies {
		total = total.Add(d.Amount.Abs())
	}
	return int64(len(discrepancies)), total.Round(2), nil
}
