package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DailyPaymentRaw is one facility-day of tender totals as entered by site
// staff. Tender columns are nullable on purpose: a day with no card activity
// stores NULL, and aggregation normalizes it to zero. Read-only to the
// reconciliation core.
type DailyPaymentRaw struct {
	ID          int       `gorm:"primary_key" json:"id"`
	FacilityId  int       `gorm:"index;not null" json:"facility_id"`
	PaymentDate time.Time `gorm:"index;not null" json:"payment_date"`

	Cash       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"cash"`
	Check      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"check"`
	Visa       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"visa"`
	Mastercard *decimal.Decimal `gorm:"type:decimal(20,4)" json:"mastercard"`
	Amex       *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amex"`
	Discover   *decimal.Decimal `gorm:"type:decimal(20,4)" json:"discover"`
	Ach        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"ach"`
	DinersClub *decimal.Decimal `gorm:"type:decimal(20,4)" json:"diners_club"`
	Debit      *decimal.Decimal `gorm:"type:decimal(20,4)" json:"debit"`

	// Source commitment flags: whether the site confirmed the cash deposit
	// was taken to the bank / the card batch was settled.
	CashDepositCommitted bool `gorm:"default:false" json:"cash_deposit_committed"`
	CardBatchCommitted   bool `gorm:"default:false" json:"card_batch_committed"`

	EnteredBy string    `gorm:"size:100;default:null" json:"entered_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p DailyPaymentRaw) GetId() int {
	return p.ID
}

// DailyPaymentTotals is the canonical aggregate of one daily payment row.
// Derived data, never persisted.
type DailyPaymentTotals struct {
	DailyPaymentId       int             `json:"daily_payment_id"`
	FacilityId           int             `json:"facility_id"`
	PaymentDate          time.Time       `json:"payment_date"`
	CashCheckTotal       decimal.Decimal `json:"cash_check_total"`
	CardTotal            decimal.Decimal `json:"card_total"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	CashDepositCommitted bool            `json:"cash_deposit_committed"`
	CardBatchCommitted   bool            `json:"card_batch_committed"`
}

// TotalFor returns the aggregate bucket a connection type reconciles against.
func (t DailyPaymentTotals) TotalFor(connectionType ConnectionType) decimal.Decimal {
	if connectionType == ConnectionTypeCash {
		return t.CashCheckTotal
	}
	return t.CardTotal
}

func nz(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

// Aggregate converts the raw per-tender row into canonical totals. Pure and
// deterministic; NULL tenders count as zero and every sum is rounded to two
// decimal places.
func (p DailyPaymentRaw) Aggregate() DailyPaymentTotals {
	cashCheck := nz(p.Cash).Add(nz(p.Check)).Round(2)
	card := nz(p.Visa).
		Add(nz(p.Mastercard)).
		Add(nz(p.Amex)).
		Add(nz(p.Discover)).
		Add(nz(p.Ach)).
		Add(nz(p.DinersClub)).
		Add(nz(p.Debit)).
		Round(2)
	return DailyPaymentTotals{
		DailyPaymentId:       p.ID,
		FacilityId:           p.FacilityId,
		PaymentDate:          p.PaymentDate,
		CashCheckTotal:       cashCheck,
		CardTotal:            card,
		TotalAmount:          cashCheck.Add(card).Round(2),
		CashDepositCommitted: p.CashDepositCommitted,
		CardBatchCommitted:   p.CardBatchCommitted,
	}
}

// UnmatchedDailyPayments lists the facility's payment rows for one month with
// no Match row yet, ordered by date then id.
func UnmatchedDailyPayments(tx *gorm.DB, ctx context.Context, facilityId int, year int, month int) ([]DailyPaymentRaw, error) {
	start, end := MonthRange(year, month)
	var payments []DailyPaymentRaw
	err := tx.WithContext(ctx).
		Where("facility_id = ? AND payment_date >= ? AND payment_date < ?", facilityId, start, end).
		Where("id NOT IN (?)", tx.Model(&Match{}).Select("daily_payment_id")).
		Order("payment_date, id").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

// SumDailyPaymentTotals aggregates every payment row of one facility/month,
// feeding the expected side of the period summary.
func SumDailyPaymentTotals(tx *gorm.DB, ctx context.Context, facilityId int, year int, month int) (cashCheck decimal.Decimal, card decimal.Decimal, err error) {
	start, end := MonthRange(year, month)
	var payments []DailyPaymentRaw
	if err = tx.WithContext(ctx).
		Where("facility_id = ? AND payment_date >= ? AND payment_date < ?", facilityId, start, end).
		Find(&payments).Error; err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	cashCheck, card = decimal.Zero, decimal.Zero
	for _, p := range payments {
		totals := p.Aggregate()
		cashCheck = cashCheck.Add(totals.CashCheckTotal)
		card = card.Add(totals.CardTotal)
	}
	return cashCheck.Round(2), card.Round(2), nil
}
