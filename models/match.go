package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Match links one bank transaction to one daily payment. A transaction may
// carry several Match rows (partial or multi-day splits) but the same pair
// appears at most once.
type Match struct {
	ID                int             `gorm:"primary_key" json:"id"`
	BankTransactionId int             `gorm:"not null;uniqueIndex:idx_match_pair,priority:1" json:"bank_transaction_id"`
	DailyPaymentId    int             `gorm:"not null;index;uniqueIndex:idx_match_pair,priority:2" json:"daily_payment_id"`
	ConnectionType    ConnectionType  `gorm:"size:16;not null" json:"connection_type"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	DepositDifference decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"deposit_difference"`
	MatchType         MatchType       `gorm:"size:16;not null" json:"match_type"`
	Confidence        float64         `gorm:"not null;default:0" json:"confidence"`
	MatchedBy         string          `gorm:"size:100;default:null" json:"matched_by"`
	CorrelationId     string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (m Match) GetId() int {
	return m.ID
}

// MatchVariant is the tagged union over match kinds. Each variant carries
// only the fields that kind needs; the persisted row stays one struct.
type MatchVariant interface {
	Type() MatchType
	Confidence() float64
}

// AutomaticMatch is a committed candidate from the finder.
type AutomaticMatch struct {
	Score float64
	Band  MatchBand
}

func (m AutomaticMatch) Type() MatchType     { return MatchTypeAutomatic }
func (m AutomaticMatch) Confidence() float64 { return m.Score }

// ManualMatch is an operator-confirmed pairing. Multi-day combinations are
// manual matches at reduced confidence.
type ManualMatch struct {
	MultiDay bool
}

func (m ManualMatch) Type() MatchType { return MatchTypeManual }
func (m ManualMatch) Confidence() float64 {
	if m.MultiDay {
		return 0.9
	}
	return 1.0
}

// PartialMatch is one allocation slice of a transaction explained by part of
// several payments' totals.
type PartialMatch struct{}

func (m PartialMatch) Type() MatchType     { return MatchTypePartial }
func (m PartialMatch) Confidence() float64 { return 0.8 }

// NewMatchRow builds the persisted row for a variant.
func NewMatchRow(bankTransactionId int, dailyPaymentId int, connectionType ConnectionType,
	amount decimal.Decimal, depositDifference decimal.Decimal, variant MatchVariant,
	matchedBy string, correlationId string) Match {

	return Match{
		BankTransactionId: bankTransactionId,
		DailyPaymentId:    dailyPaymentId,
		ConnectionType:    connectionType,
		Amount:            amount,
		DepositDifference: depositDifference,
		MatchType:         variant.Type(),
		Confidence:        variant.Confidence(),
		MatchedBy:         matchedBy,
		CorrelationId:     correlationId,
	}
}

// EnsureUnmatched re-checks inside the writer transaction that neither side
// of a proposed pairing already has a match row. Validation runs the same
// check earlier, but only this in-transaction one is authoritative; a hit
// here means a concurrent writer took the pairing between scoring and
// commit, so it surfaces as ErrorConcurrencyConflict.
func EnsureUnmatched(tx *gorm.DB, ctx context.Context, bankTransactionId int, dailyPaymentIds ...int) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&Match{}).
		Where("bank_transaction_id = ?", bankTransactionId).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return utils.ErrorConcurrencyConflict
	}
	if len(dailyPaymentIds) > 0 {
		if err := tx.WithContext(ctx).Model(&Match{}).
			Where("daily_payment_id IN ?", dailyPaymentIds).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return utils.ErrorConcurrencyConflict
		}
	}
	return nil
}

// TransactionIsMatched reports whether a bank transaction has any match row.
func TransactionIsMatched(tx *gorm.DB, ctx context.Context, bankTransactionId int) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&Match{}).
		Where("bank_transaction_id = ?", bankTransactionId).
		Count(&count).Error
	return count > 0, err
}

// PaymentIsMatched reports whether a daily payment has any match row.
func PaymentIsMatched(tx *gorm.DB, ctx context.Context, dailyPaymentId int) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&Match{}).
		Where("daily_payment_id = ?", dailyPaymentId).
		Count(&count).Error
	return count > 0, err
}

// FindMatchPair returns the exact match row for a pair, or RecordNotFound.
// Unmatch depends on the not-found error so stale UI never no-ops silently.
func FindMatchPair(tx *gorm.DB, ctx context.Context, bankTransactionId int, dailyPaymentId int) (*Match, error) {
	var match Match
	err := tx.WithContext(ctx).
		Where("bank_transaction_id = ? AND daily_payment_id = ?", bankTransactionId, dailyPaymentId).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrorRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// SumMatchedAmounts totals committed match amounts per connection type for
// one account/month, the actual side of the period summary.
func SumMatchedAmounts(tx *gorm.DB, ctx context.Context, bankAccountId int, year int, month int) (cash decimal.Decimal, card decimal.Decimal, err error) {
	start, end := MonthRange(year, month)
	var matches []Match
	err = tx.WithContext(ctx).
		Joins("JOIN bank_transactions ON bank_transactions.id = matches.bank_transaction_id").
		Where("bank_transactions.bank_account_id = ?", bankAccountId).
		Where("bank_transactions.transaction_date >= ? AND bank_transactions.transaction_date < ?", start, end).
		Find(&matches).Error
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	cash, card = decimal.Zero, decimal.Zero
	for _, m := range matches {
		if m.ConnectionType == ConnectionTypeCash {
			cash = cash.Add(m.Amount)
		} else {
			card = card.Add(m.Amount)
		}
	}
	return cash.Round(2), card.Round(2), nil
}
