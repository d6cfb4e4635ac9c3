package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BankTransaction is one bank-reported movement. Rows are created by the
// external feed ingestion process and are never mutated here; "matched" is a
// derived property (existence of at least one Match row).
type BankTransaction struct {
	ID              int             `gorm:"primary_key" json:"id"`
	BankAccountId   int             `gorm:"index;not null" json:"bank_account_id"`
	TransactionDate time.Time       `gorm:"index;not null" json:"transaction_date"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	TenderTag       string          `gorm:"size:32;default:null" json:"tender_tag"` // cash | creditCard | other
	ReferenceNumber string          `gorm:"size:255;default:null" json:"reference_number"`
	Description     string          `gorm:"type:text;default:null" json:"description"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t BankTransaction) GetId() int {
	return t.ID
}

func GetBankTransaction(ctx context.Context, id int) (*BankTransaction, error) {
	db := config.GetDB()
	var txn BankTransaction
	if err := db.WithContext(ctx).First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// MonthRange returns the UTC [start, end) bounds of one calendar month.
func MonthRange(year int, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// UnmatchedBankTransactions lists the transactions of one account/month that
// have no Match row yet, ordered by date then id for deterministic candidate
// evaluation.
func UnmatchedBankTransactions(tx *gorm.DB, ctx context.Context, bankAccountId int, year int, month int) ([]BankTransaction, error) {
	start, end := MonthRange(year, month)
	var txns []BankTransaction
	err := tx.WithContext(ctx).
		Where("bank_account_id = ? AND transaction_date >= ? AND transaction_date < ?", bankAccountId, start, end).
		Where("id NOT IN (?)", tx.Model(&Match{}).Select("bank_transaction_id")).
		Order("transaction_date, id").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// CountBankTransactions returns total and matched counts for one
// account/month, used to recompute period summaries.
func CountBankTransactions(tx *gorm.DB, ctx context.Context, bankAccountId int, year int, month int) (total int64, matched int64, err error) {
	start, end := MonthRange(year, month)
	scope := func() *gorm.DB {
		return tx.WithContext(ctx).Model(&BankTransaction{}).
			Where("bank_account_id = ? AND transaction_date >= ? AND transaction_date < ?", bankAccountId, start, end)
	}
	if err = scope().Count(&total).Error; err != nil {
		return 0, 0, err
	}
	if err = scope().Where("id IN (?)", tx.Model(&Match{}).Select("bank_transaction_id")).Count(&matched).Error; err != nil {
		return 0, 0, err
	}
	return total, matched, nil
}
