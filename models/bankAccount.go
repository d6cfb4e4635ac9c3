package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"gorm.io/gorm"
)

type BankAccount struct {
	ID                int       `gorm:"primary_key" json:"id"`
	FacilityId        int       `gorm:"index;not null" json:"facility_id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	BankName          string    `gorm:"size:255;default:null" json:"bank_name"`
	AccountNumberMask string    `gorm:"size:32;default:null" json:"account_number_mask"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a BankAccount) GetId() int {
	return a.ID
}

func GetBankAccount(ctx context.Context, id int) (*BankAccount, error) {
	db := config.GetDB()
	var account BankAccount
	if err := db.WithContext(ctx).First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &account, nil
}

// ListActiveBankAccounts returns the accounts of one facility, the unit the
// candidate finder fans out over.
func ListActiveBankAccounts(ctx context.Context, facilityId int) ([]BankAccount, error) {
	db := config.GetDB()
	var accounts []BankAccount
	if err := db.WithContext(ctx).
		Where("facility_id = ? AND is_active = ?", facilityId, true).
		Order("id").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}
