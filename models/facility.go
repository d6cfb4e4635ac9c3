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

type Facility struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Name     string `gorm:"size:255;not null" json:"name"`
	Timezone string `gorm:"size:64;default:null" json:"timezone"`
	// Discrepancies with |amount| above this threshold are flagged critical.
	CriticalDiscrepancyThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:100" json:"critical_discrepancy_threshold"`
	IsActive                     bool            `gorm:"default:true" json:"is_active"`
	CreatedAt                    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (f Facility) GetId() int {
	return f.ID
}

func GetFacility(ctx context.Context, id int) (*Facility, error) {
	db := config.GetDB()
	var facility Facility
	if err := db.WithContext(ctx).First(&facility, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &facility, nil
}

// ListActiveFacilities returns every facility eligible for a portfolio
// auto-match run.
func ListActiveFacilities(ctx context.Context) ([]Facility, error) {
	db := config.GetDB()
	var facilities []Facility
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("id").Find(&facilities).Error; err != nil {
		return nil, err
	}
	return facilities, nil
}
