package models

import (
	"log"

	"bitbucket.org/storhubdata/facilityops_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Facility{}, &BankAccount{}, &User{},
		&BankTransaction{}, &DailyPaymentRaw{},
		&Match{}, &Discrepancy{}, &MultiDayDiscrepancyLink{},
		&ReconciliationPeriod{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
