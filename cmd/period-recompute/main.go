package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"bitbucket.org/storhubdata/facilityops_backend/workflow"
)

// Rebuilds reconciliation period counters and totals from the match,
// transaction and discrepancy tables. Safe to re-run; the recompute is a
// full overwrite per period.
func main() {
	facilityID := flag.Int("facility-id", 0, "Optional: recompute only one facility. If 0, recomputes every active facility.")
	month := flag.Int("month", 0, "Month to recompute (1-12).")
	year := flag.Int("year", 0, "Year to recompute.")
	flag.Parse()

	if *month < 1 || *month > 12 || *year == 0 {
		fmt.Fprintln(os.Stderr, "both -month (1-12) and -year are required")
		os.Exit(1)
	}

	ctx := context.Background()
	// Explicit DB connect (config does not connect in init()).
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "PeriodRecompute")

	units, err := workflow.CollectWorkUnits(ctx, *facilityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list work units: %v\n", err)
		os.Exit(1)
	}
	if len(units) == 0 {
		fmt.Fprintln(os.Stderr, "no active bank accounts found")
		return
	}

	failed := 0
	for _, unit := range units {
		unitCtx := utils.SetFacilityIdInContext(ctx, unit.FacilityId)
		tx := db.Begin()
		period, err := models.RecomputePeriodSummary(tx, unitCtx, unit.FacilityId, unit.BankAccountId, *year, *month)
		if err != nil {
			tx.Rollback()
			fmt.Fprintf(os.Stderr, "facility=%d account=%d recompute failed: %v\n", unit.FacilityId, unit.BankAccountId, err)
			failed++
			continue
		}
		if err := tx.Commit().Error; err != nil {
			fmt.Fprintf(os.Stderr, "facility=%d account=%d commit failed: %v\n", unit.FacilityId, unit.BankAccountId, err)
			failed++
			continue
		}
		fmt.Printf("facility=%d account=%d period=%04d-%02d matched=%d unmatched=%d discrepancies=%d status=%s\n",
			unit.FacilityId, unit.BankAccountId, *year, *month,
			period.MatchedTransactionCount, period.UnmatchedTransactionCount, period.DiscrepancyCount, period.Status)
	}

	fmt.Printf("Recompute complete: %d accounts, %d failed\n", len(units), failed)
	if failed > 0 {
		os.Exit(1)
	}
}
