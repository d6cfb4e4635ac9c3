package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"bitbucket.org/storhubdata/facilityops_backend/workflow"
	"github.com/google/uuid"
)

func main() {
	facilityID := flag.Int("facility-id", 0, "Optional: run only one facility. If 0, runs every active facility.")
	month := flag.Int("month", 0, "Month to match (1-12). Defaults to the previous calendar month.")
	year := flag.Int("year", 0, "Year to match. Defaults to the previous calendar month's year.")
	minConfidence := flag.Float64("min-confidence", workflow.DefaultAutoMatchConfidence, "Confidence floor for committing matches; candidates below it are suggestions only.")
	workers := flag.Int("workers", 4, "Number of concurrent bank-account workers.")
	flag.Parse()

	if *month == 0 || *year == 0 {
		previous := time.Now().UTC().AddDate(0, -1, 0)
		if *month == 0 {
			*month = int(previous.Month())
		}
		if *year == 0 {
			*year = previous.Year()
		}
	}
	if *month < 1 || *month > 12 {
		fmt.Fprintf(os.Stderr, "month must be between 1 and 12, got %d\n", *month)
		os.Exit(1)
	}

	ctx := context.Background()
	// Explicit DB connect (config does not connect in init()).
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	// Audit columns expect actor fields even for batch runs.
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetUserNameInContext(ctx, "AutoMatchBatch")
	ctx = utils.SetCorrelationIdInContext(ctx, uuid.NewString())

	units, err := workflow.CollectWorkUnits(ctx, *facilityID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list work units: %v\n", err)
		os.Exit(1)
	}
	if len(units) == 0 {
		fmt.Fprintln(os.Stderr, "no active bank accounts found to match")
		return
	}

	fmt.Printf("Auto-matching %d bank accounts period=%04d-%02d min-confidence=%.2f workers=%d\n",
		len(units), *year, *month, *minConfidence, *workers)

	stats := workflow.RunPortfolioAutoMatch(ctx, units, *month, *year, *minConfidence, *workers)

	fmt.Printf("Auto-match complete: committed=%d skipped=%d suggestions=%d failed=%d\n",
		stats.Committed, stats.Skipped, stats.Suggestions, stats.Failed)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
