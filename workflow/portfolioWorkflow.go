package workflow

import (
	"context"
	"sync"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/sirupsen/logrus"
)

// WorkUnit is one bank account for one facility, the grain the batch
// auto-matcher fans out over.
type WorkUnit struct {
	FacilityId    int
	BankAccountId int
}

type PortfolioStats struct {
	Units       int `json:"units"`
	Committed   int `json:"committed"`
	Skipped     int `json:"skipped"`
	Suggestions int `json:"suggestions"`
	Failed      int `json:"failed"`
}

// CollectWorkUnits lists every active bank account of every active facility.
// When facilityId is non-zero only that facility's accounts are returned.
func CollectWorkUnits(ctx context.Context, facilityId int) ([]WorkUnit, error) {
	var facilities []models.Facility
	if facilityId > 0 {
		facility, err := models.GetFacility(ctx, facilityId)
		if err != nil {
			return nil, err
		}
		facilities = []models.Facility{*facility}
	} else {
		var err error
		facilities, err = models.ListActiveFacilities(ctx)
		if err != nil {
			return nil, err
		}
	}

	var units []WorkUnit
	for _, facility := range facilities {
		accounts, err := models.ListActiveBankAccounts(ctx, facility.ID)
		if err != nil {
			return nil, err
		}
		for _, account := range accounts {
			units = append(units, WorkUnit{FacilityId: facility.ID, BankAccountId: account.ID})
		}
	}
	return units, nil
}

// RunPortfolioAutoMatch runs the automatic matcher for every work unit using a
// bounded worker pool. Each unit runs independently; one failing unit does not
// stop the rest. Per-unit serialization is handled by the match lock, so two
// workers can never double-book the same account and month.
func RunPortfolioAutoMatch(ctx context.Context, units []WorkUnit, month int, year int, minConfidence float64, workers int) PortfolioStats {
	if workers < 1 {
		workers = 1
	}
	logger := config.GetLogger()

	var (
		mu    sync.Mutex
		stats = PortfolioStats{Units: len(units)}
		wg    sync.WaitGroup
	)
	queue := make(chan WorkUnit, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range queue {
				unitCtx := utils.SetFacilityIdInContext(ctx, unit.FacilityId)
				result, err := RunAutoMatch(unitCtx, unit.FacilityId, unit.BankAccountId, month, year, minConfidence)
				mu.Lock()
				if err != nil {
					stats.Failed++
				} else {
					stats.Committed += result.Committed
					stats.Skipped += result.Skipped
					stats.Suggestions += len(result.Suggestions)
				}
				mu.Unlock()
				if err != nil {
					config.LogError(logger, "workflow", "RunPortfolioAutoMatch", "auto-match unit failed", unit, err)
				}
			}
		}()
	}

	for _, unit := range units {
		queue <- unit
	}
	close(queue)
	wg.Wait()

	logger.WithFields(logrus.Fields{
		"period":      periodLabel(year, month),
		"units":       stats.Units,
		"committed":   stats.Committed,
		"skipped":     stats.Skipped,
		"suggestions": stats.Suggestions,
		"failed":      stats.Failed,
	}).Info("portfolio auto-match finished")
	return stats
}
