package workflow

import (
	"context"
	"errors"
	"sort"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/config"
	"bitbucket.org/storhubdata/facilityops_backend/models"
	"bitbucket.org/storhubdata/facilityops_backend/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("facilityops-backend")

const (
	exactBandThreshold    = 0.95
	closeBandThreshold    = 0.80
	possibleBandThreshold = 0.60

	amountConfidenceWeight = 0.8
	dateConfidenceWeight   = 0.2
	dateDecayPerDay        = 0.1

	// DefaultAutoMatchConfidence is the floor below which the auto matcher
	// only suggests, never commits.
	DefaultAutoMatchConfidence = exactBandThreshold
)

// MatchCandidate is one scored (transaction, payment, connection type)
// pairing proposed by the finder.
type MatchCandidate struct {
	BankTransactionId int                   `json:"bank_transaction_id"`
	DailyPaymentId    int                   `json:"daily_payment_id"`
	ConnectionType    models.ConnectionType `json:"connection_type"`
	TransactionAmount decimal.Decimal       `json:"transaction_amount"`
	CandidateTotal    decimal.Decimal       `json:"candidate_total"`
	AmountDiff        decimal.Decimal       `json:"amount_diff"`
	DateDiffDays      int                   `json:"date_diff_days"`
	Confidence        float64               `json:"confidence"`
	Band              models.MatchBand      `json:"band"`
	TransactionDate   time.Time             `json:"transaction_date"`
	PaymentDate       time.Time             `json:"payment_date"`
}

type CandidateSummary struct {
	Exact                 int `json:"exact"`
	Close                 int `json:"close"`
	Possible              int `json:"possible"`
	UnmatchedTransactions int `json:"unmatched_transactions"`
	UnmatchedPayments     int `json:"unmatched_payments"`
}

// dayDistance is the absolute calendar-day distance between two dates,
// ignoring time-of-day.
func dayDistance(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	d := int(au.Sub(bu).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

// scorePair blends amount closeness and date closeness into a [0,1]
// confidence. Exact pairs (no amount drift, same day) are forced to 1.0.
// Requires transactionAmount > 0; zero-amount transactions are never
// candidates.
func scorePair(transactionAmount, candidateTotal decimal.Decimal, dateDiff int) float64 {
	amountDiff := transactionAmount.Sub(candidateTotal).Abs()
	if amountDiff.IsZero() && dateDiff == 0 {
		return 1.0
	}
	amountConfidence := 1.0 - amountDiff.Div(transactionAmount).InexactFloat64()
	if amountConfidence < 0 {
		amountConfidence = 0
	}
	dateConfidence := 1.0 - float64(dateDiff)*dateDecayPerDay
	if dateConfidence < 0 {
		dateConfidence = 0
	}
	return amountConfidenceWeight*amountConfidence + dateConfidenceWeight*dateConfidence
}

// classifyConfidence buckets a confidence score; ok is false below the
// candidate floor.
func classifyConfidence(confidence float64) (models.MatchBand, bool) {
	switch {
	case confidence >= exactBandThreshold:
		return models.MatchBandExact, true
	case confidence >= closeBandThreshold:
		return models.MatchBandClose, true
	case confidence >= possibleBandThreshold:
		return models.MatchBandPossible, true
	default:
		return "", false
	}
}

// buildCandidates scores every pairing and keeps only the best candidate per
// bank transaction; a transaction never appears twice in the output.
func buildCandidates(txns []models.BankTransaction, totals []models.DailyPaymentTotals) []MatchCandidate {
	var all []MatchCandidate
	for _, txn := range txns {
		if !txn.Amount.IsPositive() {
			continue
		}
		for _, t := range totals {
			dateDiff := dayDistance(txn.TransactionDate, t.PaymentDate)
			for _, connectionType := range []models.ConnectionType{models.ConnectionTypeCash, models.ConnectionTypeCreditCard} {
				candidateTotal := t.TotalFor(connectionType)
				if !candidateTotal.IsPositive() {
					continue
				}
				confidence := scorePair(txn.Amount, candidateTotal, dateDiff)
				band, ok := classifyConfidence(confidence)
				if !ok {
					continue
				}
				all = append(all, MatchCandidate{
					BankTransactionId: txn.ID,
					DailyPaymentId:    t.DailyPaymentId,
					ConnectionType:    connectionType,
					TransactionAmount: txn.Amount,
					CandidateTotal:    candidateTotal,
					AmountDiff:        txn.Amount.Sub(candidateTotal).Abs(),
					DateDiffDays:      dateDiff,
					Confidence:        confidence,
					Band:              band,
					TransactionDate:   txn.TransactionDate,
					PaymentDate:       t.PaymentDate,
				})
			}
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Confidence != all[j].Confidence {
			return all[i].Confidence > all[j].Confidence
		}
		if all[i].DateDiffDays != all[j].DateDiffDays {
			return all[i].DateDiffDays < all[j].DateDiffDays
		}
		if all[i].BankTransactionId != all[j].BankTransactionId {
			return all[i].BankTransactionId < all[j].BankTransactionId
		}
		return all[i].DailyPaymentId < all[j].DailyPaymentId
	})

	seen := map[int]bool{}
	deduped := make([]MatchCandidate, 0, len(all))
	for _, c := range all {
		if seen[c.BankTransactionId] {
			continue
		}
		seen[c.BankTransactionId] = true
		deduped = append(deduped, c)
	}
	return deduped
}

// FindMatchCandidates produces the ranked candidate list for one work unit.
// Empty inputs produce an empty list, not an error.
func FindMatchCandidates(ctx context.Context, facilityId int, bankAccountId int, month int, year int) ([]MatchCandidate, CandidateSummary, error) {
	account, err := models.GetBankAccount(ctx, bankAccountId)
	if err != nil {
		return nil, CandidateSummary{}, err
	}
	if account.FacilityId != facilityId {
		return nil, CandidateSummary{}, utils.ErrorFacilityMismatch
	}

	db := config.GetDB()
	txns, err := models.UnmatchedBankTransactions(db, ctx, bankAccountId, year, month)
	if err != nil {
		return nil, CandidateSummary{}, err
	}
	payments, err := models.UnmatchedDailyPayments(db, ctx, facilityId, year, month)
	if err != nil {
		return nil, CandidateSummary{}, err
	}

	totals := make([]models.DailyPaymentTotals, 0, len(payments))
	for _, p := range payments {
		totals = append(totals, p.Aggregate())
	}

	candidates := buildCandidates(txns, totals)

	summary := CandidateSummary{}
	coveredTxns := map[int]bool{}
	coveredPayments := map[int]bool{}
	for _, c := range candidates {
		coveredTxns[c.BankTransactionId] = true
		coveredPayments[c.DailyPaymentId] = true
		switch c.Band {
		case models.MatchBandExact:
			summary.Exact++
		case models.MatchBandClose:
			summary.Close++
		case models.MatchBandPossible:
			summary.Possible++
		}
	}
	summary.UnmatchedTransactions = len(txns) - len(coveredTxns)
	summary.UnmatchedPayments = len(payments) - len(coveredPayments)

	return candidates, summary, nil
}

type AutoMatchResult struct {
	Committed   int              `json:"committed"`
	Skipped     int              `json:"skipped"`
	Suggestions []MatchCandidate `json:"suggestions"`
}

// RunAutoMatch commits every candidate at or above minConfidence as an
// automatic match; candidates below the threshold are returned as
// suggestions only. A candidate whose transaction or payment got matched
// between scoring and commit is skipped, not fatal.
func RunAutoMatch(ctx context.Context, facilityId int, bankAccountId int, month int, year int, minConfidence float64) (AutoMatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.RunAutoMatch")
	defer span.End()

	logger := config.GetLogger()
	candidates, _, err := FindMatchCandidates(ctx, facilityId, bankAccountId, month, year)
	if err != nil {
		return AutoMatchResult{}, err
	}

	correlationId := correlationIdFromContextOrNew(ctx)
	matchedBy, _ := utils.GetUserNameFromContext(ctx)
	if matchedBy == "" {
		matchedBy = "AutoMatch"
	}

	result := AutoMatchResult{}
	for _, candidate := range candidates {
		if candidate.Confidence < minConfidence {
			result.Suggestions = append(result.Suggestions, candidate)
			continue
		}
		err := commitAutomaticMatch(ctx, facilityId, bankAccountId, year, month, candidate, matchedBy, correlationId)
		if errors.Is(err, utils.ErrorConcurrencyConflict) {
			result.Skipped++
			continue
		}
		if err != nil {
			return result, err
		}
		result.Committed++
	}

	logger.WithFields(logrus.Fields{
		"facilityId":    facilityId,
		"bankAccountId": bankAccountId,
		"period":        periodLabel(year, month),
		"committed":     result.Committed,
		"skipped":       result.Skipped,
		"suggestions":   len(result.Suggestions),
		"correlationId": correlationId,
	}).Info("auto-match run finished")
	return result, nil
}

func commitAutomaticMatch(ctx context.Context, facilityId int, bankAccountId int, year int, month int, candidate MatchCandidate, matchedBy string, correlationId string) error {
	db := config.GetDB()
	return WithMatchLock(ctx, db, bankAccountId, year, month, func(tx *gorm.DB) error {
		if err := models.EnsureUnmatched(tx, ctx, candidate.BankTransactionId, candidate.DailyPaymentId); err != nil {
			return err
		}

		match := models.NewMatchRow(
			candidate.BankTransactionId,
			candidate.DailyPaymentId,
			candidate.ConnectionType,
			candidate.TransactionAmount,
			candidate.TransactionAmount.Sub(candidate.CandidateTotal),
			models.AutomaticMatch{Score: candidate.Confidence, Band: candidate.Band},
			matchedBy,
			correlationId,
		)
		if err := tx.WithContext(ctx).Create(&match).Error; err != nil {
			return err
		}
		_, err := models.RecomputePeriodSummary(tx, ctx, facilityId, bankAccountId, year, month)
		return err
	})
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func periodLabel(year int, month int) string {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}
