package workflow

import (
	"math"
	"testing"
	"time"

	"bitbucket.org/storhubdata/facilityops_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. They validate the scoring and
// candidate-selection semantics that matching correctness depends on:
// - exact deposits always score 1.0
// - confidence degrades monotonically with amount and date drift
// - a bank transaction never yields more than one candidate

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestScorePairExactDepositIsFullConfidence(t *testing.T) {
	got := scorePair(dec("225.75"), dec("225.75"), 0)
	if got != 1.0 {
		t.Fatalf("expected confidence 1.0 for an exact same-day deposit, got %v", got)
	}
	band, ok := classifyConfidence(got)
	if !ok || band != models.MatchBandExact {
		t.Fatalf("expected exact band, got %q ok=%v", band, ok)
	}
}

func TestScorePairAmountAndDateDrift(t *testing.T) {
	// 5% amount drift and two days apart: 0.8*0.95 + 0.2*0.8 = 0.92.
	got := scorePair(dec("1000"), dec("950"), 2)
	if math.Abs(got-0.92) > 1e-9 {
		t.Fatalf("expected confidence 0.92, got %v", got)
	}
	band, ok := classifyConfidence(got)
	if !ok || band != models.MatchBandClose {
		t.Fatalf("expected close band, got %q ok=%v", band, ok)
	}
}

func TestScorePairMonotonicDecay(t *testing.T) {
	amount := dec("1000")

	prev := scorePair(amount, dec("1000"), 1)
	for _, total := range []string{"990", "950", "900", "800"} {
		next := scorePair(amount, dec(total), 1)
		if next >= prev {
			t.Fatalf("confidence should fall as amount drift grows: %v then %v at total %s", prev, next, total)
		}
		prev = next
	}

	prev = scorePair(amount, dec("990"), 0)
	for dateDiff := 1; dateDiff <= 10; dateDiff++ {
		next := scorePair(amount, dec("990"), dateDiff)
		if next >= prev {
			t.Fatalf("confidence should fall as date drift grows: %v then %v at %d days", prev, next, dateDiff)
		}
		prev = next
	}
}

func TestScorePairNeverNegative(t *testing.T) {
	got := scorePair(dec("100"), dec("100000"), 45)
	if got < 0 {
		t.Fatalf("confidence must not go below zero, got %v", got)
	}
}

func TestClassifyConfidenceBands(t *testing.T) {
	cases := []struct {
		confidence float64
		band       models.MatchBand
		ok         bool
	}{
		{1.0, models.MatchBandExact, true},
		{0.95, models.MatchBandExact, true},
		{0.92, models.MatchBandClose, true},
		{0.80, models.MatchBandClose, true},
		{0.75, models.MatchBandPossible, true},
		{0.60, models.MatchBandPossible, true},
		{0.59, "", false},
		{0.0, "", false},
	}
	for _, tc := range cases {
		band, ok := classifyConfidence(tc.confidence)
		if band != tc.band || ok != tc.ok {
			t.Errorf("classifyConfidence(%v) = %q,%v; want %q,%v", tc.confidence, band, ok, tc.band, tc.ok)
		}
	}
}

func TestBuildCandidatesKeepsBestPerTransaction(t *testing.T) {
	txns := []models.BankTransaction{
		{ID: 1, Amount: dec("500.00"), TransactionDate: day(10)},
	}
	cash := dec("500.00")
	totals := []models.DailyPaymentTotals{
		{DailyPaymentId: 11, PaymentDate: day(9), CashCheckTotal: cash},
		{DailyPaymentId: 12, PaymentDate: day(10), CashCheckTotal: cash},
	}

	candidates := buildCandidates(txns, totals)
	if len(candidates) != 1 {
		t.Fatalf("expected exactly 1 candidate for the transaction, got %d", len(candidates))
	}
	best := candidates[0]
	if best.DailyPaymentId != 12 {
		t.Fatalf("expected the same-day payment to win, got payment %d", best.DailyPaymentId)
	}
	if best.Confidence != 1.0 || best.Band != models.MatchBandExact {
		t.Fatalf("expected exact candidate, got confidence %v band %q", best.Confidence, best.Band)
	}
}

func TestBuildCandidatesSkipsNonPositiveAmounts(t *testing.T) {
	txns := []models.BankTransaction{
		{ID: 1, Amount: decimal.Zero, TransactionDate: day(10)},
		{ID: 2, Amount: dec("-25.00"), TransactionDate: day(10)},
	}
	totals := []models.DailyPaymentTotals{
		{DailyPaymentId: 11, PaymentDate: day(10), CashCheckTotal: dec("25.00")},
	}
	if got := buildCandidates(txns, totals); len(got) != 0 {
		t.Fatalf("expected no candidates for zero or negative transactions, got %d", len(got))
	}
}

func TestBuildCandidatesPicksCloserConnectionType(t *testing.T) {
	txns := []models.BankTransaction{
		{ID: 1, Amount: dec("840.00"), TransactionDate: day(5)},
	}
	totals := []models.DailyPaymentTotals{
		{
			DailyPaymentId: 21,
			PaymentDate:    day(5),
			CashCheckTotal: dec("320.00"),
			CardTotal:      dec("840.00"),
		},
	}

	candidates := buildCandidates(txns, totals)
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	if candidates[0].ConnectionType != models.ConnectionTypeCreditCard {
		t.Fatalf("expected the card bucket to win, got %q", candidates[0].ConnectionType)
	}
}

func TestBuildCandidatesDeterministicOrdering(t *testing.T) {
	txns := []models.BankTransaction{
		{ID: 2, Amount: dec("100.00"), TransactionDate: day(3)},
		{ID: 1, Amount: dec("100.00"), TransactionDate: day(3)},
	}
	totals := []models.DailyPaymentTotals{
		{DailyPaymentId: 31, PaymentDate: day(3), CashCheckTotal: dec("100.00")},
	}

	first := buildCandidates(txns, totals)
	for i := 0; i < 20; i++ {
		again := buildCandidates(txns, totals)
		if len(again) != len(first) {
			t.Fatalf("candidate count changed between runs: %d vs %d", len(first), len(again))
		}
		for j := range again {
			if again[j].BankTransactionId != first[j].BankTransactionId ||
				again[j].DailyPaymentId != first[j].DailyPaymentId {
				t.Fatalf("candidate order changed between runs at index %d", j)
			}
		}
	}
}
