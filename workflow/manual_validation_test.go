package workflow

import (
	"strings"
	"testing"

	"bitbucket.org/storhubdata/facilityops_backend/models"
	"github.com/shopspring/decimal"
)

func pairingFixture(amount, cash, card string, txnDay, paymentDay int) (models.BankTransaction, models.DailyPaymentTotals) {
	txn := models.BankTransaction{ID: 1, Amount: dec(amount), TransactionDate: day(txnDay)}
	totals := models.DailyPaymentTotals{
		DailyPaymentId: 2,
		PaymentDate:    day(paymentDay),
		CashCheckTotal: dec(cash),
		CardTotal:      dec(card),
	}
	return txn, totals
}

func hasWarningContaining(warnings []string, fragment string) bool {
	for _, w := range warnings {
		if strings.Contains(w, fragment) {
			return true
		}
	}
	return false
}

func TestEvaluatePairingExactMatchHasNoWarnings(t *testing.T) {
	txn, totals := pairingFixture("225.75", "225.75", "0", 10, 10)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
	if !result.IsValid {
		t.Fatalf("exact pairing should be valid: %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("exact pairing should not warn, got %v", result.Warnings)
	}
	if !result.SuggestedAmount.Equal(dec("225.75")) {
		t.Fatalf("suggested amount should be the expected total, got %s", result.SuggestedAmount)
	}
}

func TestEvaluatePairingZeroAmountIsHardError(t *testing.T) {
	txn, totals := pairingFixture("0", "100", "0", 10, 10)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
	if result.IsValid {
		t.Fatal("zero-amount transaction must be invalid")
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected a hard error for a zero-amount transaction")
	}
}

func TestEvaluatePairingGradesAmountDrift(t *testing.T) {
	cases := []struct {
		name     string
		cash     string
		fragment string
	}{
		{"small half-percent", "995", "small amount difference"},
		{"moderate three-percent", "970", "moderate amount difference"},
		{"large twenty-percent", "800", "large amount difference"},
	}
	for _, tc := range cases {
		txn, totals := pairingFixture("1000", tc.cash, "0", 10, 10)
		result := evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
		if !result.IsValid {
			t.Fatalf("%s drift should only warn, got errors %v", tc.name, result.Errors)
		}
		if !hasWarningContaining(result.Warnings, tc.fragment) {
			t.Errorf("%s drift: expected warning containing %q, got %v", tc.name, tc.fragment, result.Warnings)
		}
	}
}

func TestEvaluatePairingGradesDateDrift(t *testing.T) {
	txn, totals := pairingFixture("500", "500", "0", 15, 10)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
	if !hasWarningContaining(result.Warnings, "moderate date difference") {
		t.Fatalf("5 days apart should warn moderately, got %v", result.Warnings)
	}

	txn, totals = pairingFixture("500", "500", "0", 20, 10)
	result = evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
	if !hasWarningContaining(result.Warnings, "large date difference") {
		t.Fatalf("10 days apart should warn strongly, got %v", result.Warnings)
	}
}

func TestEvaluatePairingSuggestsCloserBucket(t *testing.T) {
	// Operator picked cash but the card total is the obvious match.
	txn, totals := pairingFixture("840.00", "320.00", "840.00", 5, 5)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, decimal.Zero)
	if !result.IsValid {
		t.Fatalf("drift should only warn, got errors %v", result.Errors)
	}
	if result.SuggestedConnectionType != models.ConnectionTypeCreditCard {
		t.Fatalf("expected a creditCard suggestion, got %q", result.SuggestedConnectionType)
	}
	if !result.SuggestedAmount.Equal(dec("840.00")) {
		t.Fatalf("suggested amount should follow the suggested bucket, got %s", result.SuggestedAmount)
	}
}

func TestEvaluatePairingUsesRequestedAmount(t *testing.T) {
	// The operator records 950 of a 1000 deposit against a 950 day; drift is
	// graded against the requested amount, with a warning about the delta
	// from the transaction.
	txn, totals := pairingFixture("1000", "950", "0", 10, 10)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, dec("950"))
	if !result.IsValid {
		t.Fatalf("requested-amount pairing should be valid: %v", result.Errors)
	}
	if !hasWarningContaining(result.Warnings, "differs from the bank transaction amount") {
		t.Fatalf("expected a requested-amount warning, got %v", result.Warnings)
	}
	if hasWarningContaining(result.Warnings, "amount difference") {
		t.Fatalf("no drift expected against the requested amount, got %v", result.Warnings)
	}
}

func TestEvaluatePairingRejectsNegativeRequestedAmount(t *testing.T) {
	txn, totals := pairingFixture("1000", "1000", "0", 10, 10)
	result := evaluatePairing(txn, totals, models.ConnectionTypeCash, dec("-5"))
	if result.IsValid {
		t.Fatal("negative requested amount must be invalid")
	}
	if !strings.Contains(strings.Join(result.Errors, " "), "must not be negative") {
		t.Fatalf("expected a negative-amount error, got %v", result.Errors)
	}
}

func TestRecordedMatchAmountDefaultsToTransaction(t *testing.T) {
	if got := recordedMatchAmount(decimal.Zero, dec("120.50")); !got.Equal(dec("120.50")) {
		t.Fatalf("zero request should fall back to the transaction amount, got %s", got)
	}
	if got := recordedMatchAmount(dec("100"), dec("120.50")); !got.Equal(dec("100")) {
		t.Fatalf("a positive request should win, got %s", got)
	}
}
