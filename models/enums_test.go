package models_test

import (
	"testing"

	"bitbucket.org/storhubdata/facilityops_backend/models"
)

func TestDiscrepancyStatusTransitions(t *testing.T) {
	cases := []struct {
		from    models.DiscrepancyStatus
		to      models.DiscrepancyStatus
		allowed bool
	}{
		{models.DiscrepancyStatusPendingApproval, models.DiscrepancyStatusApproved, true},
		{models.DiscrepancyStatusPendingApproval, models.DiscrepancyStatusRejected, true},
		{models.DiscrepancyStatusApproved, models.DiscrepancyStatusResolved, true},
		{models.DiscrepancyStatusPendingApproval, models.DiscrepancyStatusResolved, false},
		{models.DiscrepancyStatusApproved, models.DiscrepancyStatusRejected, false},
		{models.DiscrepancyStatusRejected, models.DiscrepancyStatusApproved, false},
		{models.DiscrepancyStatusResolved, models.DiscrepancyStatusPendingApproval, false},
		{models.DiscrepancyStatusRejected, models.DiscrepancyStatusResolved, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestReconciliationStatusTransitions(t *testing.T) {
	cases := []struct {
		from    models.ReconciliationStatus
		to      models.ReconciliationStatus
		allowed bool
	}{
		{models.ReconciliationStatusInProgress, models.ReconciliationStatusPendingReview, true},
		{models.ReconciliationStatusPendingReview, models.ReconciliationStatusCompleted, true},
		{models.ReconciliationStatusPendingReview, models.ReconciliationStatusRejected, true},
		{models.ReconciliationStatusInProgress, models.ReconciliationStatusCompleted, false},
		{models.ReconciliationStatusCompleted, models.ReconciliationStatusInProgress, false},
		{models.ReconciliationStatusRejected, models.ReconciliationStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.allowed {
			t.Errorf("%s -> %s: got %v want %v", tc.from, tc.to, got, tc.allowed)
		}
	}
}

func TestParseConnectionTypeRejectsUnknown(t *testing.T) {
	if _, err := models.ParseConnectionType("wire"); err == nil {
		t.Fatal("expected an error for an unknown connection type")
	}
	ct, err := models.ParseConnectionType("creditCard")
	if err != nil {
		t.Fatalf("ParseConnectionType: %v", err)
	}
	if ct.Alternate() != models.ConnectionTypeCash {
		t.Fatalf("creditCard alternate should be cash, got %q", ct.Alternate())
	}
}

func TestParseDiscrepancyStatusRejectsUnknown(t *testing.T) {
	if _, err := models.ParseDiscrepancyStatus("open"); err == nil {
		t.Fatal("expected an error for an unknown discrepancy status")
	}
}

func TestRoleReviewGate(t *testing.T) {
	allowed := map[models.UserRole]bool{
		models.UserRoleAdmin:   true,
		models.UserRoleOwner:   true,
		models.UserRoleManager: false,
		models.UserRoleStaff:   false,
	}
	for role, want := range allowed {
		if got := role.CanReviewDiscrepancies(); got != want {
			t.Errorf("%s.CanReviewDiscrepancies() = %v, want %v", role, got, want)
		}
	}
}
