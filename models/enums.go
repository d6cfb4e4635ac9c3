package models

import "errors"

type TenderType string

const (
	TenderTypeCash       TenderType = "cash"
	TenderTypeCheck      TenderType = "check"
	TenderTypeVisa       TenderType = "visa"
	TenderTypeMastercard TenderType = "mastercard"
	TenderTypeAmex       TenderType = "amex"
	TenderTypeDiscover   TenderType = "discover"
	TenderTypeAch        TenderType = "ach"
	TenderTypeDinersClub TenderType = "dinersClub"
	TenderTypeDebit      TenderType = "debit"
)

// ConnectionType is the aggregate bucket a match is evaluated against:
// cash deposits reconcile against cash+check, card deposits against the
// card tender sum.
type ConnectionType string

const (
	ConnectionTypeCash       ConnectionType = "cash"
	ConnectionTypeCreditCard ConnectionType = "creditCard"
)

func ParseConnectionType(s string) (ConnectionType, error) {
	switch s {
	case "cash":
		return ConnectionTypeCash, nil
	case "creditCard":
		return ConnectionTypeCreditCard, nil
	default:
		return "", errors.New("invalid connection type")
	}
}

// Alternate returns the other aggregate bucket.
func (t ConnectionType) Alternate() ConnectionType {
	if t == ConnectionTypeCash {
		return ConnectionTypeCreditCard
	}
	return ConnectionTypeCash
}

type MatchType string

const (
	MatchTypeAutomatic MatchType = "automatic"
	MatchTypeManual    MatchType = "manual"
	MatchTypePartial   MatchType = "partial"
)

// MatchBand classifies a candidate by confidence.
type MatchBand string

const (
	MatchBandExact    MatchBand = "exact"    // confidence >= 0.95
	MatchBandClose    MatchBand = "close"    // confidence >= 0.80
	MatchBandPossible MatchBand = "possible" // confidence >= 0.60
)

type DiscrepancyType string

const (
	DiscrepancyTypeMultiDayCombination DiscrepancyType = "multi_day_combination"
	DiscrepancyTypeRefund              DiscrepancyType = "refund"
	DiscrepancyTypeError               DiscrepancyType = "error"
	DiscrepancyTypeTimingDifference    DiscrepancyType = "timing_difference"
	DiscrepancyTypeBankFee             DiscrepancyType = "bank_fee"
	DiscrepancyTypeOther               DiscrepancyType = "other"
)

func ParseDiscrepancyType(s string) (DiscrepancyType, error) {
	discrepancyTypes := map[string]DiscrepancyType{
		"multi_day_combination": DiscrepancyTypeMultiDayCombination,
		"refund":                DiscrepancyTypeRefund,
		"error":                 DiscrepancyTypeError,
		"timing_difference":     DiscrepancyTypeTimingDifference,
		"bank_fee":              DiscrepancyTypeBankFee,
		"other":                 DiscrepancyTypeOther,
	}
	t, ok := discrepancyTypes[s]
	if !ok {
		return "", errors.New("invalid discrepancy type")
	}
	return t, nil
}

type DiscrepancyStatus string

const (
	DiscrepancyStatusPendingApproval DiscrepancyStatus = "pending_approval"
	DiscrepancyStatusApproved        DiscrepancyStatus = "approved"
	DiscrepancyStatusRejected        DiscrepancyStatus = "rejected"
	DiscrepancyStatusResolved        DiscrepancyStatus = "resolved"
)

func ParseDiscrepancyStatus(s string) (DiscrepancyStatus, error) {
	discrepancyStatuses := map[string]DiscrepancyStatus{
		"pending_approval": DiscrepancyStatusPendingApproval,
		"approved":         DiscrepancyStatusApproved,
		"rejected":         DiscrepancyStatusRejected,
		"resolved":         DiscrepancyStatusResolved,
	}
	t, ok := discrepancyStatuses[s]
	if !ok {
		return "", errors.New("invalid discrepancy status")
	}
	return t, nil
}

// CanTransitionTo enforces the approval state machine. Approve/reject apply
// only to pending discrepancies; resolved is terminal and reachable only
// from approved.
func (s DiscrepancyStatus) CanTransitionTo(next DiscrepancyStatus) bool {
	switch s {
	case DiscrepancyStatusPendingApproval:
		return next == DiscrepancyStatusApproved || next == DiscrepancyStatusRejected
	case DiscrepancyStatusApproved:
		return next == DiscrepancyStatusResolved
	default:
		return false
	}
}

type ReconciliationStatus string

const (
	ReconciliationStatusInProgress    ReconciliationStatus = "in_progress"
	ReconciliationStatusPendingReview ReconciliationStatus = "pending_review"
	ReconciliationStatusCompleted     ReconciliationStatus = "completed"
	ReconciliationStatusRejected      ReconciliationStatus = "rejected"
)

func ParseReconciliationStatus(s string) (ReconciliationStatus, error) {
	statuses := map[string]ReconciliationStatus{
		"in_progress":    ReconciliationStatusInProgress,
		"pending_review": ReconciliationStatusPendingReview,
		"completed":      ReconciliationStatusCompleted,
		"rejected":       ReconciliationStatusRejected,
	}
	t, ok := statuses[s]
	if !ok {
		return "", errors.New("invalid reconciliation status")
	}
	return t, nil
}

// CanTransitionTo covers operator-driven period transitions. Counters never
// drive these; an operator reviews them and moves the period explicitly.
func (s ReconciliationStatus) CanTransitionTo(next ReconciliationStatus) bool {
	switch s {
	case ReconciliationStatusInProgress:
		return next == ReconciliationStatusPendingReview
	case ReconciliationStatusPendingReview:
		return next == ReconciliationStatusCompleted || next == ReconciliationStatusRejected
	default:
		return false
	}
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "ADMIN"
	UserRoleOwner   UserRole = "OWNER"
	UserRoleManager UserRole = "MANAGER"
	UserRoleStaff   UserRole = "STAFF"
)

// CanReviewDiscrepancies gates approve/reject. The check is performed by the
// transport layer; the workflow itself only enforces the state machine.
func (r UserRole) CanReviewDiscrepancies() bool {
	return r == UserRoleAdmin || r == UserRoleOwner
}
