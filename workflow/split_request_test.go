package workflow

import (
	"context"
	"strings"
	"testing"

	"bitbucket.org/storhubdata/facilityops_backend/models"
)

func TestLoadSplitContextRejectsDuplicatePayments(t *testing.T) {
	// The same daily payment listed twice would collide with the unique
	// pair index at insert time; it has to fail as an input error first.
	_, err := loadSplitContext(context.Background(), 1, []int{7, 9, 7}, models.ConnectionTypeCash)
	if err == nil {
		t.Fatal("duplicate daily payment ids must be rejected")
	}
	if !strings.Contains(err.Error(), "appears more than once") {
		t.Fatalf("expected a duplicate-id error, got %v", err)
	}
}

func TestLoadSplitContextRequiresPayments(t *testing.T) {
	_, err := loadSplitContext(context.Background(), 1, nil, models.ConnectionTypeCash)
	if err == nil {
		t.Fatal("an empty daily payment list must be rejected")
	}
}
