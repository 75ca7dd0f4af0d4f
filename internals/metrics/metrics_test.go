package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordReconciliation(t *testing.T) {
	beforeApplied := testutil.ToFloat64(Reconciliations.WithLabelValues("applied"))
	beforeAmount := testutil.ToFloat64(AcceptedAmount)

	RecordReconciliation("applied", 20000, time.Now())
	RecordReconciliation("duplicate", 20000, time.Now())

	if got := testutil.ToFloat64(Reconciliations.WithLabelValues("applied")) - beforeApplied; got != 1 {
		t.Errorf("applied delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(AcceptedAmount) - beforeAmount; got != 20000 {
		t.Errorf("accepted amount delta = %v, want 20000 (duplicates excluded)", got)
	}
}

func TestRecordTransition(t *testing.T) {
	before := testutil.ToFloat64(CampaignTransitions.WithLabelValues("active", "completed"))
	RecordTransition("active", "completed")
	if got := testutil.ToFloat64(CampaignTransitions.WithLabelValues("active", "completed")) - before; got != 1 {
		t.Errorf("transition delta = %v, want 1", got)
	}
}
