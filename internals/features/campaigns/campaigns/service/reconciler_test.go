package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
)

func TestReconcileScenarioTenMillion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, 10_000_000, 0)

	res, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 3_000_000})
	if err != nil {
		t.Fatalf("donation 1: %v", err)
	}
	if res.NewCurrentAmount != 3_000_000 || res.StatusChanged {
		t.Fatalf("donation 1 result = %+v", res)
	}

	res, err = f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 4_000_000})
	if err != nil {
		t.Fatalf("donation 2: %v", err)
	}
	if res.NewCurrentAmount != 7_000_000 || res.Status != lifecycle.Active {
		t.Fatalf("donation 2 result = %+v", res)
	}

	_, err = f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 4_000_000})
	var rej *funding.RejectionError
	if !errors.As(err, &rej) || !errors.Is(err, funding.ErrExceedsMaximum) {
		t.Fatalf("donation 3 full amount: err = %v, want exceeds maximum", err)
	}
	if rej.MaxAccepted != 3_000_000 {
		t.Errorf("quoted max = %d, want 3000000", rej.MaxAccepted)
	}
	if got := f.reload(t, c.ID).CurrentAmount; got != 7_000_000 {
		t.Fatalf("rejected donation changed current_amount to %d", got)
	}

	res, err = f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 3_000_000})
	if err != nil {
		t.Fatalf("donation 3 capped: %v", err)
	}
	if !res.StatusChanged || res.Status != lifecycle.Completed || res.TriggeredEvent != funding.EventCampaignCompleted {
		t.Errorf("donation 3 result = %+v, want completion", res)
	}

	got := f.reload(t, c.ID)
	if got.CurrentAmount != 10_000_000 || got.Status != lifecycle.Completed || got.CompletedAt == nil {
		t.Errorf("campaign = current %d status %s completed_at %v", got.CurrentAmount, got.Status, got.CompletedAt)
	}
	if kinds := f.events.kinds(); len(kinds) != 1 || kinds[0] != funding.EventCampaignCompleted {
		t.Errorf("events = %v, want one completion", kinds)
	}
}

func TestReconcileRejectionQuotesRemaining(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, 1_000_000, 980_000)

	for _, amount := range []int64{70_000, 50_000} {
		_, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: amount})
		var rej *funding.RejectionError
		if !errors.As(err, &rej) || rej.MaxAccepted != 20_000 {
			t.Errorf("amount %d: err = %v, want rejection quoting 20000", amount, err)
		}
	}

	res, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 20_000})
	if err != nil {
		t.Fatalf("exact remainder: %v", err)
	}
	if res.NewCurrentAmount != 1_000_000 || res.Status != lifecycle.Completed {
		t.Errorf("result = %+v, want completion at 1000000", res)
	}

	_, err = f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 20_000})
	if !errors.Is(err, funding.ErrInvalidState) {
		t.Errorf("donation after completion: err = %v, want ErrInvalidState", err)
	}
}

func TestReconcileIsIdempotentPerDonation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, 5_000_000, 0)
	donation := uuid.New()

	first, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: donation, Amount: 250_000, Source: "midtrans"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: donation, Amount: 250_000, Source: "midtrans"})
	if err != nil {
		t.Fatalf("duplicate reconcile should not error: %v", err)
	}
	if !second.Duplicate || second.NewCurrentAmount != first.NewCurrentAmount {
		t.Errorf("duplicate result = %+v, first = %+v", second, first)
	}

	var rows int64
	f.db.Model(&model.CampaignReconciliation{}).Where("campaign_id = ?", c.ID).Count(&rows)
	if rows != 1 {
		t.Errorf("ledger rows = %d, want 1", rows)
	}
	if got := f.reload(t, c.ID).CurrentAmount; got != 250_000 {
		t.Errorf("current_amount = %d, want 250000", got)
	}

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, err := f.rec.ReconcileTx(ctx, tx, Input{CampaignID: c.ID, DonationID: donation, Amount: 250_000})
		return err
	})
	if !errors.Is(err, funding.ErrDuplicateReconciliation) {
		t.Errorf("ReconcileTx duplicate: err = %v", err)
	}
}

func TestReconcileRequiresActiveCampaign(t *testing.T) {
	f := newFixture(t)
	c := f.activeCampaign(t, 1_000_000, 0)
	f.db.Model(&model.Campaign{}).Where("id = ?", c.ID).Update("status", string(lifecycle.Pending))

	_, err := f.rec.Reconcile(context.Background(), Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: 50_000})
	if !errors.Is(err, funding.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}

	_, err = f.rec.Reconcile(context.Background(), Input{CampaignID: uuid.New(), DonationID: uuid.New(), Amount: 50_000})
	if !errors.Is(err, ErrCampaignNotFound) {
		t.Errorf("missing campaign: err = %v, want ErrCampaignNotFound", err)
	}
}

func TestReconcileConcurrentWritersLoseNothing(t *testing.T) {
	const (
		writers = 25
		amount  = int64(40_000)
	)
	f := newFixture(t)
	c := f.activeCampaign(t, writers*amount, 0)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.rec.Reconcile(context.Background(), Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: amount})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d reconciliations failed, first: %v", len(errs), errs[0])
	}
	got := f.reload(t, c.ID)
	if got.CurrentAmount != writers*amount {
		t.Errorf("current_amount = %d, want %d", got.CurrentAmount, writers*amount)
	}
	if got.Status != lifecycle.Completed {
		t.Errorf("status = %s, want completed", got.Status)
	}
	report, err := f.campaigns.VerifyInvariant(context.Background(), c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.LedgerSum != got.CurrentAmount || report.LedgerEntries != writers {
		t.Errorf("ledger sum %d over %d entries, want %d over %d", report.LedgerSum, report.LedgerEntries, got.CurrentAmount, writers)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), 3, func() error {
		calls++
		return funding.ErrConcurrencyConflict
	})
	if !errors.Is(err, funding.ErrConcurrencyConflict) || calls != 3 {
		t.Errorf("err = %v after %d calls, want conflict after 3", err, calls)
	}

	calls = 0
	err = RetryOnConflict(context.Background(), 3, func() error {
		calls++
		return funding.ErrInvalidState
	})
	if !errors.Is(err, funding.ErrInvalidState) || calls != 1 {
		t.Errorf("non-conflict error retried: calls = %d", calls)
	}
}

func TestPriorReconciliation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.activeCampaign(t, 1_000_000, 0)
	donationID := uuid.New()

	prior, err := PriorReconciliation(f.db, donationID)
	if err != nil || prior != nil {
		t.Fatalf("before reconcile: %+v, %v", prior, err)
	}
	if _, err := f.rec.Reconcile(ctx, Input{CampaignID: c.ID, DonationID: donationID, Amount: 1_000_000}); err != nil {
		t.Fatal(err)
	}
	prior, err = PriorReconciliation(f.db, donationID)
	if err != nil || prior == nil {
		t.Fatalf("after reconcile: %+v, %v", prior, err)
	}
	if !prior.Duplicate || prior.Amount != 1_000_000 || prior.Status != lifecycle.Completed || prior.TriggeredEvent != funding.EventCampaignCompleted {
		t.Errorf("prior = %+v", prior)
	}
}

func TestOutcomeLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{funding.ErrConcurrencyConflict, "conflict"},
		{fmt.Errorf("wrapped: %w", funding.ErrInvalidState), "invalid_state"},
		{&funding.RejectionError{Reason: funding.ErrExceedsMaximum}, "rejected"},
		{ErrCampaignNotFound, "not_found"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		if got := OutcomeLabel(tt.err); got != tt.want {
			t.Errorf("OutcomeLabel(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
