//go:build integration

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	"kvtogether_backend/internals/testinfra"
)

func TestReconcileOversubscribedOnPostgres(t *testing.T) {
	const (
		writers = 40
		amount  = int64(300_000)
		target  = int64(10_000_000)
	)
	db := testinfra.NewPostgresDB(t)
	events := &recordingPublisher{}
	rec := NewReconciler(db, 200, events)

	end := time.Now().UTC().Add(24 * time.Hour)
	c := model.Campaign{OrganizerID: uuid.New(), Title: "Oversubscribed", TargetAmount: target, Status: lifecycle.Active, EndDate: &end}
	if err := db.Create(&c).Error; err != nil {
		t.Fatal(err)
	}

	var (
		wg                 sync.WaitGroup
		mu                 sync.Mutex
		accepted, rejected int
		unexpected         []error
	)
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rec.Reconcile(context.Background(), Input{CampaignID: c.ID, DonationID: uuid.New(), Amount: amount, Source: "integration"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, funding.ErrExceedsMaximum), errors.Is(err, funding.ErrInvalidState):
				rejected++
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("%d unexpected errors, first: %v", len(unexpected), unexpected[0])
	}
	var got model.Campaign
	if err := db.Where("id = ?", c.ID).Take(&got).Error; err != nil {
		t.Fatal(err)
	}
	if accepted != 33 || rejected != writers-33 {
		t.Errorf("accepted=%d rejected=%d, want 33/%d", accepted, rejected, writers-33)
	}
	if got.CurrentAmount != 33*amount {
		t.Errorf("current_amount = %d, want %d", got.CurrentAmount, 33*amount)
	}
	var ledger int64
	db.Model(&model.CampaignReconciliation{}).Where("campaign_id = ?", c.ID).Select("COALESCE(SUM(amount), 0)").Scan(&ledger)
	if ledger != got.CurrentAmount {
		t.Errorf("ledger sum %d != current_amount %d", ledger, got.CurrentAmount)
	}
}
