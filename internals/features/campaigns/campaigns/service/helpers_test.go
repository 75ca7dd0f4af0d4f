package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	donmodel "kvtogether_backend/internals/features/donations/donations/model"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/testinfra"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []funding.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev funding.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) kinds() []funding.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]funding.EventKind, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Kind
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	events    *recordingPublisher
	rec       *Reconciler
	wallets   *walletsvc.WalletService
	campaigns *CampaignService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testinfra.NewSQLiteDB(t)
	events := &recordingPublisher{}
	rec := NewReconciler(db, 10, events)
	wallets := walletsvc.NewWalletService(db)
	return &fixture{
		db:        db,
		events:    events,
		rec:       rec,
		wallets:   wallets,
		campaigns: NewCampaignService(db, rec, wallets, events),
	}
}

func (f *fixture) activeCampaign(t *testing.T, target, current int64) model.Campaign {
	t.Helper()
	end := time.Now().UTC().Add(30 * 24 * time.Hour)
	c := model.Campaign{
		OrganizerID:   uuid.New(),
		Title:         "Clean water for Ha Giang",
		TargetAmount:  target,
		CurrentAmount: current,
		Status:        lifecycle.Active,
		EndDate:       &end,
	}
	if err := f.db.Create(&c).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

// completedDonation stores a donation and applies it to the ledger the way
// payment completion does.
func (f *fixture) completedDonation(t *testing.T, c model.Campaign, donor *uuid.UUID, amount int64) donmodel.Donation {
	t.Helper()
	now := time.Now().UTC()
	d := donmodel.Donation{
		CampaignID:    c.ID,
		DonorID:       donor,
		DonorName:     "Donor",
		Amount:        amount,
		Status:        donmodel.DonationStatusCompleted,
		PaymentMethod: donmodel.PaymentMethodBankTransfer,
		OrderID:       "KVT-" + uuid.NewString(),
		CompletedAt:   &now,
	}
	if err := f.db.Create(&d).Error; err != nil {
		t.Fatalf("create donation: %v", err)
	}
	if _, err := f.rec.Reconcile(context.Background(), Input{CampaignID: c.ID, DonationID: d.ID, Amount: amount, Source: "test"}); err != nil {
		t.Fatalf("reconcile donation: %v", err)
	}
	return d
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) model.Campaign {
	t.Helper()
	c, err := loadCampaign(f.db, id)
	if err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	return c
}
