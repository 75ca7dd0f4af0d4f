package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	campaignmodel "kvtogether_backend/internals/features/campaigns/campaigns/model"
	campaignsvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	"kvtogether_backend/internals/features/donations/donations/model"
	gemodel "kvtogether_backend/internals/features/donations/gateway_events/model"
	gesvc "kvtogether_backend/internals/features/donations/gateway_events/service"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/testinfra"
)

const testServerKey = "SB-Mid-server-test"

type fakeGateway struct {
	mu     sync.Mutex
	snaps  []SnapRequest
	status map[string]TransactionStatus
	err    error
}

func (g *fakeGateway) CreateSnap(_ context.Context, req SnapRequest) (SnapResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return SnapResult{}, g.err
	}
	g.snaps = append(g.snaps, req)
	return SnapResult{Token: "tok-" + req.OrderID, RedirectURL: "https://app.sandbox.midtrans.com/snap/v4/" + req.OrderID}, nil
}

func (g *fakeGateway) CheckStatus(_ context.Context, orderID string) (TransactionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.status[orderID]
	if !ok {
		return TransactionStatus{}, errors.New("not found")
	}
	return st, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []funding.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev funding.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) count(kind funding.EventKind) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type fixture struct {
	svc     *DonationService
	wallets *walletsvc.WalletService
	gateway *fakeGateway
	events  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testinfra.NewSQLiteDB(t)
	events := &recordingPublisher{}
	rec := campaignsvc.NewReconciler(db, 10, events)
	wallets := walletsvc.NewWalletService(db)
	gw := &fakeGateway{status: map[string]TransactionStatus{}}
	svc := NewDonationService(db, rec, wallets, gw, gesvc.NewGatewayEventService(db))
	svc.ServerKey = testServerKey
	return &fixture{svc: svc, wallets: wallets, gateway: gw, events: events}
}

func (f *fixture) campaign(t *testing.T, target, current int64) campaignmodel.Campaign {
	t.Helper()
	end := time.Now().UTC().Add(14 * 24 * time.Hour)
	c := campaignmodel.Campaign{
		OrganizerID:   uuid.New(),
		Title:         "School roof",
		TargetAmount:  target,
		CurrentAmount: current,
		Status:        lifecycle.Active,
		EndDate:       &end,
	}
	if err := f.svc.DB.Create(&c).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) current(t *testing.T, id uuid.UUID) campaignmodel.Campaign {
	t.Helper()
	var c campaignmodel.Campaign
	if err := f.svc.DB.Where("id = ?", id).Take(&c).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) donation(t *testing.T, id uuid.UUID) model.Donation {
	t.Helper()
	d, err := f.svc.Get(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func notification(orderID, status string, amount int64) Notification {
	n := Notification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       strconv.FormatInt(amount, 10) + ".00",
		TransactionStatus: status,
		PaymentType:       "bank_transfer",
		SettlementTime:    "2026-10-18 10:00:00",
	}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)
	return n
}

func TestCreateDonationRejectsAboveMaximum(t *testing.T) {
	f := newFixture(t)
	c := f.campaign(t, 1_000_000, 980_000)

	_, err := f.svc.CreateDonation(context.Background(), CreateInput{
		CampaignID: c.ID, DonorName: "Lan", Amount: 70_000, Method: model.PaymentMethodMidtrans,
	})
	var rej *funding.RejectionError
	if !errors.As(err, &rej) || rej.MaxAccepted != 20_000 {
		t.Fatalf("err = %v, want rejection quoting 20000", err)
	}

	var n int64
	f.svc.DB.Model(&model.Donation{}).Count(&n)
	if n != 0 || len(f.gateway.snaps) != 0 {
		t.Errorf("declined donation created %d rows and %d snap requests", n, len(f.gateway.snaps))
	}
}

func TestCreateDonationMinimum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := f.campaign(t, 1_000_000, 0)
	_, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 10_000, Method: model.PaymentMethodBankTransfer})
	if !errors.Is(err, funding.ErrBelowMinimum) {
		t.Errorf("err = %v, want ErrBelowMinimum", err)
	}

	// The last dong of a campaign may be smaller than the minimum.
	nearly := f.campaign(t, 1_000_000, 990_000)
	res, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: nearly.ID, Amount: 10_000, Method: model.PaymentMethodBankTransfer})
	if err != nil {
		t.Fatalf("exact remainder below minimum: %v", err)
	}
	if res.Donation.Status != model.DonationStatusPending || res.Donation.DonorName != AnonymousDonorName {
		t.Errorf("donation = %+v", res.Donation)
	}
}

func TestMidtransWebhookCompletesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)

	created, err := f.svc.CreateDonation(ctx, CreateInput{
		CampaignID: c.ID, DonorName: "Minh", DonorEmail: "minh@example.com", Amount: 150_000, Method: model.PaymentMethodMidtrans,
	})
	if err != nil {
		t.Fatal(err)
	}
	if created.SnapToken == "" || len(f.gateway.snaps) != 1 || f.gateway.snaps[0].Amount != 150_000 {
		t.Fatalf("snap = %q, requests %+v", created.SnapToken, f.gateway.snaps)
	}

	n := notification(created.Donation.OrderID, "settlement", 150_000)
	for i := range 3 {
		res, err := f.svc.HandleNotification(ctx, []byte(`{}`), map[string]string{"Content-Type": "application/json"}, n)
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if res.Status != string(model.DonationStatusCompleted) {
			t.Errorf("delivery %d: status %s", i, res.Status)
		}
	}

	if got := f.current(t, c.ID).CurrentAmount; got != 150_000 {
		t.Errorf("current_amount = %d after replays, want 150000", got)
	}
	d := f.donation(t, created.Donation.ID)
	if d.Status != model.DonationStatusCompleted || d.PaidAmount == nil || *d.PaidAmount != 150_000 {
		t.Errorf("donation = %+v", d)
	}

	events, total, err := f.svc.GatewayEvents.List(ctx, gesvc.ListFilter{ExternalID: d.OrderID, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 {
		t.Errorf("gateway events = %d, want 3", total)
	}
	for _, ev := range events {
		if ev.GatewayEventStatus != gemodel.GatewayEventStatusSuccess {
			t.Errorf("event %s status = %s", ev.GatewayEventID, ev.GatewayEventStatus)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)
	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 50_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}

	n := notification(created.Donation.OrderID, "settlement", 50_000)
	n.SignatureKey = "deadbeef"
	res, err := f.svc.HandleNotification(ctx, []byte(`{}`), nil, n)
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("err = %v, want ErrInvalidSignature", err)
	}
	ev, err := f.svc.GatewayEvents.Get(ctx, res.EventID)
	if err != nil {
		t.Fatal(err)
	}
	if ev.GatewayEventStatus != gemodel.GatewayEventStatusFailed {
		t.Errorf("event status = %s, want failed", ev.GatewayEventStatus)
	}
	if d := f.donation(t, created.Donation.ID); d.Status != model.DonationStatusPending {
		t.Errorf("donation status = %s, want pending", d.Status)
	}
}

func TestAmountMismatchGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)
	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 100_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.HandleNotification(ctx, []byte(`{}`), nil, notification(created.Donation.OrderID, "settlement", 120_000)); err != nil {
		t.Fatal(err)
	}
	d := f.donation(t, created.Donation.ID)
	if d.Status != model.DonationStatusNeedsReview || d.ReviewReason == nil {
		t.Errorf("donation = status %s reason %v", d.Status, d.ReviewReason)
	}
	if got := f.current(t, c.ID).CurrentAmount; got != 0 {
		t.Errorf("mismatched payment reached the ledger: %d", got)
	}
	if f.events.count(funding.EventDonationNeedsReview) != 1 {
		t.Error("no needs_review event published")
	}
}

func TestSettlementAfterCampaignFilledGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)

	first, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 600_000, Method: model.PaymentMethodBankTransfer})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 600_000, Method: model.PaymentMethodBankTransfer})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.VerifyBankTransfer(ctx, first.Donation.ID, 600_000); err != nil {
		t.Fatal(err)
	}
	res, err := f.svc.VerifyBankTransfer(ctx, second.Donation.ID, 600_000)
	if err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	if !res.NeedsReview || res.Donation.Status != model.DonationStatusNeedsReview {
		t.Errorf("second transfer result = %+v", res)
	}
	if got := f.current(t, c.ID).CurrentAmount; got != 600_000 {
		t.Errorf("current_amount = %d, want 600000", got)
	}

	reviews, total, err := f.svc.List(ctx, ListFilter{Status: model.DonationStatusNeedsReview, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || reviews[0].ID != second.Donation.ID {
		t.Errorf("review queue = %d rows", total)
	}
}

func TestVerifyBankTransferIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 500_000, 0)
	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 500_000, Method: model.PaymentMethodBankTransfer})
	if err != nil {
		t.Fatal(err)
	}

	first, err := f.svc.VerifyBankTransfer(ctx, created.Donation.ID, 500_000)
	if err != nil {
		t.Fatal(err)
	}
	if first.Reconciliation == nil || !first.Reconciliation.StatusChanged {
		t.Errorf("first verification = %+v", first.Reconciliation)
	}
	second, err := f.svc.VerifyBankTransfer(ctx, created.Donation.ID, 500_000)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Duplicate {
		t.Error("second verification not reported as duplicate")
	}
	got := f.current(t, c.ID)
	if got.CurrentAmount != 500_000 || got.Status != lifecycle.Completed {
		t.Errorf("campaign = %d %s", got.CurrentAmount, got.Status)
	}
	if f.events.count(funding.EventCampaignCompleted) != 1 {
		t.Errorf("completion events = %d, want 1", f.events.count(funding.EventCampaignCompleted))
	}

	midtrans, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: f.campaign(t, 500_000, 0).ID, Amount: 50_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.VerifyBankTransfer(ctx, midtrans.Donation.ID, 50_000); !errors.Is(err, ErrWrongPaymentMethod) {
		t.Errorf("verify midtrans donation: err = %v", err)
	}
}

func TestExpiredThenSettledGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)
	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 40_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.HandleNotification(ctx, nil, nil, notification(created.Donation.OrderID, "expire", 40_000)); err != nil {
		t.Fatal(err)
	}
	if d := f.donation(t, created.Donation.ID); d.Status != model.DonationStatusFailed {
		t.Fatalf("status after expire = %s", d.Status)
	}
	if _, err := f.svc.HandleNotification(ctx, nil, nil, notification(created.Donation.OrderID, "settlement", 40_000)); err != nil {
		t.Fatal(err)
	}
	if d := f.donation(t, created.Donation.ID); d.Status != model.DonationStatusNeedsReview {
		t.Errorf("status after late settlement = %s, want needs_review", d.Status)
	}
}

func TestVerifyStatusDowngradesUnconfirmedPayment(t *testing.T) {
	f := newFixture(t)
	f.svc.VerifyStatus = true
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)
	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 40_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}
	f.gateway.status[created.Donation.OrderID] = TransactionStatus{TransactionStatus: "pending"}

	res, err := f.svc.HandleNotification(ctx, nil, nil, notification(created.Donation.OrderID, "settlement", 40_000))
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomePending {
		t.Errorf("outcome = %s, want pending", res.Outcome)
	}
	if d := f.donation(t, created.Donation.ID); d.Status != model.DonationStatusPending {
		t.Errorf("status = %s, want pending", d.Status)
	}
}

func TestWalletDonation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)
	donor := uuid.New()

	if _, _, err := f.wallets.Credit(ctx, walletsvc.Movement{UserID: donor, Amount: 100_000, Reference: "topup:1"}); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, DonorID: &donor, Amount: 60_000, Method: model.PaymentMethodWallet})
	if err != nil {
		t.Fatal(err)
	}
	if res.Donation.Status != model.DonationStatusCompleted || res.Reconciliation == nil || res.Reconciliation.NewCurrentAmount != 60_000 {
		t.Errorf("wallet donation = %+v, reconciliation %+v", res.Donation, res.Reconciliation)
	}

	_, err = f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, DonorID: &donor, Amount: 60_000, Method: model.PaymentMethodWallet})
	if !errors.Is(err, walletsvc.ErrInsufficientBalance) {
		t.Errorf("overdraft: err = %v, want ErrInsufficientBalance", err)
	}

	sum, err := f.wallets.Get(ctx, donor, 10)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Wallet.Balance != 40_000 {
		t.Errorf("balance = %d, want 40000", sum.Wallet.Balance)
	}
	var n int64
	f.svc.DB.Model(&model.Donation{}).Where("payment_method = ?", "wallet").Count(&n)
	if n != 1 {
		t.Errorf("wallet donations stored = %d, want 1", n)
	}
	if got := f.current(t, c.ID).CurrentAmount; got != 60_000 {
		t.Errorf("current_amount = %d, want 60000", got)
	}

	if _, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 20_000, Method: model.PaymentMethodWallet}); !errors.Is(err, ErrWalletNeedsAccount) {
		t.Errorf("guest wallet donation: err = %v", err)
	}
}

func TestGatewayRefundOnCompletedDonationGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)

	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 150_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}
	orderID := created.Donation.OrderID
	if _, err := f.svc.HandleNotification(ctx, nil, nil, notification(orderID, "settlement", 150_000)); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.HandleNotification(ctx, nil, nil, notification(orderID, "chargeback", 150_000))
	if err != nil {
		t.Fatalf("chargeback: %v", err)
	}
	if res.Status != string(model.DonationStatusNeedsReview) {
		t.Errorf("result status = %s, want needs_review", res.Status)
	}

	d := f.donation(t, created.Donation.ID)
	if d.Status != model.DonationStatusNeedsReview || d.ReviewReason == nil || !strings.Contains(*d.ReviewReason, "chargeback") {
		t.Errorf("donation = %s reason %v", d.Status, d.ReviewReason)
	}
	if got := f.current(t, c.ID).CurrentAmount; got != 150_000 {
		t.Errorf("current_amount = %d, want 150000 kept for review", got)
	}
	prior, err := campaignsvc.PriorReconciliation(f.svc.DB, d.ID)
	if err != nil || prior == nil || prior.Amount != 150_000 {
		t.Fatalf("ledger entry = %+v, %v", prior, err)
	}

	campaigns := campaignsvc.NewCampaignService(f.svc.DB, f.svc.Reconciler, f.wallets, nil)
	report, err := campaigns.VerifyInvariant(ctx, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if report.Consistent || report.LedgerSum != 150_000 || report.CompletedDonationSum != 0 {
		t.Errorf("invariant report = %+v, want drift between ledger and completed donations", report)
	}
	if got := f.events.count(funding.EventDonationNeedsReview); got != 1 {
		t.Errorf("needs_review events = %d, want 1", got)
	}
}

func TestFlagForReviewOnlyMovesCompletedDonations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)

	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 30_000, Method: model.PaymentMethodBankTransfer})
	if err != nil {
		t.Fatal(err)
	}
	err = f.svc.FlagForReview(ctx, created.Donation.ID, "gateway reported refund on a completed donation")
	if !errors.Is(err, ErrDonationStatusChanged) {
		t.Fatalf("err = %v, want ErrDonationStatusChanged", err)
	}
	if d := f.donation(t, created.Donation.ID); d.Status != model.DonationStatusPending || d.ReviewReason != nil {
		t.Errorf("pending donation was changed: %s %v", d.Status, d.ReviewReason)
	}

	if err := f.svc.FlagForReview(ctx, uuid.New(), "x"); !errors.Is(err, ErrDonationNotFound) {
		t.Errorf("unknown donation: err = %v", err)
	}
}

func TestFractionalGrossAmountGoesToReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.campaign(t, 1_000_000, 0)

	created, err := f.svc.CreateDonation(ctx, CreateInput{CampaignID: c.ID, Amount: 40_000, Method: model.PaymentMethodMidtrans})
	if err != nil {
		t.Fatal(err)
	}
	n := notification(created.Donation.OrderID, "settlement", 40_000)
	n.GrossAmount = "40000.50"
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, testServerKey)

	res, err := f.svc.HandleNotification(ctx, nil, nil, n)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != string(model.DonationStatusNeedsReview) {
		t.Errorf("status = %s, want needs_review", res.Status)
	}
	if got := f.current(t, c.ID).CurrentAmount; got != 0 {
		t.Errorf("current_amount = %d, want 0", got)
	}
}
