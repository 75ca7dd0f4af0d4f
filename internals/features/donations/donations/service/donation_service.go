package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	campaignmodel "kvtogether_backend/internals/features/campaigns/campaigns/model"
	campaignsvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/donations/donations/model"
	gesvc "kvtogether_backend/internals/features/donations/gateway_events/service"
	walletmodel "kvtogether_backend/internals/features/wallets/model"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

var (
	ErrDonationNotFound   = errors.New("donation not found")
	ErrDonationNotPending = errors.New("donation is no longer pending")
	ErrWalletNeedsAccount = errors.New("wallet donations require a signed-in donor")
	ErrWrongPaymentMethod = errors.New("donation was not made with this payment method")
	ErrUnknownMethod      = errors.New("unknown payment method")

	ErrDonationStatusChanged = errors.New("donation status changed")
)

// WalletDebitor is the slice of the wallet service wallet donations need.
type WalletDebitor interface {
	DebitTx(ctx context.Context, tx *gorm.DB, m walletsvc.Movement) (walletmodel.WalletTransaction, bool, error)
}

type DonationService struct {
	DB            *gorm.DB
	Reconciler    *campaignsvc.Reconciler
	Wallets       WalletDebitor
	Gateway       PaymentGateway
	GatewayEvents *gesvc.GatewayEventService
	Events        campaignsvc.EventPublisher

	MinDonation  int64
	MaxRetries   int
	ServerKey    string
	VerifyStatus bool
	Now          func() time.Time
}

func NewDonationService(db *gorm.DB, rec *campaignsvc.Reconciler, wallets WalletDebitor, gateway PaymentGateway, events *gesvc.GatewayEventService) *DonationService {
	return &DonationService{
		DB:            db,
		Reconciler:    rec,
		Wallets:       wallets,
		Gateway:       gateway,
		GatewayEvents: events,
		Events:        rec.Events,
		MinDonation:   20_000,
		MaxRetries:    rec.MaxRetries,
		Now:           time.Now,
	}
}

// GenOrderID returns a gateway order id that is unique and readable in
// the Midtrans dashboard.
func GenOrderID(now time.Time) string {
	return fmt.Sprintf("KVT-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

/* ===================== Intake ===================== */

type CreateInput struct {
	CampaignID uuid.UUID
	DonorID    *uuid.UUID
	DonorName  string
	DonorEmail string
	Message    string
	Amount     int64
	Method     model.PaymentMethod
}

type CreateResult struct {
	Donation       model.Donation      `json:"donation"`
	SnapToken      string              `json:"snap_token,omitempty"`
	RedirectURL    string              `json:"redirect_url,omitempty"`
	Reconciliation *campaignsvc.Result `json:"reconciliation,omitempty"`
}

// CreateDonation runs the pre-payment guards and starts payment. Amounts
// above what the campaign can still take are refused here, before any money
// moves, with the acceptable maximum in the error.
func (s *DonationService) CreateDonation(ctx context.Context, in CreateInput) (CreateResult, error) {
	switch in.Method {
	case model.PaymentMethodMidtrans:
		if s.Gateway == nil {
			return CreateResult{}, ErrGatewayUnavailable
		}
	case model.PaymentMethodWallet:
		if in.DonorID == nil {
			return CreateResult{}, ErrWalletNeedsAccount
		}
	case model.PaymentMethodBankTransfer:
	default:
		return CreateResult{}, ErrUnknownMethod
	}

	now := s.Now()
	var c campaignmodel.Campaign
	if err := s.DB.WithContext(ctx).Where("id = ?", in.CampaignID).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CreateResult{}, campaignsvc.ErrCampaignNotFound
		}
		return CreateResult{}, fmt.Errorf("load campaign: %w", err)
	}
	if err := funding.CheckIntake(c.FundingState(), funding.Intake{
		Amount:  in.Amount,
		Minimum: s.MinDonation,
		EndDate: c.EndDate,
		Now:     now,
	}); err != nil {
		logging.Ctx(ctx).Info().
			Str("campaign_id", c.ID.String()).
			Int64("amount", in.Amount).
			Err(err).
			Msg("donation declined before payment")
		return CreateResult{}, err
	}

	d := model.Donation{
		CampaignID:    c.ID,
		DonorID:       in.DonorID,
		DonorName:     defaultName(in.DonorName),
		Amount:        in.Amount,
		Status:        model.DonationStatusPending,
		PaymentMethod: in.Method,
		OrderID:       GenOrderID(now),
	}
	if e := strings.TrimSpace(in.DonorEmail); e != "" {
		d.DonorEmail = &e
	}
	if m := strings.TrimSpace(in.Message); m != "" {
		d.Message = &m
	}

	switch in.Method {
	case model.PaymentMethodWallet:
		return s.createWalletDonation(ctx, d)
	case model.PaymentMethodMidtrans:
		return s.createMidtransDonation(ctx, d, c.Title)
	default:
		if err := s.DB.WithContext(ctx).Create(&d).Error; err != nil {
			return CreateResult{}, fmt.Errorf("create donation: %w", err)
		}
		return CreateResult{Donation: d}, nil
	}
}

// AnonymousDonorName stands in for donors who leave the name blank.
const AnonymousDonorName = "Anonymous"

func defaultName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return AnonymousDonorName
	}
	return name
}

func (s *DonationService) createMidtransDonation(ctx context.Context, d model.Donation, title string) (CreateResult, error) {
	db := s.DB.WithContext(ctx)
	if err := db.Create(&d).Error; err != nil {
		return CreateResult{}, fmt.Errorf("create donation: %w", err)
	}
	email := ""
	if d.DonorEmail != nil {
		email = *d.DonorEmail
	}
	snapRes, err := s.Gateway.CreateSnap(ctx, SnapRequest{
		OrderID:    d.OrderID,
		Amount:     d.Amount,
		DonorName:  d.DonorName,
		DonorEmail: email,
		ItemName:   "Donation: " + title,
	})
	if err != nil {
		db.Model(&model.Donation{}).Where("id = ? AND status = ?", d.ID, string(model.DonationStatusPending)).
			Update("status", string(model.DonationStatusFailed))
		logging.Ctx(ctx).Error().Err(err).Str("order_id", d.OrderID).Msg("snap token request failed")
		return CreateResult{}, fmt.Errorf("create payment: %w", err)
	}
	if err := db.Model(&model.Donation{}).Where("id = ?", d.ID).Updates(map[string]any{
		"payment_token": snapRes.Token,
		"redirect_url":  snapRes.RedirectURL,
	}).Error; err != nil {
		return CreateResult{}, fmt.Errorf("store payment token: %w", err)
	}
	d.PaymentToken = &snapRes.Token
	d.RedirectURL = &snapRes.RedirectURL
	return CreateResult{Donation: d, SnapToken: snapRes.Token, RedirectURL: snapRes.RedirectURL}, nil
}

// createWalletDonation debits, completes and reconciles in one transaction:
// if the ledger refuses the amount, the debit is rolled back with it.
func (s *DonationService) createWalletDonation(ctx context.Context, d model.Donation) (CreateResult, error) {
	started := time.Now()
	var res campaignsvc.Result
	base := d
	err := campaignsvc.RetryOnConflict(ctx, s.MaxRetries, func() error {
		d = base
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&d).Error; err != nil {
				return fmt.Errorf("create donation: %w", err)
			}
			if _, _, err := s.Wallets.DebitTx(ctx, tx, walletsvc.Movement{
				UserID:      *d.DonorID,
				Amount:      d.Amount,
				Reference:   "donation:" + d.ID.String(),
				Description: "donation " + d.OrderID,
			}); err != nil {
				return err
			}
			now := s.Now()
			if err := markCompleted(tx, &d, d.Amount, "wallet", now); err != nil {
				return err
			}
			var err error
			res, err = s.Reconciler.ReconcileTx(ctx, tx, campaignsvc.Input{
				CampaignID: d.CampaignID,
				DonationID: d.ID,
				Amount:     d.Amount,
				Source:     string(model.PaymentMethodWallet),
			})
			return err
		})
	})
	if err != nil {
		metrics.RecordReconciliation(campaignsvc.OutcomeLabel(err), d.Amount, started)
		return CreateResult{}, err
	}
	metrics.RecordReconciliation("applied", d.Amount, started)
	s.Reconciler.PublishResult(ctx, res)
	return CreateResult{Donation: d, Reconciliation: &res}, nil
}

/* ===================== Completion ===================== */

type CompleteInput struct {
	DonationID  uuid.UUID
	PaidAmount  int64
	Source      string
	PaymentType string
	PaidAt      *time.Time
}

type CompleteResult struct {
	Donation       model.Donation      `json:"donation"`
	Reconciliation *campaignsvc.Result `json:"reconciliation,omitempty"`
	NeedsReview    bool                `json:"needs_review"`
	Duplicate      bool                `json:"duplicate"`
}

// CompleteDonation applies money that has already been collected. It never
// drops value: anything the ledger cannot take as-is (amount mismatch, the
// campaign filled or closed meanwhile) lands in needs_review instead.
func (s *DonationService) CompleteDonation(ctx context.Context, in CompleteInput) (CompleteResult, error) {
	started := time.Now()
	var (
		out      CompleteResult
		review   string
		campaign uuid.UUID
	)
	err := campaignsvc.RetryOnConflict(ctx, s.MaxRetries, func() error {
		out, review, campaign = CompleteResult{}, "", uuid.Nil
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var d model.Donation
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", in.DonationID).Take(&d).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrDonationNotFound
				}
				return fmt.Errorf("load donation: %w", err)
			}
			campaign = d.CampaignID

			switch d.Status {
			case model.DonationStatusCompleted:
				out.Donation, out.Duplicate = d, true
				prior, err := campaignsvc.PriorReconciliation(tx, d.ID)
				if err != nil {
					return err
				}
				out.Reconciliation = prior
				return nil
			case model.DonationStatusFailed, model.DonationStatusCancelled:
				review = fmt.Sprintf("payment of %d settled after the donation was %s", in.PaidAmount, d.Status)
			case model.DonationStatusPending:
				if in.PaidAmount != d.Amount {
					review = fmt.Sprintf("paid amount %d differs from requested amount %d", in.PaidAmount, d.Amount)
				}
			default:
				return fmt.Errorf("%w: status %s", ErrDonationNotPending, d.Status)
			}

			now := s.Now()
			if review != "" {
				return s.markReviewTx(tx, &d, in, review, now)
			}

			if err := markCompleted(tx, &d, in.PaidAmount, in.PaymentType, paidAt(in.PaidAt, now)); err != nil {
				return err
			}
			res, err := s.Reconciler.ReconcileTx(ctx, tx, campaignsvc.Input{
				CampaignID: d.CampaignID,
				DonationID: d.ID,
				Amount:     d.Amount,
				Source:     in.Source,
			})
			switch {
			case err == nil:
				out.Donation, out.Reconciliation = d, &res
				return nil
			case errors.Is(err, funding.ErrDuplicateReconciliation):
				out.Donation, out.Reconciliation, out.Duplicate = d, &res, true
				return nil
			case funding.IsBusinessRejection(err), errors.Is(err, funding.ErrInvalidState):
				review = "ledger refused collected payment: " + err.Error()
				return s.markReviewTx(tx, &d, in, review, now)
			default:
				return err
			}
		})
	})
	if err != nil {
		if campaign != uuid.Nil {
			metrics.RecordReconciliation(campaignsvc.OutcomeLabel(err), in.PaidAmount, started)
		}
		return CompleteResult{}, err
	}

	switch {
	case review != "":
		out.NeedsReview = true
		metrics.DonationsNeedingReview.WithLabelValues(reviewLabel(review)).Inc()
		logging.Ctx(ctx).Warn().
			Str("donation_id", in.DonationID.String()).
			Str("campaign_id", campaign.String()).
			Int64("paid_amount", in.PaidAmount).
			Str("reason", review).
			Msg("collected payment routed to manual review")
		ev := funding.NewEvent(funding.EventDonationNeedsReview, campaign)
		ev.DonationID = &in.DonationID
		ev.Reason = review
		s.publish(ctx, ev)
	case out.Duplicate:
		metrics.RecordReconciliation("duplicate", in.PaidAmount, started)
	default:
		metrics.RecordReconciliation("applied", in.PaidAmount, started)
		if out.Reconciliation != nil {
			s.Reconciler.PublishResult(ctx, *out.Reconciliation)
		}
	}
	return out, nil
}

func (s *DonationService) publish(ctx context.Context, ev funding.Event) {
	if s.Events != nil {
		s.Events.Publish(ctx, ev)
	}
}

func paidAt(t *time.Time, now time.Time) time.Time {
	if t != nil {
		return *t
	}
	return now
}

func markCompleted(tx *gorm.DB, d *model.Donation, paid int64, paymentType string, at time.Time) error {
	upd := map[string]any{
		"status":       string(model.DonationStatusCompleted),
		"paid_amount":  paid,
		"paid_at":      at,
		"completed_at": at,
		"updated_at":   at,
	}
	if paymentType != "" {
		upd["payment_type"] = paymentType
	}
	res := tx.Model(&model.Donation{}).
		Where("id = ? AND status = ?", d.ID, string(model.DonationStatusPending)).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("complete donation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return funding.ErrConcurrencyConflict
	}
	d.Status = model.DonationStatusCompleted
	d.PaidAmount = &paid
	d.PaidAt = &at
	d.CompletedAt = &at
	if paymentType != "" {
		d.PaymentType = &paymentType
	}
	return nil
}

func (s *DonationService) markReviewTx(tx *gorm.DB, d *model.Donation, in CompleteInput, reason string, now time.Time) error {
	at := paidAt(in.PaidAt, now)
	upd := map[string]any{
		"status":        string(model.DonationStatusNeedsReview),
		"review_reason": reason,
		"paid_amount":   in.PaidAmount,
		"paid_at":       at,
		"completed_at":  nil,
		"updated_at":    now,
	}
	if in.PaymentType != "" {
		upd["payment_type"] = in.PaymentType
	}
	if err := tx.Model(&model.Donation{}).Where("id = ?", d.ID).Updates(upd).Error; err != nil {
		return fmt.Errorf("route donation to review: %w", err)
	}
	d.Status = model.DonationStatusNeedsReview
	d.ReviewReason = &reason
	d.PaidAmount = &in.PaidAmount
	d.PaidAt = &at
	d.CompletedAt = nil
	return nil
}

func reviewLabel(reason string) string {
	switch {
	case strings.HasPrefix(reason, "paid amount"):
		return "amount_mismatch"
	case strings.HasPrefix(reason, "ledger refused"):
		return "ledger_refused"
	case strings.HasPrefix(reason, "gateway reported"):
		return "gateway_refund"
	case strings.HasPrefix(reason, "unreadable gross amount"):
		return "amount_unreadable"
	default:
		return "late_settlement"
	}
}

/* ===================== Failure & review ===================== */

// FailDonation closes a pending donation the gateway gave up on. Completed
// donations are left alone.
func (s *DonationService) FailDonation(ctx context.Context, id uuid.UUID, status model.DonationStatus) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&model.Donation{}).
		Where("id = ? AND status = ?", id, string(model.DonationStatusPending)).
		Updates(map[string]any{"status": string(status), "updated_at": s.Now()})
	if res.Error != nil {
		return false, fmt.Errorf("fail donation: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FlagForReview moves a completed donation to needs_review, e.g. when the
// gateway reports a refund or chargeback. Its ledger entry is kept.
func (s *DonationService) FlagForReview(ctx context.Context, id uuid.UUID, reason string) error {
	return s.flagForReview(ctx, id, model.DonationStatusCompleted, reason)
}

func (s *DonationService) flagForReview(ctx context.Context, id uuid.UUID, from model.DonationStatus, reason string) error {
	var d model.Donation
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&d).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDonationNotFound
			}
			return fmt.Errorf("load donation: %w", err)
		}
		res := tx.Model(&model.Donation{}).
			Where("id = ? AND status = ?", id, string(from)).
			Updates(map[string]any{
				"status":        string(model.DonationStatusNeedsReview),
				"review_reason": reason,
				"updated_at":    s.Now(),
			})
		if res.Error != nil {
			return fmt.Errorf("route donation to review: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: status %s, expected %s", ErrDonationStatusChanged, d.Status, from)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.DonationsNeedingReview.WithLabelValues(reviewLabel(reason)).Inc()
	logging.Ctx(ctx).Warn().
		Str("donation_id", d.ID.String()).
		Str("campaign_id", d.CampaignID.String()).
		Str("reason", reason).
		Msg("donation routed to manual review")
	ev := funding.NewEvent(funding.EventDonationNeedsReview, d.CampaignID)
	ev.DonationID = &d.ID
	ev.Reason = reason
	s.publish(ctx, ev)
	return nil
}

// VerifyBankTransfer is the admin confirmation of an offline transfer.
func (s *DonationService) VerifyBankTransfer(ctx context.Context, id uuid.UUID, received int64) (CompleteResult, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return CompleteResult{}, err
	}
	if d.PaymentMethod != model.PaymentMethodBankTransfer {
		return CompleteResult{}, ErrWrongPaymentMethod
	}
	return s.CompleteDonation(ctx, CompleteInput{
		DonationID:  id,
		PaidAmount:  received,
		Source:      string(model.PaymentMethodBankTransfer),
		PaymentType: "bank_transfer",
	})
}

/* ===================== Reads ===================== */

func (s *DonationService) Get(ctx context.Context, id uuid.UUID) (model.Donation, error) {
	var d model.Donation
	err := s.DB.WithContext(ctx).Where("id = ?", id).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d, ErrDonationNotFound
	}
	if err != nil {
		return d, fmt.Errorf("load donation: %w", err)
	}
	return d, nil
}

func (s *DonationService) GetByOrderID(ctx context.Context, orderID string) (model.Donation, error) {
	var d model.Donation
	err := s.DB.WithContext(ctx).Where("order_id = ?", orderID).Take(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d, ErrDonationNotFound
	}
	if err != nil {
		return d, fmt.Errorf("load donation: %w", err)
	}
	return d, nil
}

type ListFilter struct {
	CampaignID *uuid.UUID
	DonorID    *uuid.UUID
	Status     model.DonationStatus
	Method     model.PaymentMethod
	Order      string
	Limit      int
	Offset     int
}

func (s *DonationService) List(ctx context.Context, f ListFilter) ([]model.Donation, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.Donation{})
	if f.CampaignID != nil {
		q = q.Where("campaign_id = ?", *f.CampaignID)
	}
	if f.DonorID != nil {
		q = q.Where("donor_id = ?", *f.DonorID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Method != "" {
		q = q.Where("payment_method = ?", string(f.Method))
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count donations: %w", err)
	}
	order := f.Order
	if order == "" {
		order = "created_at DESC"
	}
	var rows []model.Donation
	if err := q.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list donations: %w", err)
	}
	return rows, total, nil
}
