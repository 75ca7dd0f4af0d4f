package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	walletmodel "kvtogether_backend/internals/features/wallets/model"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

var (
	ErrNotOwner      = errors.New("only the organizer or an admin may do this")
	ErrNotEditable   = errors.New("campaign can only be edited while draft or pending")
	ErrEndDatePassed = errors.New("campaign end date is not in the future")
	ErrStatusChanged = errors.New("campaign status changed concurrently")
	ErrNotCancelled  = errors.New("refunds run only for cancelled campaigns")
)

// WalletCreditor is the slice of the wallet service the refund workflow needs.
type WalletCreditor interface {
	CreditTx(ctx context.Context, tx *gorm.DB, m walletsvc.Movement) (walletmodel.WalletTransaction, bool, error)
}

// Actor is whoever triggers a lifecycle operation.
type Actor struct {
	ID    uuid.UUID
	Admin bool
}

func (a Actor) owns(c *model.Campaign) bool {
	return a.Admin || (a.ID != uuid.Nil && a.ID == c.OrganizerID)
}

type CampaignService struct {
	DB             *gorm.DB
	Reconciler     *Reconciler
	Wallets        WalletCreditor
	Events         EventPublisher
	RefundOnExpiry bool
	FeePercent     decimal.Decimal
	Now            func() time.Time
}

func NewCampaignService(db *gorm.DB, rec *Reconciler, wallets WalletCreditor, events EventPublisher) *CampaignService {
	if events == nil {
		events = nopPublisher{}
	}
	return &CampaignService{
		DB:         db,
		Reconciler: rec,
		Wallets:    wallets,
		Events:     events,
		FeePercent: decimal.Zero,
		Now:        time.Now,
	}
}

/* ===================== Reads ===================== */

func (s *CampaignService) Get(ctx context.Context, id uuid.UUID) (model.Campaign, error) {
	return loadCampaign(s.DB.WithContext(ctx), id)
}

func loadCampaign(db *gorm.DB, id uuid.UUID) (model.Campaign, error) {
	var c model.Campaign
	if err := db.Where("id = ?", id).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c, ErrCampaignNotFound
		}
		return c, fmt.Errorf("load campaign: %w", err)
	}
	return c, nil
}

type ListFilter struct {
	Statuses    []lifecycle.State
	OrganizerID *uuid.UUID
	Query       string
	Order       string
	Limit       int
	Offset      int
}

func (s *CampaignService) List(ctx context.Context, f ListFilter) ([]model.Campaign, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.Campaign{})
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}
	if f.OrganizerID != nil {
		q = q.Where("organizer_id = ?", *f.OrganizerID)
	}
	if f.Query != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+toLowerASCII(f.Query)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}
	order := f.Order
	if order == "" {
		order = "created_at DESC"
	}
	var rows []model.Campaign
	if err := q.Order(order).Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return rows, total, nil
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

/* ===================== Organizer operations ===================== */

// Create stores a new draft owned by organizerID. The end date, when set,
// must lie in the future.
func (s *CampaignService) Create(ctx context.Context, organizerID uuid.UUID, c *model.Campaign) error {
	if err := funding.ValidateTarget(c.TargetAmount); err != nil {
		return err
	}
	if c.EndDate != nil && !s.Now().Before(*c.EndDate) {
		return ErrEndDatePassed
	}
	c.ID = uuid.Nil
	c.OrganizerID = organizerID
	c.Status = lifecycle.Draft
	c.CurrentAmount = 0
	c.Version = 0
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	logging.Ctx(ctx).Info().
		Str("campaign_id", c.ID.String()).
		Str("organizer_id", organizerID.String()).
		Int64("target_amount", c.TargetAmount).
		Msg("campaign created")
	return nil
}

// Update applies column changes while the campaign is still editable.
// target_amount is frozen from approval onwards. A new end_date must lie in
// the future, as on Create.
func (s *CampaignService) Update(ctx context.Context, actor Actor, id uuid.UUID, changes map[string]any) (model.Campaign, error) {
	var out model.Campaign
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if !actor.owns(&c) {
			return ErrNotOwner
		}
		if !c.Status.Editable() {
			return ErrNotEditable
		}
		if t, ok := changes["target_amount"].(int64); ok {
			if err := funding.ValidateTarget(t); err != nil {
				return err
			}
		}
		if end, ok := changes["end_date"].(time.Time); ok && !s.Now().Before(end) {
			return ErrEndDatePassed
		}
		if len(changes) == 0 {
			out = c
			return nil
		}
		upd := map[string]any{"version": gorm.Expr("version + 1"), "updated_at": s.Now()}
		for k, v := range changes {
			upd[k] = v
		}
		res := tx.Model(&model.Campaign{}).
			Where("id = ? AND version = ? AND status IN ?", c.ID, c.Version, []string{string(lifecycle.Draft), string(lifecycle.Pending)}).
			Updates(upd)
		if res.Error != nil {
			return fmt.Errorf("update campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStatusChanged
		}
		out, err = loadCampaign(tx, id)
		return err
	})
	return out, err
}

func (s *CampaignService) Submit(ctx context.Context, actor Actor, id uuid.UUID) (model.Campaign, error) {
	return s.simpleTransition(ctx, id, lifecycle.Submit, func(c *model.Campaign, now time.Time) (map[string]any, error) {
		if !actor.owns(c) {
			return nil, ErrNotOwner
		}
		return map[string]any{"submitted_at": now}, nil
	})
}

/* ===================== Admin operations ===================== */

func (s *CampaignService) Approve(ctx context.Context, id uuid.UUID) (model.Campaign, error) {
	return s.simpleTransition(ctx, id, lifecycle.Approve, func(c *model.Campaign, now time.Time) (map[string]any, error) {
		if c.EndDate != nil && !now.Before(*c.EndDate) {
			return nil, ErrEndDatePassed
		}
		return map[string]any{"approved_at": now, "rejection_reason": nil}, nil
	})
}

func (s *CampaignService) Reject(ctx context.Context, id uuid.UUID, reason string) (model.Campaign, error) {
	return s.simpleTransition(ctx, id, lifecycle.Reject, func(c *model.Campaign, now time.Time) (map[string]any, error) {
		return map[string]any{"rejection_reason": reason}, nil
	})
}

func (s *CampaignService) simpleTransition(
	ctx context.Context,
	id uuid.UUID,
	ev lifecycle.Event,
	prepare func(c *model.Campaign, now time.Time) (map[string]any, error),
) (model.Campaign, error) {
	var (
		c    model.Campaign
		from lifecycle.State
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadCampaign(tx, id)
		if err != nil {
			return err
		}
		now := s.Now()
		extra, err := prepare(&c, now)
		if err != nil {
			return err
		}
		from = c.Status
		return s.transitionTx(ctx, tx, &c, ev, now, extra)
	})
	if err != nil {
		return c, err
	}
	metrics.RecordTransition(string(from), string(c.Status))
	return c, nil
}

// transitionTx moves c along ev with a conditional update on the current
// status so two concurrent transitions cannot both succeed.
func (s *CampaignService) transitionTx(ctx context.Context, tx *gorm.DB, c *model.Campaign, ev lifecycle.Event, now time.Time, extra map[string]any) error {
	to, err := lifecycle.Next(c.Status, ev)
	if err != nil {
		return err
	}
	upd := map[string]any{
		"status":     string(to),
		"version":    gorm.Expr("version + 1"),
		"updated_at": now,
	}
	for k, v := range extra {
		upd[k] = v
	}
	res := tx.WithContext(ctx).Model(&model.Campaign{}).
		Where("id = ? AND status = ?", c.ID, string(c.Status)).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("transition campaign: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}

	logging.Ctx(ctx).Info().
		Str("campaign_id", c.ID.String()).
		Str("from", string(c.Status)).
		Str("to", string(to)).
		Str("event", string(ev)).
		Msg("campaign transition")

	fresh, err := loadCampaign(tx, c.ID)
	if err != nil {
		return err
	}
	*c = fresh
	return nil
}

/* ===================== Ledger & audit ===================== */

func (s *CampaignService) Ledger(ctx context.Context, id uuid.UUID, limit, offset int) ([]model.CampaignReconciliation, int64, error) {
	db := s.DB.WithContext(ctx)
	if _, err := loadCampaign(db, id); err != nil {
		return nil, 0, err
	}
	q := db.Model(&model.CampaignReconciliation{}).Where("campaign_id = ?", id)
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count ledger: %w", err)
	}
	var rows []model.CampaignReconciliation
	if err := q.Order("created_at ASC, new_current_amount ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list ledger: %w", err)
	}
	return rows, total, nil
}

// InvariantReport compares the stored running total with what the ledger
// and the completed donations say it should be.
type InvariantReport struct {
	CampaignID           uuid.UUID       `json:"campaign_id"`
	Status               lifecycle.State `json:"status"`
	CurrentAmount        int64           `json:"current_amount"`
	Ceiling              int64           `json:"ceiling"`
	LedgerSum            int64           `json:"ledger_sum"`
	LedgerEntries        int64           `json:"ledger_entries"`
	CompletedDonationSum int64           `json:"completed_donation_sum"`
	WithinCeiling        bool            `json:"within_ceiling"`
	Consistent           bool            `json:"consistent"`
	// Retired is set once refunds ran; current_amount is frozen from then on.
	Retired bool `json:"retired"`
}

func (s *CampaignService) VerifyInvariant(ctx context.Context, id uuid.UUID) (InvariantReport, error) {
	db := s.DB.WithContext(ctx)
	c, err := loadCampaign(db, id)
	if err != nil {
		return InvariantReport{}, err
	}

	var ledger struct {
		Total int64
		Count int64
	}
	if err := db.Model(&model.CampaignReconciliation{}).
		Select("COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count").
		Where("campaign_id = ?", id).
		Scan(&ledger).Error; err != nil {
		return InvariantReport{}, fmt.Errorf("sum ledger: %w", err)
	}

	var completed int64
	if err := db.Table("donations").
		Select("COALESCE(SUM(amount), 0)").
		Where("campaign_id = ? AND status = ?", id, "completed").
		Scan(&completed).Error; err != nil {
		return InvariantReport{}, fmt.Errorf("sum donations: %w", err)
	}

	r := InvariantReport{
		CampaignID:           c.ID,
		Status:               c.Status,
		CurrentAmount:        c.CurrentAmount,
		Ceiling:              c.Ceiling(),
		LedgerSum:            ledger.Total,
		LedgerEntries:        ledger.Count,
		CompletedDonationSum: completed,
		WithinCeiling:        c.CurrentAmount >= 0 && c.CurrentAmount <= c.Ceiling(),
		Retired:              c.Status == lifecycle.Cancelled && c.RefundedAt != nil,
	}
	if r.Retired {
		r.Consistent = r.LedgerSum == r.CurrentAmount
	} else {
		r.Consistent = r.LedgerSum == r.CurrentAmount && r.CompletedDonationSum == r.CurrentAmount
	}
	if !r.Consistent || !r.WithinCeiling {
		logging.Ctx(ctx).Error().
			Str("campaign_id", c.ID.String()).
			Int64("current_amount", c.CurrentAmount).
			Int64("ledger_sum", r.LedgerSum).
			Int64("completed_donation_sum", r.CompletedDonationSum).
			Msg("campaign ledger invariant broken")
	}
	return r, nil
}

/* ===================== Funding summary ===================== */

type FundingSummary struct {
	CampaignID      uuid.UUID       `json:"campaign_id"`
	Status          lifecycle.State `json:"status"`
	TargetAmount    int64           `json:"target_amount"`
	CurrentAmount   int64           `json:"current_amount"`
	Ceiling         int64           `json:"ceiling"`
	Remaining       int64           `json:"remaining"`
	MaxAcceptable   int64           `json:"max_acceptable"`
	ProgressPercent decimal.Decimal `json:"progress_percent"`
	PlatformFee     int64           `json:"platform_fee"`
	NetDisbursement int64           `json:"net_disbursement"`
	Quote           *funding.Quote  `json:"quote,omitempty"`
}

// FundingSummary reports progress and the fee split. The fee is floored to
// whole VND so the organizer never receives less than the rounding.
func (s *CampaignService) FundingSummary(ctx context.Context, id uuid.UUID, requested *int64) (FundingSummary, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return FundingSummary{}, err
	}
	st := c.FundingState()
	current := decimal.NewFromInt(c.CurrentAmount)
	fee := current.Mul(s.FeePercent).Div(decimal.NewFromInt(100)).Floor().IntPart()

	out := FundingSummary{
		CampaignID:      c.ID,
		Status:          c.Status,
		TargetAmount:    c.TargetAmount,
		CurrentAmount:   c.CurrentAmount,
		Ceiling:         c.Ceiling(),
		Remaining:       max(0, c.TargetAmount-c.CurrentAmount),
		MaxAcceptable:   funding.MaxAcceptable(st),
		ProgressPercent: current.Mul(decimal.NewFromInt(100)).Div(decimal.NewFromInt(c.TargetAmount)).Round(2),
		PlatformFee:     fee,
		NetDisbursement: c.CurrentAmount - fee,
	}
	if requested != nil {
		q := funding.QuoteFor(st, *requested)
		out.Quote = &q
	}
	return out, nil
}
