package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

var ErrCampaignNotFound = errors.New("campaign not found")

// EventPublisher receives lifecycle events after the ledger change commits.
type EventPublisher interface {
	Publish(ctx context.Context, ev funding.Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, funding.Event) {}

// Reconciler is the only writer of campaigns.current_amount.
type Reconciler struct {
	DB         *gorm.DB
	MaxRetries int
	Events     EventPublisher
}

func NewReconciler(db *gorm.DB, maxRetries int, events EventPublisher) *Reconciler {
	if events == nil {
		events = nopPublisher{}
	}
	return &Reconciler{DB: db, MaxRetries: maxRetries, Events: events}
}

type Input struct {
	CampaignID uuid.UUID
	DonationID uuid.UUID
	Amount     int64
	Source     string
}

type Result struct {
	CampaignID       uuid.UUID         `json:"campaign_id"`
	DonationID       uuid.UUID         `json:"donation_id"`
	Amount           int64             `json:"amount"`
	NewCurrentAmount int64             `json:"new_current_amount"`
	StatusChanged    bool              `json:"status_changed"`
	Status           lifecycle.State   `json:"status"`
	TriggeredEvent   funding.EventKind `json:"triggered_event,omitempty"`
	Duplicate        bool              `json:"duplicate"`

	event *funding.Event
}

// Event is the lifecycle event produced by this reconciliation, if any.
func (r Result) Event() *funding.Event { return r.event }

func resultFromRow(row model.CampaignReconciliation) Result {
	res := Result{
		CampaignID:       row.CampaignID,
		DonationID:       row.DonationID,
		Amount:           row.Amount,
		NewCurrentAmount: row.NewCurrentAmount,
		StatusChanged:    row.StatusChanged,
		Status:           lifecycle.Active,
		Duplicate:        true,
	}
	if row.TriggeredEvent != nil {
		res.TriggeredEvent = funding.EventKind(*row.TriggeredEvent)
	}
	if row.StatusChanged {
		res.Status = lifecycle.Completed
	}
	return res
}

// PriorReconciliation returns the ledger entry already written for the
// donation, or nil when it was never applied.
func PriorReconciliation(tx *gorm.DB, donationID uuid.UUID) (*Result, error) {
	var rows []model.CampaignReconciliation
	if err := tx.Where("donation_id = ?", donationID).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup reconciliation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	res := resultFromRow(rows[0])
	return &res, nil
}

// Reconcile applies one confirmed donation in its own transaction, retrying
// on concurrency conflicts. A donation that was already applied returns the
// prior result with Duplicate set and no error.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (Result, error) {
	started := time.Now()
	var res Result
	err := RetryOnConflict(ctx, r.MaxRetries, func() error {
		return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			res, err = r.ReconcileTx(ctx, tx, in)
			return err
		})
	})
	if errors.Is(err, funding.ErrDuplicateReconciliation) {
		metrics.RecordReconciliation("duplicate", in.Amount, started)
		return res, nil
	}
	if err != nil {
		metrics.RecordReconciliation(OutcomeLabel(err), in.Amount, started)
		return res, err
	}
	metrics.RecordReconciliation("applied", in.Amount, started)
	r.PublishResult(ctx, res)
	return res, nil
}

// ReconcileTx applies the donation inside the caller's transaction. On
// funding.ErrDuplicateReconciliation the returned Result is the prior one and
// nothing was written. Any other error leaves the caller to roll back.
func (r *Reconciler) ReconcileTx(ctx context.Context, tx *gorm.DB, in Input) (Result, error) {
	db := tx.WithContext(ctx)

	prior, err := PriorReconciliation(db, in.DonationID)
	if err != nil {
		return Result{}, err
	}
	if prior != nil {
		if prior.CampaignID != in.CampaignID {
			return *prior, fmt.Errorf("donation %s belongs to campaign %s: %w",
				in.DonationID, prior.CampaignID, funding.ErrDuplicateReconciliation)
		}
		return *prior, funding.ErrDuplicateReconciliation
	}

	var c model.Campaign
	if err := db.Where("id = ?", in.CampaignID).Take(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrCampaignNotFound
		}
		return Result{}, fmt.Errorf("load campaign: %w", err)
	}

	d, err := funding.Plan(c.FundingState(), in.Amount)
	if err != nil {
		return Result{}, err
	}

	now := time.Now()
	upd := db.Model(&model.Campaign{}).
		Where("id = ? AND status = ? AND version = ?", c.ID, lifecycle.Active, c.Version).
		Where("current_amount + ? <= target_amount * 105 / 100", in.Amount).
		Updates(map[string]any{
			"current_amount": gorm.Expr("current_amount + ?", in.Amount),
			"version":        gorm.Expr("version + 1"),
			"status":         gorm.Expr("CASE WHEN current_amount + ? >= target_amount THEN ? ELSE status END", in.Amount, string(lifecycle.Completed)),
			"completed_at":   gorm.Expr("CASE WHEN current_amount + ? >= target_amount THEN ? ELSE completed_at END", in.Amount, now),
			"updated_at":     now,
		})
	if upd.Error != nil {
		return Result{}, fmt.Errorf("apply donation to campaign: %w", upd.Error)
	}
	if upd.RowsAffected == 0 {
		return Result{}, funding.ErrConcurrencyConflict
	}

	row := model.CampaignReconciliation{
		CampaignID:       c.ID,
		DonationID:       in.DonationID,
		Amount:           in.Amount,
		PreviousAmount:   d.PreviousCurrent,
		NewCurrentAmount: d.NewCurrent,
		StatusChanged:    d.Completes,
		Source:           helper.DefaultString(in.Source, "unknown"),
		CampaignVersion:  c.Version + 1,
	}
	if d.Event != "" {
		ev := string(d.Event)
		row.TriggeredEvent = &ev
	}
	ins := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "donation_id"}}, DoNothing: true}).Create(&row)
	if ins.Error != nil {
		return Result{}, fmt.Errorf("record reconciliation: %w", ins.Error)
	}
	if ins.RowsAffected == 0 {
		// Lost a race on the same donation; the retry will see the winner's row.
		return Result{}, funding.ErrConcurrencyConflict
	}

	res := Result{
		CampaignID:       c.ID,
		DonationID:       in.DonationID,
		Amount:           in.Amount,
		NewCurrentAmount: d.NewCurrent,
		StatusChanged:    d.Completes,
		Status:           lifecycle.Active,
		TriggeredEvent:   d.Event,
	}
	if d.Completes {
		res.Status = lifecycle.Completed
		ev := funding.NewEvent(funding.EventCampaignCompleted, c.ID)
		ev.OrganizerID = &c.OrganizerID
		ev.DonationID = &in.DonationID
		ev.CurrentAmount = d.NewCurrent
		ev.TargetAmount = c.TargetAmount
		res.event = &ev
	}

	logging.Ctx(ctx).Info().
		Str("campaign_id", c.ID.String()).
		Str("donation_id", in.DonationID.String()).
		Int64("amount", in.Amount).
		Int64("current_amount", d.NewCurrent).
		Bool("completed", d.Completes).
		Msg("donation reconciled")
	return res, nil
}

// PublishResult forwards the completion event and records the transition.
// Call it only after the surrounding transaction committed.
func (r *Reconciler) PublishResult(ctx context.Context, res Result) {
	if res.Duplicate || res.event == nil {
		return
	}
	metrics.RecordTransition(string(lifecycle.Active), string(lifecycle.Completed))
	r.Events.Publish(ctx, *res.event)
}

// OutcomeLabel is the metrics label for a failed reconciliation.
func OutcomeLabel(err error) string {
	switch {
	case errors.Is(err, funding.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, funding.ErrInvalidState):
		return "invalid_state"
	case funding.IsBusinessRejection(err):
		return "rejected"
	case errors.Is(err, ErrCampaignNotFound):
		return "not_found"
	default:
		return "error"
	}
}
