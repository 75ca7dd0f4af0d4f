package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

type ExpiryReport struct {
	Checked     int         `json:"checked"`
	EndedIDs    []uuid.UUID `json:"ended_ids"`
	RefundedIDs []uuid.UUID `json:"refunded_ids"`
	Skipped     int         `json:"skipped"`
}

// Expire closes every active campaign whose end_date is at or before now.
// The target was not met (a met target completes the campaign during
// reconciliation), so the outcome follows RefundOnExpiry.
func (s *CampaignService) Expire(ctx context.Context, now time.Time) (ExpiryReport, error) {
	report := ExpiryReport{EndedIDs: []uuid.UUID{}, RefundedIDs: []uuid.UUID{}}

	var ids []uuid.UUID
	if err := s.DB.WithContext(ctx).Model(&model.Campaign{}).
		Where("status = ? AND end_date IS NOT NULL AND end_date <= ?", string(lifecycle.Active), now).
		Order("end_date ASC").
		Pluck("id", &ids).Error; err != nil {
		return report, fmt.Errorf("find expired campaigns: %w", err)
	}
	report.Checked = len(ids)

	var errs []error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		c, refunds, err := s.expireOne(ctx, id, now)
		switch {
		case errors.Is(err, ErrStatusChanged), errors.Is(err, lifecycle.ErrInvalidTransition):
			report.Skipped++
			continue
		case err != nil:
			errs = append(errs, fmt.Errorf("expire campaign %s: %w", id, err))
			continue
		}
		if c.Status == lifecycle.Cancelled {
			report.RefundedIDs = append(report.RefundedIDs, c.ID)
			s.afterCancel(ctx, c, refunds, "end date passed with target unmet")
			continue
		}
		report.EndedIDs = append(report.EndedIDs, c.ID)
		metrics.RecordTransition(string(lifecycle.Active), string(c.Status))
		ev := funding.NewEvent(funding.EventCampaignEnded, c.ID)
		ev.OrganizerID = &c.OrganizerID
		ev.CurrentAmount = c.CurrentAmount
		ev.TargetAmount = c.TargetAmount
		s.Events.Publish(ctx, ev)
	}
	return report, errors.Join(errs...)
}

func (s *CampaignService) expireOne(ctx context.Context, id uuid.UUID, now time.Time) (model.Campaign, RefundReport, error) {
	var (
		c       model.Campaign
		refunds RefundReport
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Status != lifecycle.Active || !c.Ended(now) {
			return ErrStatusChanged
		}
		ev := lifecycle.ExpiryEvent(s.RefundOnExpiry)
		extra := map[string]any{"ended_at": now}
		if ev == lifecycle.ExpireRefund {
			extra["cancelled_at"] = now
			extra["cancel_reason"] = "end date passed with target unmet"
		}
		if err := s.transitionTx(ctx, tx, &c, ev, now, extra); err != nil {
			return err
		}
		if ev == lifecycle.ExpireRefund {
			refunds, err = s.refundTx(ctx, tx, &c, now)
		}
		return err
	})
	return c, refunds, err
}

// ExpirySweeper runs Expire on a ticker. It is a suture.Service.
type ExpirySweeper struct {
	Campaigns *CampaignService
	Interval  time.Duration
}

func NewExpirySweeper(campaigns *CampaignService, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirySweeper{Campaigns: campaigns, Interval: interval}
}

func (w *ExpirySweeper) Serve(ctx context.Context) error {
	log := logging.WithComponent("expiry-sweeper")
	log.Info().Dur("interval", w.Interval).Msg("expiry sweeper started")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			log.Info().Msg("expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ExpirySweeper) sweep(ctx context.Context) {
	log := logging.WithComponent("expiry-sweeper")
	report, err := w.Campaigns.Expire(ctx, w.Campaigns.Now())
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("expiry sweep failed")
	}
	if n := len(report.EndedIDs) + len(report.RefundedIDs); n > 0 {
		log.Info().
			Int("ended_partial", len(report.EndedIDs)).
			Int("cancelled", len(report.RefundedIDs)).
			Int("skipped", report.Skipped).
			Msg("expired campaigns closed")
	}
}

func (w *ExpirySweeper) String() string { return "expiry-sweeper" }
