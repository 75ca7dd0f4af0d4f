package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	donmodel "kvtogether_backend/internals/features/donations/donations/model"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/logging"
	"kvtogether_backend/internals/metrics"
)

const guestRefundReason = "guest donation on a cancelled campaign, refund outside the wallet"

type RefundCredit struct {
	DonorID   uuid.UUID `json:"donor_id"`
	Amount    int64     `json:"amount"`
	Donations int       `json:"donations"`
	Reference string    `json:"reference"`
	Created   bool      `json:"created"`
}

type RefundReport struct {
	CampaignID  uuid.UUID      `json:"campaign_id"`
	Credits     []RefundCredit `json:"credits"`
	Refunded    int64          `json:"refunded_amount"`
	NeedsReview int            `json:"needs_review"`
}

// RefundReference keys a wallet credit to one donor of one campaign, which
// makes a re-run of the workflow a no-op.
func RefundReference(campaignID, donorID uuid.UUID) string {
	return fmt.Sprintf("refund:%s:%s", campaignID, donorID)
}

// Cancel moves an active campaign to cancelled and refunds its donors in
// the same transaction.
func (s *CampaignService) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (model.Campaign, RefundReport, error) {
	var (
		c      model.Campaign
		report RefundReport
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		c, err = loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if !actor.owns(&c) {
			return ErrNotOwner
		}
		now := s.Now()
		extra := map[string]any{"cancelled_at": now}
		if reason != "" {
			extra["cancel_reason"] = reason
		}
		if err := s.transitionTx(ctx, tx, &c, lifecycle.Cancel, now, extra); err != nil {
			return err
		}
		report, err = s.refundTx(ctx, tx, &c, now)
		return err
	})
	if err != nil {
		return c, report, err
	}
	s.afterCancel(ctx, c, report, reason)
	return c, report, nil
}

// Refund re-runs the refund workflow for a cancelled campaign. Donors that
// were already credited are skipped.
func (s *CampaignService) Refund(ctx context.Context, id uuid.UUID) (RefundReport, error) {
	var report RefundReport
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := loadCampaign(tx, id)
		if err != nil {
			return err
		}
		if c.Status != lifecycle.Cancelled {
			return ErrNotCancelled
		}
		report, err = s.refundTx(ctx, tx, &c, s.Now())
		return err
	})
	return report, err
}

func (s *CampaignService) afterCancel(ctx context.Context, c model.Campaign, report RefundReport, reason string) {
	metrics.RecordTransition(string(lifecycle.Active), string(lifecycle.Cancelled))
	metrics.RefundCredits.Add(float64(countCreated(report.Credits)))

	ev := funding.NewEvent(funding.EventCampaignCancelled, c.ID)
	ev.OrganizerID = &c.OrganizerID
	ev.CurrentAmount = c.CurrentAmount
	ev.TargetAmount = c.TargetAmount
	ev.Reason = reason
	s.Events.Publish(ctx, ev)
}

func countCreated(credits []RefundCredit) int {
	n := 0
	for _, cr := range credits {
		if cr.Created {
			n++
		}
	}
	return n
}

type donorBucket struct {
	amount int64
	ids    []uuid.UUID
}

// refundTx credits every donor's completed donations back to their wallet.
// current_amount is left as it was; the campaign is frozen once cancelled.
func (s *CampaignService) refundTx(ctx context.Context, tx *gorm.DB, c *model.Campaign, now time.Time) (RefundReport, error) {
	db := tx.WithContext(ctx)
	report := RefundReport{CampaignID: c.ID, Credits: []RefundCredit{}}

	var dons []donmodel.Donation
	if err := db.Where("campaign_id = ? AND status = ?", c.ID, string(donmodel.DonationStatusCompleted)).
		Order("created_at ASC").
		Find(&dons).Error; err != nil {
		return report, fmt.Errorf("load donations to refund: %w", err)
	}

	var (
		order   []uuid.UUID
		buckets = map[uuid.UUID]*donorBucket{}
		guests  []uuid.UUID
	)
	for _, d := range dons {
		if d.DonorID == nil {
			guests = append(guests, d.ID)
			continue
		}
		b, ok := buckets[*d.DonorID]
		if !ok {
			b = &donorBucket{}
			buckets[*d.DonorID] = b
			order = append(order, *d.DonorID)
		}
		b.amount += d.Amount
		b.ids = append(b.ids, d.ID)
	}

	for _, donorID := range order {
		b := buckets[donorID]
		ref := RefundReference(c.ID, donorID)
		_, created, err := s.Wallets.CreditTx(ctx, tx, walletsvc.Movement{
			UserID:      donorID,
			Amount:      b.amount,
			Reference:   ref,
			Description: "refund for cancelled campaign " + c.Title,
		})
		if err != nil {
			return report, fmt.Errorf("refund donor %s: %w", donorID, err)
		}
		if err := db.Model(&donmodel.Donation{}).
			Where("id IN ? AND status = ?", b.ids, string(donmodel.DonationStatusCompleted)).
			Updates(map[string]any{
				"status":      string(donmodel.DonationStatusRefunded),
				"refunded_at": now,
				"updated_at":  now,
			}).Error; err != nil {
			return report, fmt.Errorf("mark donations refunded: %w", err)
		}
		report.Credits = append(report.Credits, RefundCredit{
			DonorID:   donorID,
			Amount:    b.amount,
			Donations: len(b.ids),
			Reference: ref,
			Created:   created,
		})
		report.Refunded += b.amount
	}

	if len(guests) > 0 {
		if err := db.Model(&donmodel.Donation{}).
			Where("id IN ?", guests).
			Updates(map[string]any{
				"status":        string(donmodel.DonationStatusNeedsReview),
				"review_reason": guestRefundReason,
				"updated_at":    now,
			}).Error; err != nil {
			return report, fmt.Errorf("route guest donations to review: %w", err)
		}
		report.NeedsReview = len(guests)
		metrics.DonationsNeedingReview.WithLabelValues("guest_refund").Add(float64(len(guests)))
	}

	if err := db.Model(&model.Campaign{}).
		Where("id = ?", c.ID).
		Updates(map[string]any{"refunded_at": now, "updated_at": now}).Error; err != nil {
		return report, fmt.Errorf("mark campaign refunded: %w", err)
	}
	c.RefundedAt = &now

	logging.Ctx(ctx).Info().
		Str("campaign_id", c.ID.String()).
		Int("donors", len(report.Credits)).
		Int64("refunded_amount", report.Refunded).
		Int("needs_review", report.NeedsReview).
		Msg("campaign refunds applied")
	return report, nil
}
