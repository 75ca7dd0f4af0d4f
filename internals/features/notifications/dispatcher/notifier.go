package dispatcher

import (
	"context"

	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/logging"
)

// Notifier delivers a lifecycle event to people. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, ev funding.Event) error
}

// LogNotifier records who would be notified. E-mail delivery is out of scope.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev funding.Event) error {
	log := logging.Ctx(ctx).Info().
		Str("component", "notifier").
		Str("event_id", ev.ID.String()).
		Str("kind", string(ev.Kind)).
		Str("campaign_id", ev.CampaignID.String()).
		Int64("current_amount", ev.CurrentAmount).
		Int64("target_amount", ev.TargetAmount)
	if ev.OrganizerID != nil {
		log = log.Str("organizer_id", ev.OrganizerID.String())
	}
	if ev.DonationID != nil {
		log = log.Str("donation_id", ev.DonationID.String())
	}
	if ev.Reason != "" {
		log = log.Str("reason", ev.Reason)
	}

	switch ev.Kind {
	case funding.EventCampaignCompleted, funding.EventCampaignCancelled, funding.EventCampaignEnded:
		log.Msg("notify organizer and donors")
	case funding.EventDonationNeedsReview:
		log.Msg("notify finance admins")
	default:
		log.Msg("notify organizer")
	}
	return nil
}
