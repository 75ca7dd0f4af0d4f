package funding

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventCampaignCompleted   EventKind = "campaign.completed"
	EventCampaignCancelled   EventKind = "campaign.cancelled"
	EventCampaignEnded       EventKind = "campaign.ended_partial"
	EventDonationNeedsReview EventKind = "donation.needs_review"
)

// Event is what the ledger hands to the notification dispatcher.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Kind          EventKind  `json:"kind"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	OrganizerID   *uuid.UUID `json:"organizer_id,omitempty"`
	DonationID    *uuid.UUID `json:"donation_id,omitempty"`
	CurrentAmount int64      `json:"current_amount"`
	TargetAmount  int64      `json:"target_amount"`
	Reason        string     `json:"reason,omitempty"`
	OccurredAt    time.Time  `json:"occurred_at"`
}

func NewEvent(kind EventKind, campaignID uuid.UUID) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		CampaignID: campaignID,
		OccurredAt: time.Now().UTC(),
	}
}
