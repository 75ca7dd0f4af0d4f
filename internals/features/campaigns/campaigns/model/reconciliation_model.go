package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/*
  campaign_reconciliations = ledger of donations applied to a campaign.
  - donation_id is unique: one donation reaches the ledger at most once.
  - previous/new amounts let the running total be audited row by row.
*/

type CampaignReconciliation struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;not null;index" json:"campaign_id"`
	DonationID uuid.UUID `gorm:"column:donation_id;type:uuid;not null;uniqueIndex:uq_campaign_reconciliations_donation" json:"donation_id"`

	Amount           int64 `gorm:"column:amount;not null;check:chk_campaign_reconciliations_amount,amount > 0" json:"amount"`
	PreviousAmount   int64 `gorm:"column:previous_amount;not null" json:"previous_amount"`
	NewCurrentAmount int64 `gorm:"column:new_current_amount;not null" json:"new_current_amount"`

	StatusChanged   bool    `gorm:"column:status_changed;not null;default:false" json:"status_changed"`
	TriggeredEvent  *string `gorm:"column:triggered_event;type:varchar(50)" json:"triggered_event,omitempty"`
	Source          string  `gorm:"column:source;type:varchar(30);not null" json:"source"`
	CampaignVersion int64   `gorm:"column:campaign_version;not null" json:"campaign_version"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (CampaignReconciliation) TableName() string { return "campaign_reconciliations" }

func (r *CampaignReconciliation) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
