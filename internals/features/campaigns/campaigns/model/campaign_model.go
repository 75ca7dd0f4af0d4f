package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
)

/* ===================== Model ===================== */

// Campaign.current_amount is written only by the reconciler. version is
// bumped on every mutation so ledger writes can detect lost updates.
type Campaign struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrganizerID uuid.UUID `gorm:"column:organizer_id;type:uuid;not null;index" json:"organizer_id"`

	Title       string  `gorm:"column:title;type:varchar(200);not null" json:"title"`
	Description *string `gorm:"column:description;type:text" json:"description,omitempty"`

	TargetAmount  int64 `gorm:"column:target_amount;not null;check:chk_campaigns_target_positive,target_amount > 0 AND target_amount <= 87841638446235960" json:"target_amount"`
	CurrentAmount int64 `gorm:"column:current_amount;not null;default:0;check:chk_campaigns_current_bounds,current_amount >= 0 AND current_amount <= target_amount * 105 / 100" json:"current_amount"`

	Status  lifecycle.State `gorm:"column:status;type:varchar(20);not null;default:'draft';index" json:"status"`
	EndDate *time.Time      `gorm:"column:end_date;index" json:"end_date,omitempty"`
	Version int64           `gorm:"column:version;not null;default:0" json:"version"`

	RejectionReason *string `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`
	CancelReason    *string `gorm:"column:cancel_reason;type:text" json:"cancel_reason,omitempty"`

	SubmittedAt *time.Time `gorm:"column:submitted_at" json:"submitted_at,omitempty"`
	ApprovedAt  *time.Time `gorm:"column:approved_at" json:"approved_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	EndedAt     *time.Time `gorm:"column:ended_at" json:"ended_at,omitempty"`
	CancelledAt *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string { return "campaigns" }

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

/* ===================== Helpers ===================== */

func (c *Campaign) FundingState() funding.State {
	return funding.State{Target: c.TargetAmount, Current: c.CurrentAmount, Status: c.Status}
}

func (c *Campaign) Ceiling() int64 { return funding.Ceiling(c.TargetAmount) }

// Ended reports whether end_date is at or before now.
func (c *Campaign) Ended(now time.Time) bool {
	return c.EndDate != nil && !now.Before(*c.EndDate)
}
