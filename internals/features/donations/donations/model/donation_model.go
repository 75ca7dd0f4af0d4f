package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

/* ===================== Constants ===================== */

type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusCompleted DonationStatus = "completed"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusCancelled DonationStatus = "cancelled"
	DonationStatusRefunded  DonationStatus = "refunded"
	// Money arrived but could not be applied to the ledger as-is.
	DonationStatusNeedsReview DonationStatus = "needs_review"
)

type PaymentMethod string

const (
	PaymentMethodMidtrans     PaymentMethod = "midtrans"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodWallet       PaymentMethod = "wallet"
)

/* ===================== Model ===================== */

type Donation struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	CampaignID uuid.UUID  `gorm:"column:campaign_id;type:uuid;not null;index" json:"campaign_id"`
	DonorID    *uuid.UUID `gorm:"column:donor_id;type:uuid;index" json:"donor_id,omitempty"`

	DonorName  string  `gorm:"column:donor_name;type:varchar(100);not null" json:"donor_name"`
	DonorEmail *string `gorm:"column:donor_email;type:varchar(150)" json:"donor_email,omitempty"`
	Message    *string `gorm:"column:message;type:text" json:"message,omitempty"`

	Amount     int64  `gorm:"column:amount;not null;check:chk_donations_amount_positive,amount > 0" json:"amount"`
	PaidAmount *int64 `gorm:"column:paid_amount" json:"paid_amount,omitempty"`

	Status        DonationStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	PaymentMethod PaymentMethod  `gorm:"column:payment_method;type:varchar(30);not null" json:"payment_method"`
	PaymentType   *string        `gorm:"column:payment_type;type:varchar(50)" json:"payment_type,omitempty"`
	OrderID       string         `gorm:"column:order_id;type:varchar(100);not null;uniqueIndex" json:"order_id"`
	PaymentToken  *string        `gorm:"column:payment_token;type:text" json:"payment_token,omitempty"`
	RedirectURL   *string        `gorm:"column:redirect_url;type:text" json:"redirect_url,omitempty"`

	ReviewReason *string    `gorm:"column:review_reason;type:text" json:"review_reason,omitempty"`
	PaidAt       *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	RefundedAt   *time.Time `gorm:"column:refunded_at" json:"refunded_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Donation) TableName() string { return "donations" }

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

func (s DonationStatus) IsFinal() bool {
	switch s {
	case DonationStatusCompleted, DonationStatusFailed, DonationStatusCancelled, DonationStatusRefunded:
		return true
	}
	return false
}
