package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

/*
  payment_gateway_events = raw log of every gateway callback.
  - one donation can have many rows (retries, status updates).
  - raw headers and payload are kept for replay and audit.
*/

type GatewayProvider string
type GatewayEventStatus string

const (
	GatewayProviderMidtrans GatewayProvider = "midtrans"
)

const (
	GatewayEventStatusReceived   GatewayEventStatus = "received"
	GatewayEventStatusProcessing GatewayEventStatus = "processing"
	GatewayEventStatusSuccess    GatewayEventStatus = "success"
	GatewayEventStatusFailed     GatewayEventStatus = "failed"
	GatewayEventStatusIgnored    GatewayEventStatus = "ignored"
)

type GatewayEvent struct {
	GatewayEventID         uuid.UUID  `gorm:"column:gateway_event_id;type:uuid;primaryKey" json:"gateway_event_id"`
	GatewayEventDonationID *uuid.UUID `gorm:"column:gateway_event_donation_id;type:uuid;index" json:"gateway_event_donation_id,omitempty"`

	GatewayEventProvider   GatewayProvider `gorm:"column:gateway_event_provider;type:varchar(30);not null" json:"gateway_event_provider"`
	GatewayEventType       *string         `gorm:"column:gateway_event_type;type:varchar(50)" json:"gateway_event_type,omitempty"`
	GatewayEventExternalID *string         `gorm:"column:gateway_event_external_id;type:varchar(120);index" json:"gateway_event_external_id,omitempty"`

	GatewayEventHeaders   datatypes.JSON `gorm:"column:gateway_event_headers" json:"gateway_event_headers,omitempty"`
	GatewayEventPayload   datatypes.JSON `gorm:"column:gateway_event_payload" json:"gateway_event_payload,omitempty"`
	GatewayEventSignature *string        `gorm:"column:gateway_event_signature;type:text" json:"gateway_event_signature,omitempty"`

	GatewayEventStatus   GatewayEventStatus `gorm:"column:gateway_event_status;type:varchar(20);not null;default:'received';index" json:"gateway_event_status"`
	GatewayEventError    *string            `gorm:"column:gateway_event_error;type:text" json:"gateway_event_error,omitempty"`
	GatewayEventTryCount int                `gorm:"column:gateway_event_try_count;not null;default:0" json:"gateway_event_try_count"`

	GatewayEventReceivedAt  time.Time  `gorm:"column:gateway_event_received_at;not null" json:"gateway_event_received_at"`
	GatewayEventProcessedAt *time.Time `gorm:"column:gateway_event_processed_at" json:"gateway_event_processed_at,omitempty"`

	GatewayEventCreatedAt time.Time `gorm:"column:gateway_event_created_at;autoCreateTime" json:"gateway_event_created_at"`
	GatewayEventUpdatedAt time.Time `gorm:"column:gateway_event_updated_at;autoUpdateTime" json:"gateway_event_updated_at"`
}

func (GatewayEvent) TableName() string { return "payment_gateway_events" }

func (e *GatewayEvent) BeforeCreate(tx *gorm.DB) error {
	if e.GatewayEventID == uuid.Nil {
		e.GatewayEventID = uuid.New()
	}
	if e.GatewayEventReceivedAt.IsZero() {
		e.GatewayEventReceivedAt = time.Now()
	}
	return nil
}
