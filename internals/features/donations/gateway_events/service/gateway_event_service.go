package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"kvtogether_backend/internals/features/donations/gateway_events/model"
	"kvtogether_backend/internals/metrics"
)

var ErrEventNotFound = errors.New("gateway event not found")

type GatewayEventService struct {
	DB *gorm.DB
}

func NewGatewayEventService(db *gorm.DB) *GatewayEventService {
	return &GatewayEventService{DB: db}
}

type RecordInput struct {
	Provider   model.GatewayProvider
	EventType  string
	ExternalID string
	Headers    map[string]string
	Payload    []byte
	Signature  string
}

// Record stores the raw callback before anything else touches it, so a
// failure later in processing still leaves the payload for replay.
func (s *GatewayEventService) Record(ctx context.Context, in RecordInput) (model.GatewayEvent, error) {
	headers, err := sonic.Marshal(in.Headers)
	if err != nil {
		return model.GatewayEvent{}, fmt.Errorf("encode headers: %w", err)
	}
	payload := in.Payload
	if !sonic.Valid(payload) {
		// Form-encoded callbacks are kept as a JSON string.
		if payload, err = sonic.Marshal(string(in.Payload)); err != nil {
			return model.GatewayEvent{}, fmt.Errorf("encode payload: %w", err)
		}
	}

	ev := model.GatewayEvent{
		GatewayEventProvider: in.Provider,
		GatewayEventHeaders:  datatypes.JSON(headers),
		GatewayEventPayload:  datatypes.JSON(payload),
		GatewayEventStatus:   model.GatewayEventStatusReceived,
	}
	if in.EventType != "" {
		ev.GatewayEventType = &in.EventType
	}
	if in.ExternalID != "" {
		ev.GatewayEventExternalID = &in.ExternalID
	}
	if in.Signature != "" {
		ev.GatewayEventSignature = &in.Signature
	}
	if err := s.DB.WithContext(ctx).Create(&ev).Error; err != nil {
		return model.GatewayEvent{}, fmt.Errorf("record gateway event: %w", err)
	}
	metrics.GatewayEvents.WithLabelValues(string(in.Provider), string(model.GatewayEventStatusReceived)).Inc()
	return ev, nil
}

// Finish stamps the processing outcome. donationID links the event to the
// donation it resolved to, when one was found.
func (s *GatewayEventService) Finish(ctx context.Context, id uuid.UUID, status model.GatewayEventStatus, donationID *uuid.UUID, procErr error) error {
	now := time.Now()
	upd := map[string]any{
		"gateway_event_status":       string(status),
		"gateway_event_processed_at": now,
		"gateway_event_try_count":    gorm.Expr("gateway_event_try_count + 1"),
	}
	if donationID != nil {
		upd["gateway_event_donation_id"] = *donationID
	}
	if procErr != nil {
		upd["gateway_event_error"] = procErr.Error()
	}
	res := s.DB.WithContext(ctx).Model(&model.GatewayEvent{}).
		Where("gateway_event_id = ?", id).
		Updates(upd)
	if res.Error != nil {
		return fmt.Errorf("finish gateway event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrEventNotFound
	}
	var provider string
	s.DB.WithContext(ctx).Model(&model.GatewayEvent{}).Where("gateway_event_id = ?", id).Pluck("gateway_event_provider", &provider)
	metrics.GatewayEvents.WithLabelValues(provider, string(status)).Inc()
	return nil
}

type ListFilter struct {
	Status     string
	DonationID *uuid.UUID
	ExternalID string
	Limit      int
	Offset     int
}

func (s *GatewayEventService) List(ctx context.Context, f ListFilter) ([]model.GatewayEvent, int64, error) {
	q := s.DB.WithContext(ctx).Model(&model.GatewayEvent{})
	if f.Status != "" {
		q = q.Where("gateway_event_status = ?", f.Status)
	}
	if f.DonationID != nil {
		q = q.Where("gateway_event_donation_id = ?", *f.DonationID)
	}
	if f.ExternalID != "" {
		q = q.Where("gateway_event_external_id = ?", f.ExternalID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count gateway events: %w", err)
	}
	var rows []model.GatewayEvent
	if err := q.Order("gateway_event_received_at DESC").Limit(f.Limit).Offset(f.Offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list gateway events: %w", err)
	}
	return rows, total, nil
}

func (s *GatewayEventService) Get(ctx context.Context, id uuid.UUID) (model.GatewayEvent, error) {
	var ev model.GatewayEvent
	err := s.DB.WithContext(ctx).Where("gateway_event_id = ?", id).Take(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ev, ErrEventNotFound
	}
	if err != nil {
		return ev, fmt.Errorf("load gateway event: %w", err)
	}
	return ev, nil
}
