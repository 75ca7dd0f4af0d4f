package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
)

/* ===================== Requests ===================== */

// target_amount is capped at funding.MaxTarget.
type CreateCampaignRequest struct {
	Title        string     `json:"title" validate:"required,min=3,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=10000"`
	TargetAmount int64      `json:"target_amount" validate:"required,gt=0,lte=87841638446235960"`
	EndDate      *time.Time `json:"end_date"`
}

func (r CreateCampaignRequest) ToModel() *model.Campaign {
	m := &model.Campaign{
		Title:        strings.TrimSpace(r.Title),
		TargetAmount: r.TargetAmount,
		EndDate:      r.EndDate,
	}
	if r.Description != nil {
		d := strings.TrimSpace(*r.Description)
		m.Description = &d
	}
	return m
}

// UpdateCampaignRequest is a partial update; nil fields are left alone.
type UpdateCampaignRequest struct {
	Title        *string    `json:"title" validate:"omitempty,min=3,max=200"`
	Description  *string    `json:"description" validate:"omitempty,max=10000"`
	TargetAmount *int64     `json:"target_amount" validate:"omitempty,gt=0,lte=87841638446235960"`
	EndDate      *time.Time `json:"end_date"`
}

func (r UpdateCampaignRequest) ToUpdates() map[string]any {
	out := map[string]any{}
	if r.Title != nil {
		out["title"] = strings.TrimSpace(*r.Title)
	}
	if r.Description != nil {
		out["description"] = strings.TrimSpace(*r.Description)
	}
	if r.TargetAmount != nil {
		out["target_amount"] = *r.TargetAmount
	}
	if r.EndDate != nil {
		out["end_date"] = *r.EndDate
	}
	return out
}

type RejectCampaignRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1000"`
}

type CancelCampaignRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

/* ===================== Responses ===================== */

type CampaignResponse struct {
	ID              uuid.UUID       `json:"id"`
	OrganizerID     uuid.UUID       `json:"organizer_id"`
	Title           string          `json:"title"`
	Description     *string         `json:"description,omitempty"`
	TargetAmount    int64           `json:"target_amount"`
	CurrentAmount   int64           `json:"current_amount"`
	Ceiling         int64           `json:"ceiling"`
	MaxAcceptable   int64           `json:"max_acceptable"`
	Status          lifecycle.State `json:"status"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	RejectionReason *string         `json:"rejection_reason,omitempty"`
	CancelReason    *string         `json:"cancel_reason,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	EndedAt         *time.Time      `json:"ended_at,omitempty"`
	CancelledAt     *time.Time      `json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewCampaignResponse(m *model.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:              m.ID,
		OrganizerID:     m.OrganizerID,
		Title:           m.Title,
		Description:     m.Description,
		TargetAmount:    m.TargetAmount,
		CurrentAmount:   m.CurrentAmount,
		Ceiling:         m.Ceiling(),
		MaxAcceptable:   funding.MaxAcceptable(m.FundingState()),
		Status:          m.Status,
		EndDate:         m.EndDate,
		RejectionReason: m.RejectionReason,
		CancelReason:    m.CancelReason,
		ApprovedAt:      m.ApprovedAt,
		CompletedAt:     m.CompletedAt,
		EndedAt:         m.EndedAt,
		CancelledAt:     m.CancelledAt,
		RefundedAt:      m.RefundedAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func NewCampaignResponses(rows []model.Campaign) []CampaignResponse {
	out := make([]CampaignResponse, 0, len(rows))
	for i := range rows {
		out = append(out, NewCampaignResponse(&rows[i]))
	}
	return out
}
