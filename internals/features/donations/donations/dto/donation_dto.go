package dto

import (
	"time"

	"github.com/google/uuid"

	campaignsvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/donations/donations/model"
	"kvtogether_backend/internals/features/donations/donations/service"
)

/* ===================== Requests ===================== */

type CreateDonationRequest struct {
	DonorName     string `json:"donor_name" validate:"omitempty,max=100"`
	DonorEmail    string `json:"donor_email" validate:"omitempty,email,max=150"`
	Message       string `json:"message" validate:"omitempty,max=1000"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required,oneof=midtrans bank_transfer wallet"`
}

func (r CreateDonationRequest) ToInput(campaignID uuid.UUID, donorID *uuid.UUID) service.CreateInput {
	return service.CreateInput{
		CampaignID: campaignID,
		DonorID:    donorID,
		DonorName:  r.DonorName,
		DonorEmail: r.DonorEmail,
		Message:    r.Message,
		Amount:     r.Amount,
		Method:     model.PaymentMethod(r.PaymentMethod),
	}
}

type VerifyBankTransferRequest struct {
	ReceivedAmount int64 `json:"received_amount" validate:"required,gt=0"`
}

/* ===================== Responses ===================== */

// DonationResponse hides the donor email from public lookups.
type DonationResponse struct {
	ID            uuid.UUID  `json:"id"`
	CampaignID    uuid.UUID  `json:"campaign_id"`
	DonorID       *uuid.UUID `json:"donor_id,omitempty"`
	DonorName     string     `json:"donor_name"`
	DonorEmail    *string    `json:"donor_email,omitempty"`
	Message       *string    `json:"message,omitempty"`
	Amount        int64      `json:"amount"`
	PaidAmount    *int64     `json:"paid_amount,omitempty"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"payment_method"`
	PaymentType   *string    `json:"payment_type,omitempty"`
	OrderID       string     `json:"order_id"`
	RedirectURL   *string    `json:"redirect_url,omitempty"`
	ReviewReason  *string    `json:"review_reason,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	RefundedAt    *time.Time `json:"refunded_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func NewDonationResponse(d *model.Donation, private bool) DonationResponse {
	out := DonationResponse{
		ID:            d.ID,
		CampaignID:    d.CampaignID,
		DonorName:     d.DonorName,
		Message:       d.Message,
		Amount:        d.Amount,
		PaidAmount:    d.PaidAmount,
		Status:        string(d.Status),
		PaymentMethod: string(d.PaymentMethod),
		PaymentType:   d.PaymentType,
		OrderID:       d.OrderID,
		RedirectURL:   d.RedirectURL,
		PaidAt:        d.PaidAt,
		CompletedAt:   d.CompletedAt,
		RefundedAt:    d.RefundedAt,
		CreatedAt:     d.CreatedAt,
	}
	if private {
		out.DonorID = d.DonorID
		out.DonorEmail = d.DonorEmail
		out.ReviewReason = d.ReviewReason
	}
	return out
}

func NewDonationResponses(rows []model.Donation, private bool) []DonationResponse {
	out := make([]DonationResponse, 0, len(rows))
	for i := range rows {
		out = append(out, NewDonationResponse(&rows[i], private))
	}
	return out
}

type CreateDonationResponse struct {
	Donation       DonationResponse    `json:"donation"`
	SnapToken      string              `json:"snap_token,omitempty"`
	RedirectURL    string              `json:"redirect_url,omitempty"`
	Reconciliation *campaignsvc.Result `json:"reconciliation,omitempty"`
}

func NewCreateDonationResponse(res service.CreateResult) CreateDonationResponse {
	return CreateDonationResponse{
		Donation:       NewDonationResponse(&res.Donation, true),
		SnapToken:      res.SnapToken,
		RedirectURL:    res.RedirectURL,
		Reconciliation: res.Reconciliation,
	}
}

type CompleteDonationResponse struct {
	Donation       DonationResponse    `json:"donation"`
	Reconciliation *campaignsvc.Result `json:"reconciliation,omitempty"`
	NeedsReview    bool                `json:"needs_review"`
	Duplicate      bool                `json:"duplicate"`
}

func NewCompleteDonationResponse(res service.CompleteResult) CompleteDonationResponse {
	return CompleteDonationResponse{
		Donation:       NewDonationResponse(&res.Donation, true),
		Reconciliation: res.Reconciliation,
		NeedsReview:    res.NeedsReview,
		Duplicate:      res.Duplicate,
	}
}
