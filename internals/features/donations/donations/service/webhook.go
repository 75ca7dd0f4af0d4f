package service

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"kvtogether_backend/internals/features/donations/donations/model"
	gemodel "kvtogether_backend/internals/features/donations/gateway_events/model"
	gesvc "kvtogether_backend/internals/features/donations/gateway_events/service"
	"kvtogether_backend/internals/logging"
)

var (
	ErrInvalidSignature = errors.New("invalid notification signature")
	ErrInvalidPayload   = errors.New("notification payload is missing order_id or transaction_status")
	ErrFractionalAmount = errors.New("gross amount has a fractional part")
	// ErrNotApplied marks a notification that could not be stored or applied
	// for a non-business reason. The gateway must deliver it again.
	ErrNotApplied = errors.New("notification was not applied")
)

// Notification is the subset of a Midtrans HTTP notification we act on.
type Notification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionID     string `json:"transaction_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	SettlementTime    string `json:"settlement_time"`
	TransactionTime   string `json:"transaction_time"`
}

// ParseNotification accepts the JSON body Midtrans sends, falling back to
// form values (the dashboard "test" button posts form-encoded).
func ParseNotification(body []byte, form map[string]string) (Notification, error) {
	var n Notification
	if len(body) > 0 && sonic.Valid(body) {
		if err := sonic.Unmarshal(body, &n); err != nil {
			return n, fmt.Errorf("decode notification: %w", err)
		}
	}
	if n.OrderID == "" && len(form) > 0 {
		n = Notification{
			OrderID:           form["order_id"],
			StatusCode:        form["status_code"],
			GrossAmount:       form["gross_amount"],
			SignatureKey:      form["signature_key"],
			TransactionID:     form["transaction_id"],
			TransactionStatus: form["transaction_status"],
			FraudStatus:       form["fraud_status"],
			PaymentType:       form["payment_type"],
			SettlementTime:    form["settlement_time"],
			TransactionTime:   form["transaction_time"],
		}
	}
	n.TransactionStatus = strings.ToLower(strings.TrimSpace(n.TransactionStatus))
	n.FraudStatus = strings.ToLower(strings.TrimSpace(n.FraudStatus))
	if n.OrderID == "" || n.TransactionStatus == "" {
		return n, ErrInvalidPayload
	}
	return n, nil
}

// Signature is SHA-512 over order_id + status_code + gross_amount + server key.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

func VerifySignature(n Notification, serverKey string) bool {
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(want), []byte(strings.ToLower(n.SignatureKey))) == 1
}

// ParseGrossAmount reads "150000.00" as 150000. VND has no minor unit, so a
// fractional part is refused rather than rounded.
func ParseGrossAmount(s string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse gross amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s", ErrFractionalAmount, s)
	}
	return d.IntPart(), nil
}

type PaymentOutcome string

const (
	OutcomePaid      PaymentOutcome = "paid"
	OutcomePending   PaymentOutcome = "pending"
	OutcomeFailed    PaymentOutcome = "failed"
	OutcomeCancelled PaymentOutcome = "cancelled"
	OutcomeRefunded  PaymentOutcome = "refunded"
	OutcomeIgnored   PaymentOutcome = "ignored"
)

// MapMidtransStatus maps transaction_status and fraud_status to what the
// donation should do. A challenged capture stays pending.
func MapMidtransStatus(txStatus, fraudStatus string) PaymentOutcome {
	switch strings.ToLower(txStatus) {
	case "capture":
		if strings.ToLower(fraudStatus) == "challenge" {
			return OutcomePending
		}
		return OutcomePaid
	case "settlement":
		return OutcomePaid
	case "pending", "authorize":
		return OutcomePending
	case "expire", "deny", "failure":
		return OutcomeFailed
	case "cancel":
		return OutcomeCancelled
	case "refund", "partial_refund", "chargeback", "partial_chargeback":
		return OutcomeRefunded
	default:
		return OutcomeIgnored
	}
}

func parseMidtransTime(n Notification) *time.Time {
	const layout = "2006-01-02 15:04:05"
	// Midtrans reports times in WIB.
	wib := time.FixedZone("WIB", 7*60*60)
	for _, s := range []string{n.SettlementTime, n.TransactionTime} {
		if s == "" {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, wib); err == nil {
			return &t
		}
	}
	return nil
}

type WebhookResult struct {
	EventID    uuid.UUID      `json:"event_id"`
	OrderID    string         `json:"order_id"`
	Outcome    PaymentOutcome `json:"outcome"`
	DonationID *uuid.UUID     `json:"donation_id,omitempty"`
	Status     string         `json:"donation_status,omitempty"`
}

// HandleNotification logs the raw callback, verifies it and moves the
// donation. Processing errors are stamped on the gateway event. Errors
// wrapping ErrNotApplied left the donation untouched and need a redelivery.
func (s *DonationService) HandleNotification(ctx context.Context, raw []byte, headers map[string]string, n Notification) (WebhookResult, error) {
	out := WebhookResult{OrderID: n.OrderID, Outcome: MapMidtransStatus(n.TransactionStatus, n.FraudStatus)}
	log := logging.Ctx(ctx).With().Str("order_id", n.OrderID).Str("transaction_status", n.TransactionStatus).Logger()

	ev, err := s.GatewayEvents.Record(ctx, gesvc.RecordInput{
		Provider:   gemodel.GatewayProviderMidtrans,
		EventType:  n.TransactionStatus,
		ExternalID: n.OrderID,
		Headers:    headers,
		Payload:    raw,
		Signature:  n.SignatureKey,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to record payment notification")
		return out, fmt.Errorf("%w: %w", ErrNotApplied, err)
	}
	out.EventID = ev.GatewayEventID

	finish := func(status gemodel.GatewayEventStatus, donationID *uuid.UUID, procErr error) {
		if err := s.GatewayEvents.Finish(ctx, ev.GatewayEventID, status, donationID, procErr); err != nil {
			log.Error().Err(err).Msg("failed to stamp gateway event")
		}
	}

	if !VerifySignature(n, s.ServerKey) {
		log.Warn().Msg("notification signature mismatch")
		finish(gemodel.GatewayEventStatusFailed, nil, ErrInvalidSignature)
		return out, ErrInvalidSignature
	}

	d, err := s.GetByOrderID(ctx, n.OrderID)
	if errors.Is(err, ErrDonationNotFound) {
		log.Warn().Err(err).Msg("notification for unknown order")
		finish(gemodel.GatewayEventStatusIgnored, nil, err)
		return out, err
	}
	if err != nil {
		log.Error().Err(err).Msg("notification processing failed")
		finish(gemodel.GatewayEventStatusFailed, nil, err)
		return out, fmt.Errorf("%w: %w", ErrNotApplied, err)
	}
	out.DonationID = &d.ID

	if out.Outcome == OutcomePaid && s.VerifyStatus && s.Gateway != nil {
		st, err := s.Gateway.CheckStatus(ctx, n.OrderID)
		if err != nil {
			log.Error().Err(err).Msg("transaction status re-check failed")
			finish(gemodel.GatewayEventStatusFailed, &d.ID, err)
			return out, fmt.Errorf("%w: re-check transaction status: %w", ErrNotApplied, err)
		}
		if MapMidtransStatus(st.TransactionStatus, st.FraudStatus) != OutcomePaid {
			log.Warn().Str("gateway_status", st.TransactionStatus).Msg("notification says paid but gateway disagrees")
			out.Outcome = OutcomePending
		}
	}

	var procErr error
	switch out.Outcome {
	case OutcomePaid:
		paid, err := ParseGrossAmount(n.GrossAmount)
		if err != nil {
			reason := "unreadable gross amount " + n.GrossAmount + " on a paid notification"
			if ferr := s.flagForReview(ctx, d.ID, model.DonationStatusPending, reason); ferr != nil {
				procErr = ferr
				break
			}
			out.Status = string(model.DonationStatusNeedsReview)
			break
		}
		res, err := s.CompleteDonation(ctx, CompleteInput{
			DonationID:  d.ID,
			PaidAmount:  paid,
			Source:      string(model.PaymentMethodMidtrans),
			PaymentType: n.PaymentType,
			PaidAt:      parseMidtransTime(n),
		})
		if err != nil {
			procErr = err
			break
		}
		out.Status = string(res.Donation.Status)
	case OutcomeFailed, OutcomeCancelled:
		status := model.DonationStatusFailed
		if out.Outcome == OutcomeCancelled {
			status = model.DonationStatusCancelled
		}
		if _, err := s.FailDonation(ctx, d.ID, status); err != nil {
			procErr = err
			break
		}
		out.Status = string(status)
	case OutcomeRefunded:
		if d.Status == model.DonationStatusCompleted {
			procErr = s.FlagForReview(ctx, d.ID, "gateway reported "+n.TransactionStatus+" on a completed donation")
			out.Status = string(model.DonationStatusNeedsReview)
		}
	default:
		finish(gemodel.GatewayEventStatusIgnored, &d.ID, nil)
		out.Status = string(d.Status)
		return out, nil
	}

	if procErr != nil {
		log.Error().Err(procErr).Msg("notification processing failed")
		finish(gemodel.GatewayEventStatusFailed, &d.ID, procErr)
		if !isSettledOutcome(procErr) {
			procErr = fmt.Errorf("%w: %w", ErrNotApplied, procErr)
		}
		return out, procErr
	}
	finish(gemodel.GatewayEventStatusSuccess, &d.ID, nil)
	log.Info().Str("outcome", string(out.Outcome)).Str("donation_status", out.Status).Msg("notification processed")
	return out, nil
}

// isSettledOutcome reports errors where the donation already sits in a state
// a redelivery would not change.
func isSettledOutcome(err error) bool {
	return errors.Is(err, ErrDonationNotFound) ||
		errors.Is(err, ErrDonationNotPending) ||
		errors.Is(err, ErrDonationStatusChanged)
}
