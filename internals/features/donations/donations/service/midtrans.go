package service

import (
	"context"
	"errors"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	gobreaker "github.com/sony/gobreaker/v2"

	"kvtogether_backend/internals/logging"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

type SnapRequest struct {
	OrderID    string
	Amount     int64
	DonorName  string
	DonorEmail string
	ItemName   string
}

type SnapResult struct {
	Token       string
	RedirectURL string
}

// TransactionStatus is the gateway's own view of an order, used to
// double-check a webhook before money is applied.
type TransactionStatus struct {
	OrderID           string
	StatusCode        string
	TransactionStatus string
	FraudStatus       string
	PaymentType       string
	GrossAmount       string
}

// PaymentGateway is what donation intake needs from a payment provider.
type PaymentGateway interface {
	CreateSnap(ctx context.Context, req SnapRequest) (SnapResult, error)
	CheckStatus(ctx context.Context, orderID string) (TransactionStatus, error)
}

type MidtransGateway struct {
	snap   snap.Client
	core   coreapi.Client
	snapCB *gobreaker.CircuitBreaker[*snap.Response]
	coreCB *gobreaker.CircuitBreaker[*coreapi.TransactionStatusResponse]
}

func breakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("payment gateway circuit breaker state changed")
		},
	}
}

// NewMidtransGateway targets sandbox unless production is set.
func NewMidtransGateway(serverKey string, production bool) *MidtransGateway {
	env := midtrans.Sandbox
	if production {
		env = midtrans.Production
	}
	g := &MidtransGateway{
		snapCB: gobreaker.NewCircuitBreaker[*snap.Response](breakerSettings("midtrans-snap")),
		coreCB: gobreaker.NewCircuitBreaker[*coreapi.TransactionStatusResponse](breakerSettings("midtrans-core")),
	}
	g.snap.New(serverKey, env)
	g.core.New(serverKey, env)
	return g
}

func (g *MidtransGateway) CreateSnap(ctx context.Context, req SnapRequest) (SnapResult, error) {
	if err := ctx.Err(); err != nil {
		return SnapResult{}, err
	}
	resp, err := g.snapCB.Execute(func() (*snap.Response, error) {
		r, merr := g.snap.CreateTransaction(&snap.Request{
			TransactionDetails: midtrans.TransactionDetails{
				OrderID:  req.OrderID,
				GrossAmt: req.Amount,
			},
			CustomerDetail: &midtrans.CustomerDetails{
				FName: req.DonorName,
				Email: req.DonorEmail,
			},
			Items: &[]midtrans.ItemDetails{{
				ID:    req.OrderID,
				Name:  truncate(req.ItemName, 50),
				Price: req.Amount,
				Qty:   1,
			}},
		})
		if merr != nil {
			return nil, merr
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return SnapResult{}, ErrGatewayUnavailable
	}
	if err != nil {
		return SnapResult{}, err
	}
	return SnapResult{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func (g *MidtransGateway) CheckStatus(ctx context.Context, orderID string) (TransactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return TransactionStatus{}, err
	}
	resp, err := g.coreCB.Execute(func() (*coreapi.TransactionStatusResponse, error) {
		r, merr := g.core.CheckTransaction(orderID)
		if merr != nil {
			return nil, merr
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return TransactionStatus{}, ErrGatewayUnavailable
	}
	if err != nil {
		return TransactionStatus{}, err
	}
	return TransactionStatus{
		OrderID:           resp.OrderID,
		StatusCode:        resp.StatusCode,
		TransactionStatus: resp.TransactionStatus,
		FraudStatus:       resp.FraudStatus,
		PaymentType:       resp.PaymentType,
		GrossAmount:       resp.GrossAmount,
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
