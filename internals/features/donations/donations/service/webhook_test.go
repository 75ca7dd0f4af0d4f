package service

import (
	"errors"
	"testing"
)

func TestSignatureRoundTrip(t *testing.T) {
	n := Notification{OrderID: "KVT-20261018-ABCDEF12", StatusCode: "200", GrossAmount: "150000.00"}
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, "SB-Mid-server-key")

	if !VerifySignature(n, "SB-Mid-server-key") {
		t.Error("valid signature rejected")
	}
	if VerifySignature(n, "other-key") {
		t.Error("signature accepted with the wrong server key")
	}
	n.GrossAmount = "1500000.00"
	if VerifySignature(n, "SB-Mid-server-key") {
		t.Error("signature accepted after the amount was tampered with")
	}
}

func TestParseGrossAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr error
	}{
		{"150000.00", 150000, nil},
		{"20000", 20000, nil},
		{" 1000000.0 ", 1000000, nil},
		{"10000.50", 0, ErrFractionalAmount},
	}
	for _, tt := range tests {
		got, err := ParseGrossAmount(tt.in)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ParseGrossAmount(%q) err = %v, want %v", tt.in, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseGrossAmount(%q) = %d, %v; want %d", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseGrossAmount("abc"); err == nil {
		t.Error("garbage amount parsed")
	}
}

func TestMapMidtransStatus(t *testing.T) {
	tests := []struct {
		tx, fraud string
		want      PaymentOutcome
	}{
		{"settlement", "", OutcomePaid},
		{"capture", "accept", OutcomePaid},
		{"capture", "challenge", OutcomePending},
		{"pending", "", OutcomePending},
		{"expire", "", OutcomeFailed},
		{"deny", "", OutcomeFailed},
		{"cancel", "", OutcomeCancelled},
		{"refund", "", OutcomeRefunded},
		{"something_new", "", OutcomeIgnored},
	}
	for _, tt := range tests {
		if got := MapMidtransStatus(tt.tx, tt.fraud); got != tt.want {
			t.Errorf("MapMidtransStatus(%q, %q) = %s, want %s", tt.tx, tt.fraud, got, tt.want)
		}
	}
}

func TestParseNotification(t *testing.T) {
	n, err := ParseNotification([]byte(`{"order_id":"KVT-1","transaction_status":"Settlement","gross_amount":"50000.00"}`), nil)
	if err != nil {
		t.Fatal(err)
	}
	if n.OrderID != "KVT-1" || n.TransactionStatus != "settlement" || n.GrossAmount != "50000.00" {
		t.Errorf("json notification = %+v", n)
	}

	n, err = ParseNotification([]byte("order_id=KVT-2&transaction_status=expire"), map[string]string{
		"order_id":           "KVT-2",
		"transaction_status": "expire",
	})
	if err != nil {
		t.Fatal(err)
	}
	if n.OrderID != "KVT-2" || n.TransactionStatus != "expire" {
		t.Errorf("form notification = %+v", n)
	}

	if _, err := ParseNotification([]byte(`{}`), nil); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("empty notification: err = %v", err)
	}
}
