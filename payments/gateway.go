package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Gateway is the subset of the payment provider the booking lifecycle
// depends on.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*Checkout, error)
	VerifyTransaction(ctx context.Context, reference string) (*Transaction, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error)
}

type InitializeRequest struct {
	Email       string      `json:"email"`
	AmountMinor int64       `json:"amount"`
	Currency    string      `json:"currency"`
	Reference   string      `json:"reference"`
	CallbackURL string      `json:"callback_url,omitempty"`
	Subaccount  string      `json:"subaccount,omitempty"`
	Metadata    interface{} `json:"metadata,omitempty"`
}

type Checkout struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is a verified charge as reported by the provider.
type Transaction struct {
	ID          int64           `json:"id"`
	Status      string          `json:"status"`
	Reference   string          `json:"reference"`
	AmountMinor int64           `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      *time.Time      `json:"paid_at"`
	Metadata    json.RawMessage `json:"metadata"`
	Customer    struct {
		Email string `json:"email"`
	} `json:"customer"`
}

func (t *Transaction) Succeeded() bool {
	return t.Status == "success"
}

// DecodeMetadata unmarshals the transaction metadata into v. Paystack sends
// an empty string when no metadata was attached; that leaves v untouched.
func (t *Transaction) DecodeMetadata(v interface{}) error {
	raw := t.Metadata
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` || string(raw) == "0" {
		return nil
	}
	// Some integrations double-encode metadata as a JSON string.
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("decode metadata string: %w", err)
		}
		raw = json.RawMessage(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	return nil
}

// RefundRequest refunds a transaction by reference. A zero AmountMinor
// refunds the full amount.
type RefundRequest struct {
	Reference   string `json:"transaction"`
	AmountMinor int64  `json:"amount,omitempty"`
	Reason      string `json:"merchant_note,omitempty"`
}

type RefundResult struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// Refund statuses reported by Paystack. A refund is usually queued first
// and settled later through a refund.processed or refund.failed webhook.
const (
	RefundStatusPending    = "pending"
	RefundStatusProcessing = "processing"
	RefundStatusProcessed  = "processed"
	RefundStatusFailed     = "failed"
)

// Settled reports whether the money has already been returned.
func (r *RefundResult) Settled() bool {
	return r.Status == RefundStatusProcessed
}

func (r *RefundResult) Failed() bool {
	return r.Status == RefundStatusFailed
}

type SubaccountRequest struct {
	BusinessName     string  `json:"business_name"`
	BankCode         string  `json:"settlement_bank"`
	AccountNumber    string  `json:"account_number"`
	PercentageCharge float64 `json:"percentage_charge"`
	Description      string  `json:"description,omitempty"`
}

type Subaccount struct {
	Code         string `json:"subaccount_code"`
	BusinessName string `json:"business_name"`
}

// GatewayError carries a provider-side failure.
type GatewayError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paystack %s failed (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("paystack %s failed: %s", e.Op, e.Message)
}
