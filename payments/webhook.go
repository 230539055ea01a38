package payments

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const SignatureHeader = "x-paystack-signature"

const (
	EventChargeSuccess   = "charge.success"
	EventRefundProcessed = "refund.processed"
	EventRefundFailed    = "refund.failed"
)

// VerifySignature checks the HMAC-SHA512 of a webhook body against the
// signature Paystack sent.
func VerifySignature(secretKey string, body []byte, signature string) bool {
	if secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type WebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RefundNotice is the data payload of refund.* webhook events.
type RefundNotice struct {
	ID                   int64  `json:"id"`
	Status               string `json:"status"`
	TransactionReference string `json:"transaction_reference"`
	AmountMinor          int64  `json:"amount"`
	Reason               string `json:"merchant_note"`
}

func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var evt WebhookEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if evt.Event == "" {
		return nil, fmt.Errorf("webhook payload has no event")
	}
	return &evt, nil
}

func (e *WebhookEvent) Transaction() (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(e.Data, &t); err != nil {
		return nil, fmt.Errorf("invalid charge payload: %w", err)
	}
	return &t, nil
}

func (e *WebhookEvent) Refund() (*RefundNotice, error) {
	var r RefundNotice
	if err := json.Unmarshal(e.Data, &r); err != nil {
		return nil, fmt.Errorf("invalid refund payload: %w", err)
	}
	return &r, nil
}
