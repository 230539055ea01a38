package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const DefaultBaseURL = "https://api.paystack.co"

type Paystack struct {
	baseURL   string
	secretKey string
	client    *http.Client
	log       zerolog.Logger
}

func NewPaystack(baseURL, secretKey string, log zerolog.Logger) *Paystack {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Paystack{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("component", "paystack").Logger(),
	}
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *Paystack) InitializeTransaction(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	var out Checkout
	if err := p.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Paystack) VerifyTransaction(ctx context.Context, reference string) (*Transaction, error) {
	var out Transaction
	path := "/transaction/verify/" + url.PathEscape(reference)
	if err := p.do(ctx, "verify", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Paystack) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	var out RefundResult
	if err := p.do(ctx, "refund", http.MethodPost, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *Paystack) CreateSubaccount(ctx context.Context, req SubaccountRequest) (*Subaccount, error) {
	var out Subaccount
	if err := p.do(ctx, "create subaccount", http.MethodPost, "/subaccount", req, &out); err != nil {
		return nil, err
	}
	if out.Code == "" {
		return nil, &GatewayError{Op: "create subaccount", Message: "response did not include a subaccount code"}
	}
	return &out, nil
}

func (p *Paystack) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	if p.secretKey == "" {
		return &GatewayError{Op: op, Message: "PAYSTACK_SECRET_KEY is not configured"}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &GatewayError{Op: op, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response body"}
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		p.log.Error().Int("status", resp.StatusCode).Str("op", op).Msg("unparseable paystack response")
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: "unexpected response from payment gateway"}
	}
	if resp.StatusCode >= http.StatusBadRequest || !env.Status {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		p.log.Warn().Int("status", resp.StatusCode).Str("op", op).Str("message", msg).Msg("paystack request rejected")
		return &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return nil
}
