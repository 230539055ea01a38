package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	config "github.com/tutorhub/api/configs"
)

const brevoURL = "https://api.brevo.com/v3/smtp/email"

type Email struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// NewMailer returns a Brevo mailer, or a mailer that only logs when Brevo
// is not configured.
func NewMailer(cfg config.EmailConfig, log zerolog.Logger) Mailer {
	if cfg.BrevoAPIKey == "" || cfg.SenderEmail == "" {
		log.Warn().Msg("email service not configured, messages will only be logged")
		return LogMailer{Log: log}
	}
	return &BrevoMailer{
		APIKey:      cfg.BrevoAPIKey,
		SenderEmail: cfg.SenderEmail,
		SenderName:  cfg.SenderName,
		URL:         brevoURL,
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

type BrevoMailer struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	URL         string
	Client      *http.Client
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoPayload struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

func (m *BrevoMailer) Send(ctx context.Context, msg Email) error {
	at := strings.Index(msg.ToEmail, "@")
	if at < 1 {
		return fmt.Errorf("invalid recipient email: %q", msg.ToEmail)
	}
	name := msg.ToName
	if name == "" {
		name = msg.ToEmail[:at]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      brevoContact{Email: m.SenderEmail, Name: m.SenderName},
		To:          []brevoContact{{Email: msg.ToEmail, Name: name}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", m.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("brevo returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// LogMailer records messages instead of sending them.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Email) error {
	m.Log.Info().Str("to", msg.ToEmail).Str("subject", msg.Subject).Msg("email not sent, mailer disabled")
	return nil
}
