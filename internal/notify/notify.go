// Package notify delivers operator alerts and payer receipts.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Alert describes a downstream failure after money has moved.
type Alert struct {
	Subject        string `json:"subject"`
	CorrelationID  string `json:"correlation_id"`
	EngagementID   int64  `json:"engagement_id,omitempty"`
	EngagementName string `json:"engagement_name,omitempty"`
	Error          string `json:"error"`
}

type Alerter interface {
	Alert(ctx context.Context, a Alert) error
}

// Receipt is the itemized payment confirmation sent to a payer.
type Receipt struct {
	Email         string          `json:"email"`
	PayerName     string          `json:"payer_name"`
	CorrelationID string          `json:"correlation_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Total         decimal.Decimal `json:"total"`
	Instrument    string          `json:"instrument"`
}

type Mailer interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// WebhookAlerter posts alerts as JSON to an operator webhook.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (w *WebhookAlerter) Alert(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("alert webhook failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("alert webhook returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}

// LogAlerter writes alerts to the log. Used when no webhook is configured.
type LogAlerter struct {
	log *zap.Logger
}

func NewLogAlerter(log *zap.Logger) *LogAlerter {
	return &LogAlerter{log: log}
}

func (l *LogAlerter) Alert(_ context.Context, a Alert) error {
	l.log.Error("operator alert",
		zap.String("subject", a.Subject),
		zap.String("correlation_id", a.CorrelationID),
		zap.Int64("engagement_id", a.EngagementID),
		zap.String("engagement_name", a.EngagementName),
		zap.String("error", a.Error))
	return nil
}

// LogMailer records receipts instead of sending them. Rendering and delivery
// belong to the mail service.
type LogMailer struct {
	log *zap.Logger
}

func NewLogMailer(log *zap.Logger) *LogMailer {
	return &LogMailer{log: log}
}

func (l *LogMailer) SendReceipt(_ context.Context, r Receipt) error {
	l.log.Info("receipt queued",
		zap.String("email", r.Email),
		zap.String("correlation_id", r.CorrelationID),
		zap.String("total", r.Total.StringFixed(2)))
	return nil
}
