package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// HTTPClient talks JSON to the processor's REST API behind a circuit breaker.
// Charges are never retried: a timed-out charge may still have moved money.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker
	log       *zap.Logger
}

func NewHTTPClient(baseURL, secretKey string, timeout time.Duration, log *zap.Logger) *HTTPClient {
	c := &HTTPClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
		log:       log,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 3,
		Interval:    2 * time.Minute,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Declines are business outcomes, not gateway faults.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrDeclined)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return c
}

type chargeRequest struct {
	ReferenceID string        `json:"reference_id"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Description string        `json:"description,omitempty"`
	Email       string        `json:"email,omitempty"`
	Source      sourcePayload `json:"source"`
}

type sourcePayload struct {
	Type          string `json:"type"`
	Token         string `json:"token,omitempty"`
	Number        string `json:"number,omitempty"`
	ExpMonth      int    `json:"exp_month,omitempty"`
	ExpYear       int    `json:"exp_year,omitempty"`
	CVC           string `json:"cvc,omitempty"`
	Name          string `json:"name,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	RoutingNumber string `json:"routing_number,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	AccountType   string `json:"account_type,omitempty"`
}

func source(in Instrument) (sourcePayload, error) {
	switch {
	case in.Card != nil:
		return sourcePayload{
			Type: "card", Number: in.Card.Number, ExpMonth: in.Card.ExpMonth, ExpYear: in.Card.ExpYear,
			CVC: in.Card.CVC, Name: in.Card.NameOnCard, PostalCode: in.Card.PostalCode,
		}, nil
	case in.Bank != nil:
		return sourcePayload{
			Type: "bank_account", RoutingNumber: in.Bank.RoutingNumber, AccountNumber: in.Bank.AccountNumber,
			AccountType: in.Bank.AccountType, Name: in.Bank.HolderName,
		}, nil
	case in.Saved != nil:
		return sourcePayload{Type: "token", Token: in.Saved.Token}, nil
	}
	return sourcePayload{}, errors.New("instrument has no details")
}

type chargeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason"`
}

func (c *HTTPClient) Charge(ctx context.Context, in Instrument, amountCents int64, opts ChargeOptions) (*ChargeResult, error) {
	src, err := source(in)
	if err != nil {
		return nil, err
	}
	body := chargeRequest{
		ReferenceID: opts.CorrelationID,
		Amount:      amountCents,
		Currency:    "USD",
		Description: opts.Description,
		Email:       opts.Email,
		Source:      src,
	}

	out, err := c.breaker.Execute(func() (any, error) {
		var resp chargeResponse
		raw, err := c.post(ctx, "/v1/charges", opts.CorrelationID, body, &resp)
		if err != nil {
			return nil, err
		}
		res := &ChargeResult{TransactionID: resp.ID, Response: string(raw)}
		switch resp.Status {
		case "succeeded", "pending":
			res.Success = true
			return res, nil
		default:
			return res, fmt.Errorf("%w: %s", ErrDeclined, resp.FailureReason)
		}
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	res, _ := out.(*ChargeResult)
	return res, err
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (c *HTTPClient) Tokenize(ctx context.Context, in Instrument) (*Token, error) {
	src, err := source(in)
	if err != nil {
		return nil, err
	}
	var resp tokenResponse
	if _, err := c.post(ctx, "/v1/tokens", "", map[string]any{"source": src}, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, errors.New("gateway returned an empty token")
	}
	kind := domain.InstrumentCard
	if in.Bank != nil {
		kind = domain.InstrumentBank
	}
	return &Token{Token: resp.Token, Kind: kind, Label: in.Label(), LastFour: in.LastFour()}, nil
}

func (c *HTTPClient) post(ctx context.Context, path, idempotencyKey string, payload, dst any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gateway response read failed: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return raw, fmt.Errorf("gateway error %d: %s", resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return raw, fmt.Errorf("gateway response decode failed: %w", err)
	}
	return raw, nil
}
