package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "sk_test", time.Second, zap.NewNop())
}

func TestChargeSucceeded(t *testing.T) {
	t.Parallel()

	var got chargeRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/charges", r.URL.Path)
		assert.Equal(t, "corr-1", r.Header.Get("Idempotency-Key"))
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ch_123","status":"succeeded"}`))
	})

	in := Instrument{Card: &domain.CardDetails{Number: "4242424242424242", ExpMonth: 12, ExpYear: 2030}}
	res, err := c.Charge(context.Background(), in, 10050, ChargeOptions{CorrelationID: "corr-1"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "ch_123", res.TransactionID)
	assert.Equal(t, int64(10050), got.Amount)
	assert.Equal(t, "card", got.Source.Type)
}

func TestChargeDeclined(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"id":"ch_9","status":"failed","failure_reason":"insufficient_funds"}`))
	})

	in := Instrument{Bank: &domain.BankDetails{RoutingNumber: "110000000", AccountNumber: "000123456789"}}
	res, err := c.Charge(context.Background(), in, 500, ChargeOptions{CorrelationID: "corr-2"})

	require.ErrorIs(t, err, ErrDeclined)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "insufficient_funds")
}

func TestChargeServerError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	in := Instrument{Saved: &domain.SavedInstrument{Token: "tok_1"}}
	res, err := c.Charge(context.Background(), in, 500, ChargeOptions{CorrelationID: "corr-3"})

	assert.Error(t, err)
	assert.Nil(t, res)
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tokens", r.URL.Path)
		_, _ = w.Write([]byte(`{"token":"tok_abc"}`))
	})

	in := Instrument{Bank: &domain.BankDetails{AccountNumber: "000123456789", AccountType: "checking"}}
	tok, err := c.Tokenize(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "tok_abc", tok.Token)
	assert.Equal(t, domain.InstrumentBank, tok.Kind)
	assert.Equal(t, "6789", tok.LastFour)
	assert.Equal(t, "Bank checking", tok.Label)
}

func TestChargeWithoutInstrument(t *testing.T) {
	t.Parallel()

	c := NewHTTPClient("http://unused", "k", time.Second, zap.NewNop())
	_, err := c.Charge(context.Background(), Instrument{}, 100, ChargeOptions{})
	assert.Error(t, err)
}
