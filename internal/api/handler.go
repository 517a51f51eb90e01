package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/punchamoorthee/paysync/internal/models"
	"github.com/punchamoorthee/paysync/internal/service"
	"github.com/punchamoorthee/paysync/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paysync_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paysync_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})
)

const maxBodyBytes = 1 << 20

type PaymentProcessor interface {
	Process(ctx context.Context, attempt domain.PaymentAttempt) (*domain.PaymentReport, error)
	Settle(ctx context.Context, correlationID string) (*domain.PaymentReport, error)
}

type PaymentReader interface {
	Get(ctx context.Context, correlationID string) (*domain.Payment, error)
}

type InstrumentLister interface {
	ListByPayer(ctx context.Context, payerID string) ([]domain.SavedInstrument, error)
}

type EngagementBatchAccepter interface {
	AcceptAll(ctx context.Context, engagementIDs []int64, actorID int64) domain.BatchAcceptOutcome
}

type EntryLister interface {
	Entries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error)
}

type FeeQuoter interface {
	Quote(method domain.ChargeMethod, savedKind domain.InstrumentKind, amount decimal.Decimal) decimal.Decimal
}

// Deps are the collaborators behind the HTTP surface. Entries is nil when the
// ledger integration is disabled.
type Deps struct {
	Payments     PaymentProcessor
	PaymentStore PaymentReader
	Instruments  InstrumentLister
	Engagements  EngagementBatchAccepter
	Entries      EntryLister
	Fees         FeeQuoter
	Log          *zap.Logger
}

type Handler struct {
	Deps
}

func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Register mounts the API on r.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/payments", h.CreatePaymentHandler).Methods("POST")
	v1.HandleFunc("/payments/{id}", h.GetPaymentHandler).Methods("GET")
	v1.HandleFunc("/payments/{id}/settlement", h.SettlePaymentHandler).Methods("POST")
	v1.HandleFunc("/engagements/accept", h.AcceptEngagementsHandler).Methods("POST")
	v1.HandleFunc("/fees/quote", h.QuoteFeeHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id}/entries", h.GetAccountEntriesHandler).Methods("GET")
	v1.HandleFunc("/payers/{id}/instruments", h.ListInstrumentsHandler).Methods("GET")
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	// The key doubles as the payment's correlation id, so a retried request
	// can never charge twice.
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		h.respondError(w, http.StatusBadRequest, "Missing Idempotency-Key header", "POST", endpoint)
		return
	}

	var req models.PaymentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}

	existing, err := h.PaymentStore.Get(r.Context(), idempotencyKey)
	switch {
	case err == nil:
		w.Header().Set("Location", "/api/v1/payments/"+existing.CorrelationID)
		h.respondJSON(w, http.StatusOK, existing, "POST", endpoint)
		return
	case !errors.Is(err, domain.ErrPaymentNotFound):
		h.Log.Error("payment replay lookup failed", zap.String("correlation_id", idempotencyKey), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", endpoint)
		return
	}

	var saved *domain.SavedInstrument
	if domain.ChargeMethod(req.Method) == domain.MethodSavedInstrument {
		saved, err = h.findInstrument(r.Context(), req.Payer.ID, req.SavedInstrumentID)
		if err != nil {
			h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", endpoint)
			return
		}
	}

	var fee decimal.Decimal
	if req.Fee != nil {
		fee = *req.Fee
	} else {
		var kind domain.InstrumentKind
		if saved != nil {
			kind = saved.Kind
		}
		fee = h.Fees.Quote(domain.ChargeMethod(req.Method), kind, req.Amount)
	}

	report, err := h.Payments.Process(r.Context(), req.ToAttempt(idempotencyKey, saved, fee))
	switch {
	case errors.Is(err, domain.ErrInvalidAttempt), errors.Is(err, domain.ErrUnsupportedMethod):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error(), "POST", endpoint)
	case errors.Is(err, service.ErrChargeFailed):
		h.respondJSON(w, http.StatusPaymentRequired, paymentResponse(report), "POST", endpoint)
	case errors.Is(err, store.ErrDuplicatePayment):
		h.respondError(w, http.StatusConflict, "Request processing in progress", "POST", endpoint)
	case err != nil:
		h.respondJSON(w, http.StatusInternalServerError, paymentResponse(report), "POST", endpoint)
	default:
		w.Header().Set("Location", "/api/v1/payments/"+report.CorrelationID)
		h.respondJSON(w, http.StatusCreated, paymentResponse(report), "POST", endpoint)
	}
}

func (h *Handler) findInstrument(ctx context.Context, payerID, instrumentID string) (*domain.SavedInstrument, error) {
	if payerID == "" || instrumentID == "" {
		return nil, errors.New("saved_instrument_id and payer.id are required")
	}
	instruments, err := h.Instruments.ListByPayer(ctx, payerID)
	if err != nil {
		return nil, err
	}
	for i := range instruments {
		if instruments[i].ID == instrumentID {
			return &instruments[i], nil
		}
	}
	return nil, fmt.Errorf("instrument %s not found for payer", instrumentID)
}

func (h *Handler) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/{id}"
	p, err := h.PaymentStore.Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, domain.ErrPaymentNotFound) {
		h.respondError(w, http.StatusNotFound, "Payment not found", "GET", endpoint)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, p, "GET", endpoint)
}

func (h *Handler) SettlePaymentHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payments/{id}/settlement"
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", endpoint))
	defer timer.ObserveDuration()

	report, err := h.Payments.Settle(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound):
		h.respondError(w, http.StatusNotFound, "Payment not found", "POST", endpoint)
	case errors.Is(err, service.ErrNothingToSettle), errors.Is(err, domain.ErrSettlementClaimed):
		h.respondError(w, http.StatusConflict, err.Error(), "POST", endpoint)
	case err != nil && report == nil:
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "POST", endpoint)
	case err != nil:
		h.respondJSON(w, http.StatusInternalServerError, paymentResponse(report), "POST", endpoint)
	default:
		h.respondJSON(w, http.StatusOK, paymentResponse(report), "POST", endpoint)
	}
}

func (h *Handler) AcceptEngagementsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/engagements/accept"
	var req models.AcceptRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", endpoint)
		return
	}
	if len(req.EngagementIDs) == 0 || req.ActorID <= 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "engagement_ids and actor_id are required", "POST", endpoint)
		return
	}

	batch := h.Engagements.AcceptAll(r.Context(), req.EngagementIDs, req.ActorID)
	code := http.StatusOK
	if !batch.Success {
		code = http.StatusUnprocessableEntity
	}
	h.respondJSON(w, code, batch, "POST", endpoint)
}

func (h *Handler) QuoteFeeHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/fees/quote"
	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil || !amount.IsPositive() {
		h.respondError(w, http.StatusBadRequest, "amount must be a positive decimal", "GET", endpoint)
		return
	}
	method := domain.ChargeMethod(q.Get("method"))
	switch method {
	case domain.MethodNewCard, domain.MethodNewBank, domain.MethodSavedInstrument, domain.MethodCheck:
	default:
		h.respondError(w, http.StatusBadRequest, "unknown method", "GET", endpoint)
		return
	}

	fee := h.Fees.Quote(method, domain.InstrumentKind(q.Get("kind")), amount)
	h.respondJSON(w, http.StatusOK, models.FeeQuote{
		Method: method,
		Amount: amount,
		Fee:    fee,
		Total:  amount.Add(fee),
	}, "GET", endpoint)
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/accounts/{id}/entries"
	if h.Entries == nil {
		h.respondError(w, http.StatusServiceUnavailable, domain.ErrLedgerDisabled.Error(), "GET", endpoint)
		return
	}
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid account id", "GET", endpoint)
		return
	}

	entries, err := h.Entries.Entries(r.Context(), id)
	if errors.Is(err, domain.ErrReferenceMissing) {
		h.respondError(w, http.StatusNotFound, "Account not found", "GET", endpoint)
		return
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, entries, "GET", endpoint)
}

func (h *Handler) ListInstrumentsHandler(w http.ResponseWriter, r *http.Request) {
	const endpoint = "/payers/{id}/instruments"
	instruments, err := h.Instruments.ListByPayer(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", endpoint)
		return
	}
	if instruments == nil {
		instruments = []domain.SavedInstrument{}
	}
	h.respondJSON(w, http.StatusOK, instruments, "GET", endpoint)
}

func paymentResponse(report *domain.PaymentReport) models.PaymentResponse {
	return models.PaymentResponse{PaymentReport: report, NeedsRemediation: report.NeedsRemediation()}
}

// Helpers
func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
