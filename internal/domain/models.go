package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAttempt     = errors.New("invalid payment attempt")
	ErrUnsupportedMethod  = errors.New("unsupported charge method")
	ErrMissingInstrument  = errors.New("instrument details do not match charge method")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrNegativeFee        = errors.New("fee cannot be negative")
	ErrFeeExceedsAmount   = errors.New("fee included in amount exceeds the amount")
	ErrSubCentPrecision   = errors.New("amounts are limited to whole cents")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrAcceptanceNotFound = errors.New("engagement acceptance not found")
	ErrSettlementClaimed  = errors.New("settlement already in progress")
)

// ChargeMethod selects the gateway a payment is charged through.
type ChargeMethod string

const (
	MethodNewCard         ChargeMethod = "new_card"
	MethodNewBank         ChargeMethod = "new_bank"
	MethodSavedInstrument ChargeMethod = "saved_instrument"
	MethodCheck           ChargeMethod = "check"
)

// Channel records where the payment was collected.
type Channel string

const (
	ChannelAdmin       Channel = "admin"
	ChannelSelfService Channel = "self_service"
)

// InstrumentKind distinguishes saved cards from saved bank accounts.
type InstrumentKind string

const (
	InstrumentCard InstrumentKind = "card"
	InstrumentBank InstrumentKind = "bank"
)

type CardDetails struct {
	Number     string `json:"-"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVC        string `json:"-"`
	NameOnCard string `json:"name_on_card"`
	PostalCode string `json:"postal_code"`
}

type BankDetails struct {
	RoutingNumber string `json:"routing_number"`
	AccountNumber string `json:"-"`
	AccountType   string `json:"account_type"` // checking | savings
	HolderName    string `json:"holder_name"`
}

// SavedInstrument is a previously tokenized card or bank account.
type SavedInstrument struct {
	ID        string         `json:"id" bson:"_id"`
	PayerID   string         `json:"payer_id" bson:"payer_id"`
	Kind      InstrumentKind `json:"kind" bson:"kind"`
	Token     string         `json:"-" bson:"token"`
	Label     string         `json:"label" bson:"label"`
	LastFour  string         `json:"last_four" bson:"last_four"`
	CreatedAt time.Time      `json:"created_at" bson:"created_at"`
}

type CheckDetails struct {
	Number string `json:"number"`
	Memo   string `json:"memo"`
}

// Payer identifies who is paying and the ledger account they pay from.
type Payer struct {
	ID        string `json:"id"`
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
}

// EngagementRef is an engagement selected on the payment, with the acceptance
// evidence captured when the payer signed the proposal.
type EngagementRef struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Signature string `json:"signature"`
	IP        string `json:"ip"`
}

// PaymentAttempt is the immutable command driving one payment saga.
type PaymentAttempt struct {
	CorrelationID string
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	Method        ChargeMethod

	Card  *CardDetails
	Bank  *BankDetails
	Saved *SavedInstrument
	Check *CheckDetails

	Payer       Payer
	Invoices    []int64
	Engagements []EngagementRef

	LeaveUnapplied      bool
	FeeIncludedInAmount bool
	SavePaymentMethod   bool
	SendReceipt         bool
	Channel             Channel
}

// Validate checks the attempt before any external call is made.
func (a PaymentAttempt) Validate() error {
	if !a.Amount.IsPositive() {
		return fmt.Errorf("%w: %w", ErrInvalidAttempt, ErrNonPositiveAmount)
	}
	if a.Fee.IsNegative() {
		return fmt.Errorf("%w: %w", ErrInvalidAttempt, ErrNegativeFee)
	}
	if !a.Amount.Equal(a.Amount.Round(2)) || !a.Fee.Equal(a.Fee.Round(2)) {
		return fmt.Errorf("%w: %w", ErrInvalidAttempt, ErrSubCentPrecision)
	}
	if a.FeeIncludedInAmount && a.Fee.GreaterThanOrEqual(a.Amount) {
		return fmt.Errorf("%w: %w", ErrInvalidAttempt, ErrFeeExceedsAmount)
	}

	var ok bool
	switch a.Method {
	case MethodNewCard:
		ok = a.Card != nil
	case MethodNewBank:
		ok = a.Bank != nil
	case MethodSavedInstrument:
		ok = a.Saved != nil && a.Saved.Token != ""
	case MethodCheck:
		ok = a.Check != nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMethod, a.Method)
	}
	if !ok {
		return fmt.Errorf("%w: %w (%s)", ErrInvalidAttempt, ErrMissingInstrument, a.Method)
	}
	return nil
}

// Total is what the payer is charged.
func (a PaymentAttempt) Total() decimal.Decimal {
	if a.FeeIncludedInAmount {
		return a.Amount
	}
	return a.Amount.Add(a.Fee)
}

// Applicable is the part of the charge that pays down receivables.
func (a PaymentAttempt) Applicable() decimal.Decimal {
	if a.FeeIncludedInAmount {
		return a.Amount.Sub(a.Fee)
	}
	return a.Amount
}

// SettlesAsynchronously reports whether the money is only guaranteed after an
// external settlement confirmation.
func (a PaymentAttempt) SettlesAsynchronously() bool {
	if a.Method == MethodNewBank {
		return true
	}
	return a.Method == MethodSavedInstrument && a.Saved != nil && a.Saved.Kind == InstrumentBank
}

type PaymentStatus string

const (
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
)

// LedgerSyncMarker is stamped on a payment once its ledger write was attempted.
type LedgerSyncMarker struct {
	Disposition LedgerDisposition `json:"disposition"`
	EntryIDs    []int64           `json:"entry_ids,omitempty"`
	Error       string            `json:"error,omitempty"`
	SyncedAt    time.Time         `json:"synced_at"`
}

// PaymentMetadata carries the references and post-hoc markers of a payment.
type PaymentMetadata struct {
	Invoices       []int64           `json:"invoices,omitempty"`
	Engagements    []int64           `json:"engagements,omitempty"`
	DeferredLedger []byte            `json:"deferred_ledger,omitempty"`
	LedgerSync     *LedgerSyncMarker `json:"ledger_sync,omitempty"`
}

// Payment is the durable record of a charge outcome.
type Payment struct {
	CorrelationID   string          `json:"correlation_id"`
	TransactionID   *string         `json:"transaction_id"`
	Amount          decimal.Decimal `json:"amount"`
	Fee             decimal.Decimal `json:"fee"`
	Total           decimal.Decimal `json:"total"`
	Method          ChargeMethod    `json:"method"`
	InstrumentLabel string          `json:"instrument_label"`
	LastFour        string          `json:"last_four"`
	Status          PaymentStatus   `json:"status"`
	PayerID         string          `json:"payer_id"`
	AccountID       int64           `json:"account_id"`
	Channel         Channel         `json:"channel"`
	Metadata        PaymentMetadata `json:"metadata"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
