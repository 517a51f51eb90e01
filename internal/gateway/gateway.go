// Package gateway charges payment instruments through an external processor.
package gateway

import (
	"context"
	"errors"

	"github.com/punchamoorthee/paysync/internal/domain"
)

var (
	ErrDeclined    = errors.New("charge declined")
	ErrUnavailable = errors.New("gateway unavailable")
)

// Instrument is exactly one of a new card, a new bank account or a saved token.
type Instrument struct {
	Card  *domain.CardDetails
	Bank  *domain.BankDetails
	Saved *domain.SavedInstrument
}

// Label and LastFour describe the instrument for receipts and records.
func (i Instrument) Label() string {
	switch {
	case i.Card != nil:
		return "Card"
	case i.Bank != nil:
		if i.Bank.AccountType != "" {
			return "Bank " + i.Bank.AccountType
		}
		return "Bank account"
	case i.Saved != nil:
		return i.Saved.Label
	}
	return ""
}

func (i Instrument) LastFour() string {
	switch {
	case i.Card != nil:
		return lastFour(i.Card.Number)
	case i.Bank != nil:
		return lastFour(i.Bank.AccountNumber)
	case i.Saved != nil:
		return i.Saved.LastFour
	}
	return ""
}

func lastFour(s string) string {
	if len(s) <= 4 {
		return s
	}
	return s[len(s)-4:]
}

type ChargeOptions struct {
	CorrelationID string
	Description   string
	Email         string
}

type ChargeResult struct {
	Success       bool
	TransactionID string
	Response      string
}

type Token struct {
	Token    string
	Kind     domain.InstrumentKind
	Label    string
	LastFour string
}

type Gateway interface {
	Charge(ctx context.Context, in Instrument, amountCents int64, opts ChargeOptions) (*ChargeResult, error)
	Tokenize(ctx context.Context, in Instrument) (*Token, error)
}
