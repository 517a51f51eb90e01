package models

import (
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/shopspring/decimal"
)

// CardInput carries raw card data on the way to the gateway. It is never stored.
type CardInput struct {
	Number     string `json:"number"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
	CVC        string `json:"cvc"`
	NameOnCard string `json:"name_on_card"`
	PostalCode string `json:"postal_code"`
}

// BankInput carries raw bank account data on the way to the gateway.
type BankInput struct {
	RoutingNumber string `json:"routing_number"`
	AccountNumber string `json:"account_number"`
	AccountType   string `json:"account_type"`
	HolderName    string `json:"holder_name"`
}

// PaymentRequest is the payload of POST /payments. A nil Fee asks the
// platform to quote it.
type PaymentRequest struct {
	Amount              decimal.Decimal        `json:"amount"`
	Fee                 *decimal.Decimal       `json:"fee,omitempty"`
	FeeIncludedInAmount bool                   `json:"fee_included_in_amount"`
	Method              string                 `json:"method"`
	Card                *CardInput             `json:"card,omitempty"`
	Bank                *BankInput             `json:"bank,omitempty"`
	SavedInstrumentID   string                 `json:"saved_instrument_id,omitempty"`
	Check               *domain.CheckDetails   `json:"check,omitempty"`
	Payer               domain.Payer           `json:"payer"`
	Invoices            []int64                `json:"invoices"`
	Engagements         []domain.EngagementRef `json:"engagements"`
	LeaveUnapplied      bool                   `json:"leave_unapplied"`
	SavePaymentMethod   bool                   `json:"save_payment_method"`
	SendReceipt         bool                   `json:"send_receipt"`
	Channel             string                 `json:"channel"`
}

// ToAttempt builds the saga command. saved is the resolved instrument for
// saved_instrument payments and nil otherwise; fee is the final fee.
func (r PaymentRequest) ToAttempt(correlationID string, saved *domain.SavedInstrument, fee decimal.Decimal) domain.PaymentAttempt {
	a := domain.PaymentAttempt{
		CorrelationID:       correlationID,
		Amount:              r.Amount,
		Fee:                 fee,
		Method:              domain.ChargeMethod(r.Method),
		Saved:               saved,
		Check:               r.Check,
		Payer:               r.Payer,
		Invoices:            r.Invoices,
		Engagements:         r.Engagements,
		LeaveUnapplied:      r.LeaveUnapplied,
		FeeIncludedInAmount: r.FeeIncludedInAmount,
		SavePaymentMethod:   r.SavePaymentMethod,
		SendReceipt:         r.SendReceipt,
		Channel:             domain.Channel(r.Channel),
	}
	if a.Channel == "" {
		a.Channel = domain.ChannelSelfService
	}
	if c := r.Card; c != nil {
		a.Card = &domain.CardDetails{
			Number: c.Number, ExpMonth: c.ExpMonth, ExpYear: c.ExpYear,
			CVC: c.CVC, NameOnCard: c.NameOnCard, PostalCode: c.PostalCode,
		}
	}
	if b := r.Bank; b != nil {
		a.Bank = &domain.BankDetails{
			RoutingNumber: b.RoutingNumber, AccountNumber: b.AccountNumber,
			AccountType: b.AccountType, HolderName: b.HolderName,
		}
	}
	return a
}

// AcceptRequest is the payload of POST /engagements/accept.
type AcceptRequest struct {
	EngagementIDs []int64 `json:"engagement_ids"`
	ActorID       int64   `json:"actor_id"`
}

// FeeQuote answers GET /fees/quote.
type FeeQuote struct {
	Method domain.ChargeMethod `json:"method"`
	Amount decimal.Decimal     `json:"amount"`
	Fee    decimal.Decimal     `json:"fee"`
	Total  decimal.Decimal     `json:"total"`
}

// PaymentResponse wraps a saga report with the flag operators filter on.
type PaymentResponse struct {
	*domain.PaymentReport
	NeedsRemediation bool `json:"needs_remediation"`
}
