package domain

import "github.com/shopspring/decimal"

// LedgerDisposition is what happened to a payment's ledger sync.
type LedgerDisposition string

const (
	LedgerWritten  LedgerDisposition = "written"
	LedgerDeferred LedgerDisposition = "deferred"
	LedgerSkipped  LedgerDisposition = "skipped"
	LedgerFailed   LedgerDisposition = "failed"
	LedgerDisabled LedgerDisposition = "disabled"
	// LedgerSettling marks a deferred write claimed by a running settlement.
	LedgerSettling LedgerDisposition = "settling"
)

type ChargeOutcome struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

type InstrumentOutcome struct {
	Requested    bool   `json:"requested"`
	Saved        bool   `json:"saved"`
	InstrumentID string `json:"instrument_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

type LedgerOutcome struct {
	Disposition     LedgerDisposition `json:"disposition"`
	Reason          string            `json:"reason,omitempty"`
	Entries         []WriteResult     `json:"entries,omitempty"`
	Undistributed   decimal.Decimal   `json:"undistributed"`
	SkippedAccounts []int64           `json:"skipped_accounts,omitempty"`
}

type ReceiptOutcome struct {
	Requested bool   `json:"requested"`
	Sent      bool   `json:"sent"`
	Reason    string `json:"reason,omitempty"`
}

// PaymentReport is the aggregate result of one saga.
type PaymentReport struct {
	CorrelationID string            `json:"correlation_id"`
	Charge        ChargeOutcome     `json:"charge"`
	Payment       *Payment          `json:"payment,omitempty"`
	Instrument    InstrumentOutcome `json:"instrument"`
	Ledger        LedgerOutcome     `json:"ledger"`
	Engagements   []AcceptOutcome   `json:"engagements,omitempty"`
	Receipt       ReceiptOutcome    `json:"receipt"`
}

// NeedsRemediation reports money that moved but did not fully reconcile.
// Operators fix these; the charge must not be retried.
func (r *PaymentReport) NeedsRemediation() bool {
	if !r.Charge.Success {
		return false
	}
	if r.Ledger.Disposition == LedgerFailed {
		return true
	}
	for _, e := range r.Engagements {
		if e.Failed() {
			return true
		}
	}
	return false
}
