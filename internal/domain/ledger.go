package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrLedgerDisabled   = errors.New("ledger integration disabled")
	ErrReferenceMissing = errors.New("referenced ledger record does not exist")
	ErrEntryNotFound    = errors.New("ledger entry not found")
	ErrInvoiceNotPosted = errors.New("ledger entry not posted")
	ErrOverApplied      = errors.New("application exceeds entry total")
	ErrNotApplicable    = errors.New("entry cannot be satisfied by a payment")
	ErrInvalidEntryType = errors.New("entry type cannot be written")
	ErrEmptyBatch       = errors.New("ledger batch is empty")
	ErrKeyCollision     = errors.New("ledger key already taken")
)

// EntryType is the kind of a ledger entry. It decides the stored sign.
type EntryType string

const (
	EntryInvoice    EntryType = "invoice"
	EntryPayment    EntryType = "payment"
	EntryDebitMemo  EntryType = "debit_memo"
	EntryCreditMemo EntryType = "credit_memo"
)

// Signed returns amount with the sign the ledger stores for this entry type:
// invoices and debit memos positive, payments and credit memos negative.
func (t EntryType) Signed(amount decimal.Decimal) decimal.Decimal {
	switch t {
	case EntryInvoice, EntryDebitMemo:
		return amount.Abs()
	default:
		return amount.Abs().Neg()
	}
}

// Receivable reports whether entries of this type can be satisfied by an application.
func (t EntryType) Receivable() bool {
	return t == EntryInvoice || t == EntryDebitMemo
}

// RefKind names a foreign key the writer validates before inserting.
type RefKind string

const (
	RefAccount     RefKind = "account"
	RefStaff       RefKind = "staff"
	RefBankAccount RefKind = "bank_account"
	RefSubtype     RefKind = "entry_subtype"
)

// LedgerEntry is one append-only row of the external ledger.
type LedgerEntry struct {
	ID            int64           `json:"id"`
	Number        int64           `json:"number"`
	Type          EntryType       `json:"type"`
	SubtypeID     int64           `json:"subtype_id"`
	IsInvoice     bool            `json:"is_invoice"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
	Comments      string          `json:"comments"`
	ActorID       int64           `json:"actor_id"`
	BankAccountID int64           `json:"bank_account_id,omitempty"`
	Date          time.Time       `json:"date"`
	PostedAt      *time.Time      `json:"posted_at,omitempty"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
}

// LedgerApplication records that Amount of FromEntryID is satisfied by ToEntryID.
type LedgerApplication struct {
	FromEntryID int64           `json:"from_entry_id"`
	ToEntryID   int64           `json:"to_entry_id"`
	Amount      decimal.Decimal `json:"amount"`
	AppliedAt   time.Time       `json:"applied_at"`
}

// BillableUnit is a time or expense line composing an invoice.
type BillableUnit struct {
	ID             int64           `json:"id"`
	InvoiceEntryID int64           `json:"invoice_entry_id"`
	Billed         decimal.Decimal `json:"billed"`
	Surcharge      decimal.Decimal `json:"surcharge"`
	Discount       decimal.Decimal `json:"discount"`
	Tax1           decimal.Decimal `json:"tax1"`
	Tax2           decimal.Decimal `json:"tax2"`
}

// Total is the unit's share of the invoice.
func (u BillableUnit) Total() decimal.Decimal {
	return u.Billed.Add(u.Surcharge).Sub(u.Discount).Add(u.Tax1).Add(u.Tax2)
}

// CollectionDistribution is the sub-ledger fan-out of an applied amount onto one unit.
type CollectionDistribution struct {
	ID             int64           `json:"id"`
	PaymentEntryID int64           `json:"payment_entry_id"`
	InvoiceEntryID int64           `json:"invoice_entry_id"`
	UnitID         int64           `json:"unit_id"`
	Collected      decimal.Decimal `json:"collected"`
	Principal      decimal.Decimal `json:"principal"`
	Surcharge      decimal.Decimal `json:"surcharge"`
	Discount       decimal.Decimal `json:"discount"`
	Tax1           decimal.Decimal `json:"tax1"`
	Tax2           decimal.Decimal `json:"tax2"`
}

// InvoiceBalance is an open receivable as read from the ledger.
type InvoiceBalance struct {
	EntryID     int64           `json:"entry_id"`
	AccountID   int64           `json:"account_id"`
	AccountName string          `json:"account_name"`
	Total       decimal.Decimal `json:"total"`
	Balance     decimal.Decimal `json:"balance"`
}

// Allocation pairs a satisfied entry with the amount applied to it.
type Allocation struct {
	EntryID int64           `json:"entry_id"`
	Amount  decimal.Decimal `json:"amount"`
}

// MemoProvenance links a distribution memo back to the payment that funded it.
type MemoProvenance struct {
	SourceCorrelationID string `json:"source_correlation_id"`
	CounterAccountID    int64  `json:"counter_account_id"`
	CounterAccountName  string `json:"counter_account_name"`
	GroupDistribution   bool   `json:"group_distribution"`
}

// EntryPayload is one entry to append. Amount sign is ignored; Type decides it.
type EntryPayload struct {
	Type           EntryType       `json:"type"`
	SubtypeID      int64           `json:"subtype_id"`
	AccountID      int64           `json:"account_id"`
	ActorID        int64           `json:"actor_id"`
	BankAccountID  int64           `json:"bank_account_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Reference      string          `json:"reference"`
	CorrelationID  string          `json:"correlation_id"`
	Date           time.Time       `json:"date"`
	Applications   []Allocation    `json:"applications,omitempty"`
	Provenance     *MemoProvenance `json:"provenance,omitempty"`
	SettlesPayment bool            `json:"settles_payment,omitempty"`
}

// WriteResult describes what one payload produced.
type WriteResult struct {
	EntryID       int64               `json:"entry_id"`
	EntryNumber   int64               `json:"entry_number"`
	Type          EntryType           `json:"type"`
	Amount        decimal.Decimal     `json:"amount"`
	Applications  []LedgerApplication `json:"applications,omitempty"`
	Distributions int                 `json:"distributions"`
}

// LedgerTx is one open transaction against the external ledger. Key
// generation methods are only safe after LockForWrite.
type LedgerTx interface {
	LockForWrite(ctx context.Context) error
	NextEntryKeys(ctx context.Context) (id int64, number int64, err error)
	NextDistributionID(ctx context.Context) (int64, error)
	ReferenceExists(ctx context.Context, kind RefKind, id int64) (bool, error)
	SubtypeIsInvoice(ctx context.Context, subtypeID int64) (bool, error)
	InsertEntry(ctx context.Context, e LedgerEntry) error
	GetEntry(ctx context.Context, id int64) (*LedgerEntry, error)
	AppliedTotal(ctx context.Context, fromEntryID int64) (decimal.Decimal, error)
	InsertApplication(ctx context.Context, a LedgerApplication) error
	BillableUnits(ctx context.Context, invoiceEntryID int64) ([]BillableUnit, error)
	InsertDistribution(ctx context.Context, d CollectionDistribution) error

	LockEngagement(ctx context.Context, id int64) (*Engagement, error)
	OpenChangeset(ctx context.Context, actorID int64, at time.Time) (int64, error)
	UpdateEngagementType(ctx context.Context, id int64, typeCode string, actorID, changesetID int64) error
	CloseChangeset(ctx context.Context, id int64, at time.Time) error
}

// LedgerDB runs fn inside one transaction, committing on nil and rolling back otherwise.
type LedgerDB interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// InvoiceReader reads open balances outside of any write transaction.
type InvoiceReader interface {
	OpenInvoices(ctx context.Context, entryIDs []int64) ([]InvoiceBalance, error)
}
