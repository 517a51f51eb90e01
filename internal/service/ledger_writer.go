package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerWriter appends payments and memos to the external ledger, applies
// them to receivables and keeps the collection sub-ledger in step.
type LedgerWriter struct {
	db  domain.LedgerDB
	cfg config.Ledger
	log *zap.Logger
	now func() time.Time
}

func NewLedgerWriter(db domain.LedgerDB, cfg config.Ledger, log *zap.Logger) *LedgerWriter {
	return &LedgerWriter{db: db, cfg: cfg, log: log, now: time.Now}
}

// Write appends every payload of the batch inside one transaction. Keys are
// sequenced under the ledger's exclusive lock; any failure rolls back the
// whole batch.
func (w *LedgerWriter) Write(ctx context.Context, batch []domain.EntryPayload) ([]domain.WriteResult, error) {
	if !w.cfg.Enabled {
		return nil, domain.ErrLedgerDisabled
	}
	if len(batch) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	var results []domain.WriteResult
	err := w.db.InTx(ctx, func(tx domain.LedgerTx) error {
		results = results[:0]
		if err := tx.LockForWrite(ctx); err != nil {
			return err
		}

		bw := &batchWriter{w: w, tx: tx, now: w.now()}
		for i, p := range batch {
			res, err := bw.write(ctx, p)
			if err != nil {
				return fmt.Errorf("ledger batch item %d (%s): %w", i, p.Type, err)
			}
			results = append(results, *res)
		}
		return nil
	})
	if err != nil {
		w.log.Error("ledger write rolled back",
			zap.String("correlation_id", batch[0].CorrelationID),
			zap.Int("entries", len(batch)),
			zap.Error(err))
		return nil, err
	}

	for _, r := range results {
		w.log.Info("ledger entry written",
			zap.String("correlation_id", batch[0].CorrelationID),
			zap.Int64("entry_id", r.EntryID),
			zap.Int64("entry_number", r.EntryNumber),
			zap.String("type", string(r.Type)),
			zap.String("amount", r.Amount.StringFixed(2)),
			zap.Int("applications", len(r.Applications)),
			zap.Int("distributions", r.Distributions))
	}
	return results, nil
}

// batchWriter carries per-batch state: the payment entry memos may settle
// against and how much of its credit is still free.
type batchWriter struct {
	w   *LedgerWriter
	tx  domain.LedgerTx
	now time.Time

	paymentEntryID int64
	paymentCredit  decimal.Decimal
}

func (b *batchWriter) write(ctx context.Context, p domain.EntryPayload) (*domain.WriteResult, error) {
	switch p.Type {
	case domain.EntryPayment, domain.EntryDebitMemo, domain.EntryCreditMemo:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidEntryType, p.Type)
	}
	amount := p.Amount.Abs()
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: zero amount", domain.ErrInvalidEntryType)
	}
	if p.SettlesPayment && (p.Type != domain.EntryDebitMemo || b.paymentEntryID == 0) {
		return nil, fmt.Errorf("%w: only a debit memo after a payment can settle against it", domain.ErrNotApplicable)
	}

	applying := decimal.Zero
	for _, a := range p.Applications {
		applying = applying.Add(a.Amount)
	}
	if applying.GreaterThan(amount) {
		return nil, fmt.Errorf("%w: applying %s of %s", domain.ErrOverApplied, applying.StringFixed(2), amount.StringFixed(2))
	}

	if err := b.validateRefs(ctx, p); err != nil {
		return nil, err
	}

	id, number, err := b.tx.NextEntryKeys(ctx)
	if err != nil {
		return nil, err
	}

	comments, err := auditComments(p)
	if err != nil {
		return nil, err
	}
	date := p.Date
	if date.IsZero() {
		date = b.now
	}
	posted := b.now
	entry := domain.LedgerEntry{
		ID:            id,
		Number:        number,
		Type:          p.Type,
		SubtypeID:     p.SubtypeID,
		AccountID:     p.AccountID,
		Amount:        p.Type.Signed(amount),
		Reference:     truncateReference(p.Reference, b.w.cfg.ReferenceWidth),
		Comments:      comments,
		ActorID:       p.ActorID,
		BankAccountID: p.BankAccountID,
		Date:          date,
		PostedAt:      &posted,
		ApprovedAt:    &posted,
	}
	if err := b.tx.InsertEntry(ctx, entry); err != nil {
		return nil, err
	}

	res := &domain.WriteResult{EntryID: id, EntryNumber: number, Type: p.Type, Amount: entry.Amount}
	for _, a := range p.Applications {
		app, n, err := b.apply(ctx, id, a)
		if err != nil {
			return nil, err
		}
		res.Applications = append(res.Applications, *app)
		res.Distributions += n
	}

	if p.Type == domain.EntryPayment && b.paymentEntryID == 0 {
		b.paymentEntryID = id
		b.paymentCredit = amount.Sub(applying)
	}

	if p.SettlesPayment {
		if amount.GreaterThan(b.paymentCredit) {
			return nil, fmt.Errorf("%w: memo %s exceeds free payment credit %s",
				domain.ErrOverApplied, amount.StringFixed(2), b.paymentCredit.StringFixed(2))
		}
		app, _, err := b.apply(ctx, b.paymentEntryID, domain.Allocation{EntryID: id, Amount: amount})
		if err != nil {
			return nil, err
		}
		b.paymentCredit = b.paymentCredit.Sub(amount)
		res.Applications = append(res.Applications, *app)
	}
	return res, nil
}

func (b *batchWriter) validateRefs(ctx context.Context, p domain.EntryPayload) error {
	refs := []struct {
		kind domain.RefKind
		id   int64
	}{
		{domain.RefAccount, p.AccountID},
		{domain.RefStaff, p.ActorID},
		{domain.RefSubtype, p.SubtypeID},
	}
	if p.Type == domain.EntryPayment || p.BankAccountID != 0 {
		refs = append(refs, struct {
			kind domain.RefKind
			id   int64
		}{domain.RefBankAccount, p.BankAccountID})
	}

	for _, r := range refs {
		if r.id <= 0 {
			return fmt.Errorf("%w: %s id not set", domain.ErrReferenceMissing, r.kind)
		}
		ok, err := b.tx.ReferenceExists(ctx, r.kind, r.id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s %d", domain.ErrReferenceMissing, r.kind, r.id)
		}
	}

	isInvoice, err := b.tx.SubtypeIsInvoice(ctx, p.SubtypeID)
	if err != nil {
		return err
	}
	if isInvoice {
		return fmt.Errorf("%w: subtype %d is an invoice subtype", domain.ErrInvalidEntryType, p.SubtypeID)
	}
	return nil
}

// apply records that alloc.Amount of alloc.EntryID is satisfied by toEntryID
// and, for invoices, fans the amount out over the invoice's billable units.
func (b *batchWriter) apply(ctx context.Context, toEntryID int64, alloc domain.Allocation) (*domain.LedgerApplication, int, error) {
	target, err := b.tx.GetEntry(ctx, alloc.EntryID)
	if err != nil {
		return nil, 0, err
	}
	if !target.Type.Receivable() {
		return nil, 0, fmt.Errorf("%w: entry %d is a %s", domain.ErrNotApplicable, target.ID, target.Type)
	}
	if target.PostedAt == nil {
		return nil, 0, fmt.Errorf("%w: entry %d", domain.ErrInvoiceNotPosted, target.ID)
	}

	already, err := b.tx.AppliedTotal(ctx, target.ID)
	if err != nil {
		return nil, 0, err
	}
	if already.Add(alloc.Amount).GreaterThan(target.Amount) {
		return nil, 0, fmt.Errorf("%w: entry %d has %s applied of %s, cannot add %s", domain.ErrOverApplied,
			target.ID, already.StringFixed(2), target.Amount.StringFixed(2), alloc.Amount.StringFixed(2))
	}

	app := domain.LedgerApplication{
		FromEntryID: target.ID,
		ToEntryID:   toEntryID,
		Amount:      alloc.Amount,
		AppliedAt:   b.now,
	}
	if err := b.tx.InsertApplication(ctx, app); err != nil {
		return nil, 0, err
	}

	if !target.IsInvoice {
		return &app, 0, nil
	}

	units, err := b.tx.BillableUnits(ctx, target.ID)
	if err != nil {
		return nil, 0, err
	}
	rows := CollectionShares(units, alloc.Amount, target.Amount)
	for _, row := range rows {
		row.PaymentEntryID = toEntryID
		if row.ID, err = b.tx.NextDistributionID(ctx); err != nil {
			return nil, 0, err
		}
		if err := b.tx.InsertDistribution(ctx, row); err != nil {
			return nil, 0, err
		}
	}
	return &app, len(rows), nil
}

// CollectionShares scales each unit by applied/invoiceTotal. Every component
// is rounded to cents on its own.
func CollectionShares(units []domain.BillableUnit, applied, invoiceTotal decimal.Decimal) []domain.CollectionDistribution {
	if !invoiceTotal.IsPositive() {
		return nil
	}
	ratio := applied.DivRound(invoiceTotal, 12)
	scale := func(d decimal.Decimal) decimal.Decimal {
		return d.Mul(ratio).Round(2)
	}

	rows := make([]domain.CollectionDistribution, 0, len(units))
	for _, u := range units {
		rows = append(rows, domain.CollectionDistribution{
			InvoiceEntryID: u.InvoiceEntryID,
			UnitID:         u.ID,
			Collected:      scale(u.Total()),
			Principal:      scale(u.Billed),
			Surcharge:      scale(u.Surcharge),
			Discount:       scale(u.Discount),
			Tax1:           scale(u.Tax1),
			Tax2:           scale(u.Tax2),
		})
	}
	return rows
}

// truncateReference cuts the reference to the ledger's field width on a rune boundary.
func truncateReference(ref string, width int) string {
	if width <= 0 || utf8.RuneCountInString(ref) <= width {
		return ref
	}
	return string([]rune(ref)[:width])
}

type auditRecord struct {
	CorrelationID string                 `json:"correlation_id"`
	Provenance    *domain.MemoProvenance `json:"provenance,omitempty"`
}

// auditComments keeps the full correlation id and memo provenance, which the
// short reference field cannot hold.
func auditComments(p domain.EntryPayload) (string, error) {
	if p.CorrelationID == "" {
		return "", errors.New("ledger payload has no correlation id")
	}
	raw, err := json.Marshal(auditRecord{CorrelationID: p.CorrelationID, Provenance: p.Provenance})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
