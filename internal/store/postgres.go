package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/shopspring/decimal"
)

// LedgerStore is the external ledger reached over a pgx pool.
type LedgerStore struct {
	Db *pgxpool.Pool
}

var (
	_ domain.LedgerDB      = (*LedgerStore)(nil)
	_ domain.InvoiceReader = (*LedgerStore)(nil)
	_ domain.LedgerTx      = (*ledgerTx)(nil)
)

func NewLedgerStore(ctx context.Context, connString string) (*LedgerStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &LedgerStore{Db: pool}, nil
}

func (s *LedgerStore) Close() {
	s.Db.Close()
}

// InTx runs fn in one read-committed transaction. Any error rolls back everything fn did.
func (s *LedgerStore) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// OpenInvoices returns the remaining balance of each receivable entry, in the order requested.
func (s *LedgerStore) OpenInvoices(ctx context.Context, entryIDs []int64) ([]domain.InvoiceBalance, error) {
	if len(entryIDs) == 0 {
		return nil, nil
	}

	rows, err := s.Db.Query(ctx, `
		SELECT e.id, e.account_id, a.name, e.amount::text,
		       (e.amount - COALESCE(SUM(ap.amount), 0))::text
		FROM ledger_entries e
		JOIN accounts a ON a.id = e.account_id
		LEFT JOIN ledger_applications ap ON ap.from_entry_id = e.id
		WHERE e.id = ANY($1::bigint[]) AND e.entry_type IN ('invoice', 'debit_memo')
		GROUP BY e.id, a.name
		ORDER BY array_position($1::bigint[], e.id)`,
		entryIDs)
	if err != nil {
		return nil, fmt.Errorf("open invoices query failed: %w", err)
	}
	defer rows.Close()

	var out []domain.InvoiceBalance
	for rows.Next() {
		var b domain.InvoiceBalance
		var total, balance string
		if err := rows.Scan(&b.EntryID, &b.AccountID, &b.AccountName, &total, &balance); err != nil {
			return nil, fmt.Errorf("open invoices scan failed: %w", err)
		}
		if b.Total, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if b.Balance, err = decimal.NewFromString(balance); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Entries lists an account's ledger entries, newest first.
func (s *LedgerStore) Entries(ctx context.Context, accountID int64) ([]domain.LedgerEntry, error) {
	var exists bool
	err := s.Db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE id=$1)", accountID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("account %d: %w", accountID, domain.ErrReferenceMissing)
	}

	rows, err := s.Db.Query(ctx, entrySelect+" WHERE e.account_id = $1 ORDER BY e.created_at DESC, e.id DESC", accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

const entrySelect = `
	SELECT e.id, e.entry_number, e.entry_type, e.subtype_id, COALESCE(s.is_invoice, FALSE),
	       e.account_id, e.amount::text, e.reference, e.comments, e.actor_id,
	       COALESCE(e.bank_account_id, 0), e.entry_date, e.posted_at, e.approved_at
	FROM ledger_entries e
	LEFT JOIN entry_subtypes s ON s.id = e.subtype_id`

func scanEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var entryType, amount string
	err := row.Scan(&e.ID, &e.Number, &entryType, &e.SubtypeID, &e.IsInvoice,
		&e.AccountID, &amount, &e.Reference, &e.Comments, &e.ActorID,
		&e.BankAccountID, &e.Date, &e.PostedAt, &e.ApprovedAt)
	if err != nil {
		return nil, err
	}
	e.Type = domain.EntryType(entryType)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, err
	}
	return &e, nil
}

type ledgerTx struct {
	tx pgx.Tx
}

// LockForWrite blocks every other writer of the keyed ledger tables until the
// transaction ends. Readers are not blocked.
func (t *ledgerTx) LockForWrite(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, "LOCK TABLE ledger_entries, ledger_applications, collection_distributions IN EXCLUSIVE MODE")
	if err != nil {
		return fmt.Errorf("ledger lock failed: %w", err)
	}
	return nil
}

func (t *ledgerTx) NextEntryKeys(ctx context.Context) (int64, int64, error) {
	var id, number int64
	err := t.tx.QueryRow(ctx,
		"SELECT COALESCE(MAX(id), 0) + 1, COALESCE(MAX(entry_number), 0) + 1 FROM ledger_entries",
	).Scan(&id, &number)
	if err != nil {
		return 0, 0, fmt.Errorf("next entry keys: %w", err)
	}
	return id, number, nil
}

func (t *ledgerTx) NextDistributionID(ctx context.Context) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM collection_distributions").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next distribution id: %w", err)
	}
	return id, nil
}

var refTables = map[domain.RefKind]string{
	domain.RefAccount:     "accounts",
	domain.RefStaff:       "staff",
	domain.RefBankAccount: "bank_accounts",
	domain.RefSubtype:     "entry_subtypes",
}

func (t *ledgerTx) ReferenceExists(ctx context.Context, kind domain.RefKind, id int64) (bool, error) {
	table, ok := refTables[kind]
	if !ok {
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}
	var exists bool
	err := t.tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id=$1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s lookup failed: %w", kind, err)
	}
	return exists, nil
}

func (t *ledgerTx) SubtypeIsInvoice(ctx context.Context, subtypeID int64) (bool, error) {
	var isInvoice bool
	err := t.tx.QueryRow(ctx, "SELECT is_invoice FROM entry_subtypes WHERE id=$1", subtypeID).Scan(&isInvoice)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("subtype %d: %w", subtypeID, domain.ErrReferenceMissing)
	}
	return isInvoice, err
}

func (t *ledgerTx) InsertEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_entries
			(id, entry_number, entry_type, subtype_id, account_id, amount, reference, comments,
			 actor_id, bank_account_id, entry_date, posted_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Number, string(e.Type), e.SubtypeID, e.AccountID, e.Amount.StringFixed(2),
		e.Reference, e.Comments, e.ActorID, nullableID(e.BankAccountID), e.Date, e.PostedAt, e.ApprovedAt)
	if err != nil {
		return fmt.Errorf("ledger entry insert failed: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) GetEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	e, err := scanEntry(t.tx.QueryRow(ctx, entrySelect+" WHERE e.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("entry %d: %w", id, domain.ErrEntryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("entry %d lookup failed: %w", id, err)
	}
	return e, nil
}

func (t *ledgerTx) AppliedTotal(ctx context.Context, fromEntryID int64) (decimal.Decimal, error) {
	var total string
	err := t.tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0)::text FROM ledger_applications WHERE from_entry_id = $1",
		fromEntryID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("applied total query failed: %w", err)
	}
	return decimal.NewFromString(total)
}

func (t *ledgerTx) InsertApplication(ctx context.Context, a domain.LedgerApplication) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_applications (from_entry_id, to_entry_id, amount, applied_at)
		VALUES ($1, $2, $3::numeric, $4)
		ON CONFLICT (from_entry_id, to_entry_id) DO UPDATE SET amount = ledger_applications.amount + EXCLUDED.amount`,
		a.FromEntryID, a.ToEntryID, a.Amount.StringFixed(2), a.AppliedAt)
	if err != nil {
		return fmt.Errorf("application insert failed: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) BillableUnits(ctx context.Context, invoiceEntryID int64) ([]domain.BillableUnit, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, invoice_entry_id, billed::text, surcharge::text, discount::text, tax1::text, tax2::text
		FROM billable_units WHERE invoice_entry_id = $1 ORDER BY id`, invoiceEntryID)
	if err != nil {
		return nil, fmt.Errorf("billable units query failed: %w", err)
	}
	defer rows.Close()

	var units []domain.BillableUnit
	for rows.Next() {
		var u domain.BillableUnit
		var parts [5]string
		if err := rows.Scan(&u.ID, &u.InvoiceEntryID, &parts[0], &parts[1], &parts[2], &parts[3], &parts[4]); err != nil {
			return nil, fmt.Errorf("billable unit scan failed: %w", err)
		}
		dst := []*decimal.Decimal{&u.Billed, &u.Surcharge, &u.Discount, &u.Tax1, &u.Tax2}
		for i, p := range parts {
			if *dst[i], err = decimal.NewFromString(p); err != nil {
				return nil, err
			}
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (t *ledgerTx) InsertDistribution(ctx context.Context, d domain.CollectionDistribution) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO collection_distributions
			(id, payment_entry_id, invoice_entry_id, unit_id, collected, principal, surcharge, discount, tax1, tax2)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric)`,
		d.ID, d.PaymentEntryID, d.InvoiceEntryID, d.UnitID,
		d.Collected.StringFixed(2), d.Principal.StringFixed(2), d.Surcharge.StringFixed(2),
		d.Discount.StringFixed(2), d.Tax1.StringFixed(2), d.Tax2.StringFixed(2))
	if err != nil {
		return fmt.Errorf("collection distribution insert failed: %w", classify(err))
	}
	return nil
}

func (t *ledgerTx) LockEngagement(ctx context.Context, id int64) (*domain.Engagement, error) {
	var e domain.Engagement
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, type_code, template_id, COALESCE(modified_by, 0), COALESCE(changeset_id, 0)
		FROM engagements WHERE id = $1 FOR UPDATE`, id,
	).Scan(&e.ID, &e.Name, &e.TypeCode, &e.TemplateID, &e.ModifiedBy, &e.ChangesetID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("engagement %d: %w", id, domain.ErrEngagementNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("engagement lock failed: %w", err)
	}
	return &e, nil
}

func (t *ledgerTx) OpenChangeset(ctx context.Context, actorID int64, at time.Time) (int64, error) {
	if _, err := t.tx.Exec(ctx, "LOCK TABLE changesets IN EXCLUSIVE MODE"); err != nil {
		return 0, fmt.Errorf("changeset lock failed: %w", err)
	}
	var id int64
	if err := t.tx.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) + 1 FROM changesets").Scan(&id); err != nil {
		return 0, fmt.Errorf("next changeset id: %w", err)
	}
	_, err := t.tx.Exec(ctx, "INSERT INTO changesets (id, actor_id, started_at) VALUES ($1, $2, $3)", id, actorID, at)
	if err != nil {
		return 0, fmt.Errorf("changeset insert failed: %w", classify(err))
	}
	return id, nil
}

func (t *ledgerTx) UpdateEngagementType(ctx context.Context, id int64, typeCode string, actorID, changesetID int64) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE engagements SET type_code = $1, modified_by = $2, changeset_id = $3 WHERE id = $4",
		typeCode, actorID, changesetID, id)
	if err != nil {
		return fmt.Errorf("engagement update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("engagement %d: %w", id, domain.ErrEngagementNotFound)
	}
	return nil
}

func (t *ledgerTx) CloseChangeset(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.Exec(ctx, "UPDATE changesets SET ended_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return fmt.Errorf("changeset close failed: %w", err)
	}
	return nil
}

// classify maps constraint violations onto domain errors.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", domain.ErrKeyCollision, pgErr.ConstraintName)
	case "23503":
		return fmt.Errorf("%w: %s", domain.ErrReferenceMissing, pgErr.ConstraintName)
	}
	return err
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
