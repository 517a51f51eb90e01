package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/punchamoorthee/paysync/internal/gateway"
	"github.com/punchamoorthee/paysync/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	acctAcme  = int64(1)
	acctBeta  = int64(2)
	acctGamma = int64(3)

	staffID        = int64(7)
	bankAccountID  = int64(9)
	subPayment     = int64(11)
	subDebitMemo   = int64(12)
	subCreditMemo  = int64(13)
	subInvoiceLine = int64(20)
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLedgerConfig() config.Ledger {
	return config.Ledger{
		Enabled:             true,
		Connection:          "test",
		StaffID:             staffID,
		BankAccountID:       bankAccountID,
		PaymentSubtypeID:    subPayment,
		DebitMemoSubtypeID:  subDebitMemo,
		CreditMemoSubtypeID: subCreditMemo,
		ReferenceWidth:      16,
	}
}

// memLedger is an in-memory ledger. A transaction holds the mutex for its
// whole duration and restores a snapshot when fn fails.
type memLedger struct {
	mu sync.Mutex

	names       map[int64]string
	staff       map[int64]bool
	banks       map[int64]bool
	subtypes    map[int64]bool
	entries     map[int64]domain.LedgerEntry
	apps        []domain.LedgerApplication
	units       map[int64][]domain.BillableUnit
	dists       []domain.CollectionDistribution
	engagements map[int64]domain.Engagement
	changesets  []domain.Changeset

	failInsertEntry error
}

func newMemLedger() *memLedger {
	return &memLedger{
		names:       map[int64]string{acctAcme: "Acme LLC", acctBeta: "Beta Holdings", acctGamma: "Gamma Trust"},
		staff:       map[int64]bool{staffID: true},
		banks:       map[int64]bool{bankAccountID: true},
		subtypes:    map[int64]bool{subPayment: false, subDebitMemo: false, subCreditMemo: false, subInvoiceLine: true},
		entries:     map[int64]domain.LedgerEntry{},
		units:       map[int64][]domain.BillableUnit{},
		engagements: map[int64]domain.Engagement{},
	}
}

func (l *memLedger) addInvoice(id, accountID int64, amount string, units ...domain.BillableUnit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	posted := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	l.entries[id] = domain.LedgerEntry{
		ID: id, Number: id, Type: domain.EntryInvoice, SubtypeID: subInvoiceLine, IsInvoice: true,
		AccountID: accountID, Amount: dec(amount), ActorID: staffID, Date: posted, PostedAt: &posted,
	}
	for _, u := range units {
		u.InvoiceEntryID = id
		l.units[id] = append(l.units[id], u)
	}
}

func (l *memLedger) addEngagement(e domain.Engagement) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.engagements[e.ID] = e
}

type memSnapshot struct {
	entries     map[int64]domain.LedgerEntry
	apps        []domain.LedgerApplication
	dists       []domain.CollectionDistribution
	engagements map[int64]domain.Engagement
	changesets  []domain.Changeset
}

func (l *memLedger) snapshot() memSnapshot {
	s := memSnapshot{
		entries:     make(map[int64]domain.LedgerEntry, len(l.entries)),
		apps:        append([]domain.LedgerApplication(nil), l.apps...),
		dists:       append([]domain.CollectionDistribution(nil), l.dists...),
		engagements: make(map[int64]domain.Engagement, len(l.engagements)),
		changesets:  append([]domain.Changeset(nil), l.changesets...),
	}
	for k, v := range l.entries {
		s.entries[k] = v
	}
	for k, v := range l.engagements {
		s.engagements[k] = v
	}
	return s
}

func (l *memLedger) restore(s memSnapshot) {
	l.entries = s.entries
	l.apps = s.apps
	l.dists = s.dists
	l.engagements = s.engagements
	l.changesets = s.changesets
}

func (l *memLedger) InTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.snapshot()
	if err := fn(&memTx{l: l}); err != nil {
		l.restore(snap)
		return err
	}
	return nil
}

func (l *memLedger) OpenInvoices(ctx context.Context, ids []int64) ([]domain.InvoiceBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.InvoiceBalance
	for _, id := range ids {
		e, ok := l.entries[id]
		if !ok || !e.Type.Receivable() {
			continue
		}
		out = append(out, domain.InvoiceBalance{
			EntryID:     id,
			AccountID:   e.AccountID,
			AccountName: l.names[e.AccountID],
			Total:       e.Amount,
			Balance:     e.Amount.Sub(l.appliedTotal(id)),
		})
	}
	return out, nil
}

func (l *memLedger) appliedTotal(id int64) decimal.Decimal {
	total := decimal.Zero
	for _, a := range l.apps {
		if a.FromEntryID == id {
			total = total.Add(a.Amount)
		}
	}
	return total
}

func (l *memLedger) entriesOf(t domain.EntryType) []domain.LedgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range l.entries {
		if e.Type == t {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *memLedger) entryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *memLedger) applied(id int64) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appliedTotal(id)
}

type memTx struct {
	l *memLedger
}

func (t *memTx) LockForWrite(ctx context.Context) error { return nil }

func (t *memTx) NextEntryKeys(ctx context.Context) (int64, int64, error) {
	var id, number int64
	for _, e := range t.l.entries {
		id = max(id, e.ID)
		number = max(number, e.Number)
	}
	return id + 1, number + 1, nil
}

func (t *memTx) NextDistributionID(ctx context.Context) (int64, error) {
	var id int64
	for _, d := range t.l.dists {
		id = max(id, d.ID)
	}
	return id + 1, nil
}

func (t *memTx) ReferenceExists(ctx context.Context, kind domain.RefKind, id int64) (bool, error) {
	switch kind {
	case domain.RefAccount:
		_, ok := t.l.names[id]
		return ok, nil
	case domain.RefStaff:
		return t.l.staff[id], nil
	case domain.RefBankAccount:
		return t.l.banks[id], nil
	case domain.RefSubtype:
		_, ok := t.l.subtypes[id]
		return ok, nil
	}
	return false, fmt.Errorf("unknown reference kind %q", kind)
}

func (t *memTx) SubtypeIsInvoice(ctx context.Context, subtypeID int64) (bool, error) {
	isInvoice, ok := t.l.subtypes[subtypeID]
	if !ok {
		return false, domain.ErrReferenceMissing
	}
	return isInvoice, nil
}

func (t *memTx) InsertEntry(ctx context.Context, e domain.LedgerEntry) error {
	if t.l.failInsertEntry != nil {
		return t.l.failInsertEntry
	}
	if _, dup := t.l.entries[e.ID]; dup {
		return fmt.Errorf("duplicate entry id %d", e.ID)
	}
	e.IsInvoice = t.l.subtypes[e.SubtypeID]
	t.l.entries[e.ID] = e
	return nil
}

func (t *memTx) GetEntry(ctx context.Context, id int64) (*domain.LedgerEntry, error) {
	e, ok := t.l.entries[id]
	if !ok {
		return nil, fmt.Errorf("entry %d: %w", id, domain.ErrEntryNotFound)
	}
	return &e, nil
}

func (t *memTx) AppliedTotal(ctx context.Context, fromEntryID int64) (decimal.Decimal, error) {
	return t.l.appliedTotal(fromEntryID), nil
}

func (t *memTx) InsertApplication(ctx context.Context, a domain.LedgerApplication) error {
	t.l.apps = append(t.l.apps, a)
	return nil
}

func (t *memTx) BillableUnits(ctx context.Context, invoiceEntryID int64) ([]domain.BillableUnit, error) {
	return t.l.units[invoiceEntryID], nil
}

func (t *memTx) InsertDistribution(ctx context.Context, d domain.CollectionDistribution) error {
	t.l.dists = append(t.l.dists, d)
	return nil
}

func (t *memTx) LockEngagement(ctx context.Context, id int64) (*domain.Engagement, error) {
	e, ok := t.l.engagements[id]
	if !ok {
		return nil, fmt.Errorf("engagement %d: %w", id, domain.ErrEngagementNotFound)
	}
	return &e, nil
}

func (t *memTx) OpenChangeset(ctx context.Context, actorID int64, at time.Time) (int64, error) {
	id := int64(len(t.l.changesets) + 1)
	t.l.changesets = append(t.l.changesets, domain.Changeset{ID: id, ActorID: actorID, StartedAt: at})
	return id, nil
}

func (t *memTx) UpdateEngagementType(ctx context.Context, id int64, typeCode string, actorID, changesetID int64) error {
	e, ok := t.l.engagements[id]
	if !ok {
		return domain.ErrEngagementNotFound
	}
	e.TypeCode, e.ModifiedBy, e.ChangesetID = typeCode, actorID, changesetID
	t.l.engagements[id] = e
	return nil
}

func (t *memTx) CloseChangeset(ctx context.Context, id int64, at time.Time) error {
	for i := range t.l.changesets {
		if t.l.changesets[i].ID == id {
			t.l.changesets[i].EndedAt = &at
			return nil
		}
	}
	return errors.New("changeset not found")
}

// fakeGateway records charges and returns canned results.
type fakeGateway struct {
	mu          sync.Mutex
	charges     []int64
	chargeErr   error
	decline     bool
	tokenizeErr error
	txID        string
}

func (g *fakeGateway) Charge(ctx context.Context, in gateway.Instrument, amountCents int64, opts gateway.ChargeOptions) (*gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, amountCents)
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.decline {
		return &gateway.ChargeResult{Success: false, Response: "declined"}, nil
	}
	txID := g.txID
	if txID == "" {
		txID = "txn_" + opts.CorrelationID
	}
	return &gateway.ChargeResult{Success: true, TransactionID: txID, Response: "succeeded"}, nil
}

func (g *fakeGateway) Tokenize(ctx context.Context, in gateway.Instrument) (*gateway.Token, error) {
	if g.tokenizeErr != nil {
		return nil, g.tokenizeErr
	}
	kind := domain.InstrumentCard
	if in.Bank != nil {
		kind = domain.InstrumentBank
	}
	return &gateway.Token{Token: "tok_123", Kind: kind, Label: in.Label(), LastFour: in.LastFour()}, nil
}

type memPayments struct {
	mu        sync.Mutex
	records   map[string]domain.Payment
	insertErr error
	updateErr error
}

func newMemPayments() *memPayments {
	return &memPayments{records: map[string]domain.Payment{}}
}

func (m *memPayments) Insert(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	m.records[p.CorrelationID] = *p
	return nil
}

func (m *memPayments) Get(ctx context.Context, id string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &p, nil
}

func (m *memPayments) Update(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, ok := m.records[p.CorrelationID]; !ok {
		return domain.ErrPaymentNotFound
	}
	m.records[p.CorrelationID] = *p
	return nil
}

func (m *memPayments) ClaimSettlement(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[p.CorrelationID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if len(cur.Metadata.DeferredLedger) == 0 {
		return domain.ErrSettlementClaimed
	}
	if s := cur.Metadata.LedgerSync; s != nil && (s.Disposition == domain.LedgerSettling || s.Disposition == domain.LedgerWritten) {
		return domain.ErrSettlementClaimed
	}
	cur.Metadata.LedgerSync = p.Metadata.LedgerSync
	cur.UpdatedAt = p.UpdatedAt
	m.records[p.CorrelationID] = cur
	return nil
}

func (m *memPayments) setUpdateErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr = err
}

type memAcceptances struct {
	mu      sync.Mutex
	records map[int64]domain.EngagementAcceptance
	getErr  error
	saves   int
}

func (m *memAcceptances) Get(ctx context.Context, id int64) (*domain.EngagementAcceptance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	r, ok := m.records[id]
	if !ok {
		return nil, domain.ErrAcceptanceNotFound
	}
	return &r, nil
}

func (m *memAcceptances) Save(ctx context.Context, rec *domain.EngagementAcceptance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	m.records[rec.EngagementID] = *rec
	return nil
}

type memInstruments struct {
	saved   []domain.SavedInstrument
	saveErr error
}

func (m *memInstruments) Save(ctx context.Context, in *domain.SavedInstrument) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, *in)
	return nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingAlerter) Alert(ctx context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

type recordingMailer struct {
	receipts []notify.Receipt
}

func (r *recordingMailer) SendReceipt(ctx context.Context, rc notify.Receipt) error {
	r.receipts = append(r.receipts, rc)
	return nil
}

// failingLedger is a LedgerSyncer that always fails.
type failingLedger struct{ err error }

func (f failingLedger) Write(ctx context.Context, batch []domain.EntryPayload) ([]domain.WriteResult, error) {
	return nil, f.err
}

type harness struct {
	ledger      *memLedger
	card, bank  *fakeGateway
	payments    *memPayments
	acceptances *memAcceptances
	instruments *memInstruments
	alerts      *recordingAlerter
	mail        *recordingMailer
	orch        *Orchestrator
}

func newHarness() *harness {
	return newHarnessWithConfig(testLedgerConfig())
}

func newHarnessWithConfig(cfg config.Ledger) *harness {
	h := &harness{
		ledger:      newMemLedger(),
		card:        &fakeGateway{},
		bank:        &fakeGateway{},
		payments:    newMemPayments(),
		acceptances: &memAcceptances{records: map[int64]domain.EngagementAcceptance{}},
		instruments: &memInstruments{},
		alerts:      &recordingAlerter{},
		mail:        &recordingMailer{},
	}
	log := zap.NewNop()
	h.orch = NewOrchestrator(cfg, Deps{
		Gateways:    Gateways{Card: h.card, Bank: h.bank},
		Payments:    h.payments,
		Instruments: h.instruments,
		Acceptances: h.acceptances,
		Invoices:    h.ledger,
		Ledger:      NewLedgerWriter(h.ledger, cfg, log),
		Engagements: NewEngagementAcceptor(h.ledger, cfg, nil, log),
		Alerts:      h.alerts,
		Mail:        h.mail,
		Log:         log,
	})
	return h
}
