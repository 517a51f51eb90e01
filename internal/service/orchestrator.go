package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/punchamoorthee/paysync/internal/allocation"
	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/punchamoorthee/paysync/internal/gateway"
	"github.com/punchamoorthee/paysync/internal/notify"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrChargeFailed     = errors.New("charge failed")
	ErrRecordFailed     = errors.New("payment charged but not recorded")
	ErrNothingToSettle  = errors.New("payment is already settled")
	ErrGatewayMissing   = errors.New("no gateway configured for charge method")
	errInvoicesNotFound = errors.New("invoices not found or not open")
)

type PaymentRepository interface {
	Insert(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, correlationID string) (*domain.Payment, error)
	Update(ctx context.Context, p *domain.Payment) error
	ClaimSettlement(ctx context.Context, p *domain.Payment) error
}

type AcceptanceRepository interface {
	Get(ctx context.Context, engagementID int64) (*domain.EngagementAcceptance, error)
	Save(ctx context.Context, rec *domain.EngagementAcceptance) error
}

type InstrumentRepository interface {
	Save(ctx context.Context, in *domain.SavedInstrument) error
}

type LedgerSyncer interface {
	Write(ctx context.Context, batch []domain.EntryPayload) ([]domain.WriteResult, error)
}

type EngagementAccepter interface {
	Accept(ctx context.Context, engagementID, actorID int64) domain.AcceptOutcome
}

// Gateways routes card and bank charges to their processors.
type Gateways struct {
	Card gateway.Gateway
	Bank gateway.Gateway
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Gateways    Gateways
	Payments    PaymentRepository
	Instruments InstrumentRepository
	Acceptances AcceptanceRepository
	Invoices    domain.InvoiceReader
	Ledger      LedgerSyncer
	Engagements EngagementAccepter
	Alerts      notify.Alerter
	Mail        notify.Mailer
	Log         *zap.Logger
}

// Orchestrator runs the payment saga: charge, record, save instrument, ledger
// sync, engagement acceptance, receipt. Only a failed charge aborts it; every
// later failure is recorded on the report and, for ledger and engagement
// steps, escalated to operators.
type Orchestrator struct {
	cfg config.Ledger
	Deps
	now   func() time.Time
	newID func() string
}

func NewOrchestrator(cfg config.Ledger, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		Deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Process runs one saga. The report is always returned; the error is set only
// when the saga was aborted before money moved or before it was recorded.
func (o *Orchestrator) Process(ctx context.Context, attempt domain.PaymentAttempt) (*domain.PaymentReport, error) {
	timer := prometheus.NewTimer(sagaDuration.WithLabelValues(string(attempt.Method)))
	defer timer.ObserveDuration()

	report := &domain.PaymentReport{CorrelationID: attempt.CorrelationID}
	if report.CorrelationID == "" {
		report.CorrelationID = o.newID()
	}
	log := o.Log.With(zap.String("correlation_id", report.CorrelationID))

	if err := attempt.Validate(); err != nil {
		stepDone("charge", "rejected")
		report.Charge.Error = err.Error()
		log.Warn("payment attempt rejected", zap.Error(err))
		return report, err
	}

	charge, instrument, err := o.charge(ctx, report.CorrelationID, attempt)
	if err != nil {
		stepDone("charge", "failed")
		report.Charge.Error = err.Error()
		log.Warn("charge failed",
			zap.String("method", string(attempt.Method)),
			zap.String("total", attempt.Total().StringFixed(2)),
			zap.Error(err))
		return report, fmt.Errorf("%w: %w", ErrChargeFailed, err)
	}
	stepDone("charge", "succeeded")
	report.Charge = domain.ChargeOutcome{Success: true, TransactionID: charge.TransactionID}

	payment := o.newPayment(report.CorrelationID, attempt, charge, instrument)
	if err := o.Payments.Insert(ctx, payment); err != nil {
		stepDone("record", "failed")
		log.Error("payment charged but not recorded",
			zap.String("transaction_id", charge.TransactionID),
			zap.String("total", payment.Total.StringFixed(2)),
			zap.Error(err))
		o.alert(ctx, notify.Alert{
			Subject:       "payment charged but not recorded",
			CorrelationID: report.CorrelationID,
			Error:         err.Error(),
		})
		return report, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	stepDone("record", string(payment.Status))
	report.Payment = payment

	report.Instrument = o.saveInstrument(ctx, log, attempt, instrument)
	report.Ledger = o.syncLedger(ctx, log, attempt, payment)
	report.Engagements = o.acceptEngagements(ctx, log, attempt, payment)
	report.Receipt = o.sendReceipt(ctx, log, attempt, payment)

	log.Info("payment saga finished",
		zap.String("status", string(payment.Status)),
		zap.String("ledger", string(report.Ledger.Disposition)),
		zap.Bool("needs_remediation", report.NeedsRemediation()))
	return report, nil
}

func (o *Orchestrator) charge(ctx context.Context, correlationID string, a domain.PaymentAttempt) (*gateway.ChargeResult, gateway.Instrument, error) {
	var gw gateway.Gateway
	var in gateway.Instrument
	switch a.Method {
	case domain.MethodCheck:
		// Checks are collected by hand; there is nothing to charge.
		return &gateway.ChargeResult{Success: true, Response: "check " + a.Check.Number}, in, nil
	case domain.MethodNewCard:
		gw, in = o.Gateways.Card, gateway.Instrument{Card: a.Card}
	case domain.MethodNewBank:
		gw, in = o.Gateways.Bank, gateway.Instrument{Bank: a.Bank}
	case domain.MethodSavedInstrument:
		in = gateway.Instrument{Saved: a.Saved}
		gw = o.Gateways.Card
		if a.Saved.Kind == domain.InstrumentBank {
			gw = o.Gateways.Bank
		}
	default:
		return nil, in, fmt.Errorf("%w: %q", domain.ErrUnsupportedMethod, a.Method)
	}
	if gw == nil {
		return nil, in, fmt.Errorf("%w: %s", ErrGatewayMissing, a.Method)
	}

	res, err := gw.Charge(ctx, in, toCents(a.Total()), gateway.ChargeOptions{
		CorrelationID: correlationID,
		Description:   "Payment " + correlationID,
		Email:         a.Payer.Email,
	})
	if err != nil {
		return nil, in, err
	}
	if res == nil || !res.Success {
		return nil, in, gateway.ErrDeclined
	}
	return res, in, nil
}

func (o *Orchestrator) newPayment(correlationID string, a domain.PaymentAttempt, charge *gateway.ChargeResult, in gateway.Instrument) *domain.Payment {
	now := o.now()
	p := &domain.Payment{
		CorrelationID:   correlationID,
		Amount:          a.Amount,
		Fee:             a.Fee,
		Total:           a.Total(),
		Method:          a.Method,
		InstrumentLabel: in.Label(),
		LastFour:        in.LastFour(),
		Status:          domain.StatusCompleted,
		PayerID:         a.Payer.ID,
		AccountID:       a.Payer.AccountID,
		Channel:         a.Channel,
		Metadata: domain.PaymentMetadata{
			Invoices: a.Invoices,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if charge.TransactionID != "" {
		txID := charge.TransactionID
		p.TransactionID = &txID
	}
	if a.Method == domain.MethodCheck {
		p.InstrumentLabel = "Check"
		p.LastFour = a.Check.Number
	}
	if a.SettlesAsynchronously() {
		p.Status = domain.StatusProcessing
	}
	for _, e := range a.Engagements {
		p.Metadata.Engagements = append(p.Metadata.Engagements, e.ID)
	}
	return p
}

func (o *Orchestrator) saveInstrument(ctx context.Context, log *zap.Logger, a domain.PaymentAttempt, in gateway.Instrument) domain.InstrumentOutcome {
	out := domain.InstrumentOutcome{Requested: a.SavePaymentMethod}
	if !a.SavePaymentMethod {
		return out
	}

	var gw gateway.Gateway
	switch a.Method {
	case domain.MethodNewCard:
		gw = o.Gateways.Card
	case domain.MethodNewBank:
		gw = o.Gateways.Bank
	default:
		out.Error = fmt.Sprintf("%s payments cannot be saved", a.Method)
		stepDone("instrument", "skipped")
		return out
	}

	err := func() error {
		if gw == nil || o.Instruments == nil {
			return ErrGatewayMissing
		}
		tok, err := gw.Tokenize(ctx, in)
		if err != nil {
			return fmt.Errorf("tokenize: %w", err)
		}
		saved := &domain.SavedInstrument{
			ID:        o.newID(),
			PayerID:   a.Payer.ID,
			Kind:      tok.Kind,
			Token:     tok.Token,
			Label:     tok.Label,
			LastFour:  tok.LastFour,
			CreatedAt: o.now(),
		}
		if err := o.Instruments.Save(ctx, saved); err != nil {
			return err
		}
		out.InstrumentID = saved.ID
		return nil
	}()
	if err != nil {
		stepDone("instrument", "failed")
		out.Error = err.Error()
		log.Warn("payment instrument not saved", zap.String("payer_id", a.Payer.ID), zap.Error(err))
		return out
	}
	stepDone("instrument", "saved")
	out.Saved = true
	return out
}

func (o *Orchestrator) syncLedger(ctx context.Context, log *zap.Logger, a domain.PaymentAttempt, p *domain.Payment) domain.LedgerOutcome {
	out := o.buildAndSync(ctx, log, a, p)
	stepDone("ledger", string(out.Disposition))

	p.Metadata.LedgerSync = &domain.LedgerSyncMarker{
		Disposition: out.Disposition,
		Error:       out.Reason,
		SyncedAt:    o.now(),
	}
	for _, e := range out.Entries {
		p.Metadata.LedgerSync.EntryIDs = append(p.Metadata.LedgerSync.EntryIDs, e.EntryID)
	}
	p.UpdatedAt = o.now()
	if err := o.Payments.Update(ctx, p); err != nil {
		log.Error("ledger sync marker not persisted", zap.Error(err))
		if out.Disposition == domain.LedgerDeferred {
			// Without the stored payload the settlement write can never happen.
			out.Disposition = domain.LedgerFailed
			out.Reason = "deferred ledger payload not persisted: " + err.Error()
			o.alert(ctx, notify.Alert{Subject: "ledger sync failed", CorrelationID: p.CorrelationID, Error: out.Reason})
		}
	}
	return out
}

func (o *Orchestrator) buildAndSync(ctx context.Context, log *zap.Logger, a domain.PaymentAttempt, p *domain.Payment) domain.LedgerOutcome {
	out := domain.LedgerOutcome{Undistributed: decimal.Zero}
	if !o.cfg.Enabled {
		out.Disposition = domain.LedgerDisabled
		out.Reason = domain.ErrLedgerDisabled.Error()
		return out
	}
	if a.Payer.AccountID == 0 {
		out.Disposition = domain.LedgerSkipped
		out.Reason = "payer has no ledger account"
		return out
	}

	fail := func(err error) domain.LedgerOutcome {
		out.Disposition = domain.LedgerFailed
		out.Reason = err.Error()
		log.Error("ledger sync failed",
			zap.Int64("account_id", a.Payer.AccountID),
			zap.String("amount", a.Applicable().StringFixed(2)),
			zap.Int64s("invoices", a.Invoices),
			zap.Error(err))
		o.alert(ctx, notify.Alert{Subject: "ledger sync failed", CorrelationID: p.CorrelationID, Error: err.Error()})
		return out
	}

	batch, plan, err := o.buildBatch(ctx, p.CorrelationID, a)
	if err != nil {
		return fail(fmt.Errorf("build ledger payload: %w", err))
	}
	out.Undistributed = plan.Undistributed
	out.SkippedAccounts = plan.SkippedAccounts

	if a.SettlesAsynchronously() {
		raw, err := json.Marshal(batch)
		if err != nil {
			return fail(fmt.Errorf("serialize ledger payload: %w", err))
		}
		p.Metadata.DeferredLedger = raw
		out.Disposition = domain.LedgerDeferred
		return out
	}

	results, err := o.Ledger.Write(ctx, batch)
	if errors.Is(err, domain.ErrLedgerDisabled) {
		out.Disposition = domain.LedgerDisabled
		out.Reason = err.Error()
		return out
	}
	if err != nil {
		return fail(err)
	}
	out.Disposition = domain.LedgerWritten
	out.Entries = results
	return out
}

// buildBatch allocates the applicable amount and turns the result into ledger
// payloads: the payment itself, then a credit/debit memo pair per account the
// payment is distributed to. A panic while building is returned as an error.
func (o *Orchestrator) buildBatch(ctx context.Context, correlationID string, a domain.PaymentAttempt) (batch []domain.EntryPayload, plan allocation.Plan, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	applicable := a.Applicable()
	now := o.now()
	payment := domain.EntryPayload{
		Type:          domain.EntryPayment,
		SubtypeID:     o.cfg.PaymentSubtypeID,
		AccountID:     a.Payer.AccountID,
		ActorID:       o.cfg.StaffID,
		BankAccountID: o.cfg.BankAccountID,
		Amount:        applicable,
		Reference:     correlationID,
		CorrelationID: correlationID,
		Date:          now,
	}

	if a.LeaveUnapplied || len(a.Invoices) == 0 {
		plan.Undistributed = applicable
		return []domain.EntryPayload{payment}, plan, nil
	}

	balances, err := o.Invoices.OpenInvoices(ctx, a.Invoices)
	if err != nil {
		return nil, plan, err
	}
	if missing := missingInvoices(a.Invoices, balances); len(missing) > 0 {
		return nil, plan, fmt.Errorf("%w: %v", errInvoicesNotFound, missing)
	}

	invoices := make([]allocation.Invoice, 0, len(balances))
	multiParty := false
	for _, b := range balances {
		invoices = append(invoices, allocation.Invoice{
			EntryID:     b.EntryID,
			AccountID:   b.AccountID,
			AccountName: b.AccountName,
			Balance:     b.Balance,
		})
		if b.AccountID != a.Payer.AccountID {
			multiParty = true
		}
	}

	if !multiParty {
		res := allocation.Cents(applicable, invoices)
		plan = allocation.Plan{Primary: res, Undistributed: res.Remainder}
	} else {
		plan = allocation.Distribute(applicable, a.Payer.AccountID, invoices)
	}
	payment.Applications = toAllocations(plan.Primary.Applied)
	batch = append(batch, payment)

	for _, t := range plan.Transfers {
		batch = append(batch,
			domain.EntryPayload{
				Type:          domain.EntryCreditMemo,
				SubtypeID:     o.cfg.CreditMemoSubtypeID,
				AccountID:     t.AccountID,
				ActorID:       o.cfg.StaffID,
				Amount:        t.Amount,
				Reference:     correlationID,
				CorrelationID: correlationID,
				Date:          now,
				Applications:  toAllocations(t.Applied),
				Provenance: &domain.MemoProvenance{
					SourceCorrelationID: correlationID,
					CounterAccountID:    a.Payer.AccountID,
					CounterAccountName:  a.Payer.Name,
					GroupDistribution:   true,
				},
			},
			domain.EntryPayload{
				Type:          domain.EntryDebitMemo,
				SubtypeID:     o.cfg.DebitMemoSubtypeID,
				AccountID:     a.Payer.AccountID,
				ActorID:       o.cfg.StaffID,
				Amount:        t.Amount,
				Reference:     correlationID,
				CorrelationID: correlationID,
				Date:          now,
				Provenance: &domain.MemoProvenance{
					SourceCorrelationID: correlationID,
					CounterAccountID:    t.AccountID,
					CounterAccountName:  t.AccountName,
					GroupDistribution:   true,
				},
				SettlesPayment: true,
			},
		)
	}
	return batch, plan, nil
}

func (o *Orchestrator) acceptEngagements(ctx context.Context, log *zap.Logger, a domain.PaymentAttempt, p *domain.Payment) []domain.AcceptOutcome {
	var outcomes []domain.AcceptOutcome
	for _, ref := range a.Engagements {
		rec, err := o.Acceptances.Get(ctx, ref.ID)
		switch {
		case errors.Is(err, domain.ErrAcceptanceNotFound):
			rec = &domain.EngagementAcceptance{
				EngagementID: ref.ID,
				Name:         ref.Name,
				Signature:    ref.Signature,
				IP:           ref.IP,
				AcceptedAt:   o.now(),
			}
		case err != nil:
			// An unreadable record is left alone rather than overwritten.
			log.Error("acceptance record lookup failed", zap.Int64("engagement_id", ref.ID), zap.Error(err))
			rec = nil
		}

		out := o.Engagements.Accept(ctx, ref.ID, o.cfg.StaffID)
		if out.Name == "" {
			out.Name = ref.Name
		}
		stepDone("engagement", string(out.Status))

		if rec != nil {
			rec.Paid = true
			rec.TransactionID = p.CorrelationID
			rec.SyncSuccess = out.Status == domain.AcceptAccepted || out.Status == domain.AcceptAlreadyAccepted
			rec.ResultType = out.ToType
			rec.SyncError = out.Error
			rec.UpdatedAt = o.now()
		}

		if out.Failed() {
			o.alert(ctx, notify.Alert{
				Subject:        "engagement acceptance failed",
				CorrelationID:  p.CorrelationID,
				EngagementID:   ref.ID,
				EngagementName: out.Name,
				Error:          out.Error,
			})
		}
		if rec != nil {
			if err := o.Acceptances.Save(ctx, rec); err != nil {
				log.Error("acceptance record not saved", zap.Int64("engagement_id", ref.ID), zap.Error(err))
			}
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (o *Orchestrator) sendReceipt(ctx context.Context, log *zap.Logger, a domain.PaymentAttempt, p *domain.Payment) domain.ReceiptOutcome {
	out := domain.ReceiptOutcome{Requested: a.SendReceipt}
	if !a.SendReceipt {
		return out
	}
	if a.Payer.Email == "" {
		out.Reason = "payer has no email on file"
		stepDone("receipt", "skipped")
		log.Info("receipt not sent", zap.String("reason", out.Reason))
		return out
	}
	err := o.Mail.SendReceipt(ctx, notify.Receipt{
		Email:         a.Payer.Email,
		PayerName:     a.Payer.Name,
		CorrelationID: p.CorrelationID,
		Amount:        p.Amount,
		Fee:           p.Fee,
		Total:         p.Total,
		Instrument:    p.InstrumentLabel,
	})
	if err != nil {
		stepDone("receipt", "failed")
		out.Reason = err.Error()
		log.Warn("receipt send failed", zap.String("email", a.Payer.Email), zap.Error(err))
		return out
	}
	stepDone("receipt", "sent")
	out.Sent = true
	return out
}

// Settle marks a bank payment completed once the processor confirms
// settlement, performing its deferred ledger write if one is pending. A
// settlement whose write failed may be retried.
func (o *Orchestrator) Settle(ctx context.Context, correlationID string) (*domain.PaymentReport, error) {
	p, err := o.Payments.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	log := o.Log.With(zap.String("correlation_id", correlationID))

	report := &domain.PaymentReport{
		CorrelationID: correlationID,
		Charge:        domain.ChargeOutcome{Success: true},
		Payment:       p,
	}
	if p.TransactionID != nil {
		report.Charge.TransactionID = *p.TransactionID
	}

	var prior domain.LedgerDisposition
	if p.Metadata.LedgerSync != nil {
		prior = p.Metadata.LedgerSync.Disposition
	}
	pending := len(p.Metadata.DeferredLedger) > 0 && prior != domain.LedgerWritten
	switch {
	case !pending && p.Status == domain.StatusCompleted:
		return nil, fmt.Errorf("%s: %w", correlationID, ErrNothingToSettle)
	case !pending:
		return o.completeSettled(ctx, log, report)
	case prior == domain.LedgerSettling:
		return nil, fmt.Errorf("%s: %w", correlationID, domain.ErrSettlementClaimed)
	}

	p.Metadata.LedgerSync = &domain.LedgerSyncMarker{Disposition: domain.LedgerSettling, SyncedAt: o.now()}
	p.UpdatedAt = o.now()
	if err := o.Payments.ClaimSettlement(ctx, p); err != nil {
		return nil, err
	}

	var batch []domain.EntryPayload
	if err := json.Unmarshal(p.Metadata.DeferredLedger, &batch); err != nil {
		report.Ledger = domain.LedgerOutcome{Disposition: domain.LedgerFailed, Reason: "decode deferred payload: " + err.Error()}
	} else {
		results, err := o.Ledger.Write(ctx, batch)
		switch {
		case errors.Is(err, domain.ErrLedgerDisabled):
			report.Ledger = domain.LedgerOutcome{Disposition: domain.LedgerDisabled, Reason: err.Error()}
		case err != nil:
			report.Ledger = domain.LedgerOutcome{Disposition: domain.LedgerFailed, Reason: err.Error()}
		default:
			report.Ledger = domain.LedgerOutcome{Disposition: domain.LedgerWritten, Entries: results}
		}
	}
	stepDone("settlement", string(report.Ledger.Disposition))

	if report.Ledger.Disposition == domain.LedgerFailed {
		log.Error("deferred ledger write failed", zap.String("reason", report.Ledger.Reason))
		o.alert(ctx, notify.Alert{Subject: "deferred ledger write failed", CorrelationID: correlationID, Error: report.Ledger.Reason})
	}

	p.Status = domain.StatusCompleted
	p.Metadata.LedgerSync = &domain.LedgerSyncMarker{
		Disposition: report.Ledger.Disposition,
		Error:       report.Ledger.Reason,
		SyncedAt:    o.now(),
	}
	for _, e := range report.Ledger.Entries {
		p.Metadata.LedgerSync.EntryIDs = append(p.Metadata.LedgerSync.EntryIDs, e.EntryID)
	}
	p.UpdatedAt = o.now()
	if err := o.Payments.Update(ctx, p); err != nil {
		// The claim stays in place so a retry cannot write the batch twice.
		log.Error("settled payment not updated", zap.Int64s("entry_ids", p.Metadata.LedgerSync.EntryIDs), zap.Error(err))
		o.alert(ctx, notify.Alert{
			Subject:       "settled payment not updated",
			CorrelationID: correlationID,
			Error:         err.Error(),
		})
		return report, err
	}
	log.Info("payment settled", zap.String("ledger", string(report.Ledger.Disposition)))
	return report, nil
}

// completeSettled closes out a processing payment that has no ledger write
// pending. Its existing ledger marker is kept.
func (o *Orchestrator) completeSettled(ctx context.Context, log *zap.Logger, report *domain.PaymentReport) (*domain.PaymentReport, error) {
	p := report.Payment
	if m := p.Metadata.LedgerSync; m != nil {
		report.Ledger = domain.LedgerOutcome{Disposition: m.Disposition, Reason: m.Error}
	} else {
		report.Ledger = domain.LedgerOutcome{Disposition: domain.LedgerSkipped, Reason: "no ledger write recorded"}
	}
	stepDone("settlement", string(report.Ledger.Disposition))

	p.Status = domain.StatusCompleted
	p.UpdatedAt = o.now()
	if err := o.Payments.Update(ctx, p); err != nil {
		log.Error("settled payment not updated", zap.Error(err))
		return report, err
	}
	log.Info("payment settled", zap.String("ledger", string(report.Ledger.Disposition)))
	return report, nil
}

// alert escalates to operators. Delivery failures are logged and dropped.
func (o *Orchestrator) alert(ctx context.Context, a notify.Alert) {
	if o.Alerts == nil {
		return
	}
	if err := o.Alerts.Alert(ctx, a); err != nil {
		o.Log.Error("operator alert not delivered",
			zap.String("subject", a.Subject),
			zap.String("correlation_id", a.CorrelationID),
			zap.Error(err))
	}
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func toAllocations(applied []allocation.Applied) []domain.Allocation {
	out := make([]domain.Allocation, 0, len(applied))
	for _, a := range applied {
		out = append(out, domain.Allocation{EntryID: a.EntryID, Amount: a.Amount})
	}
	return out
}

func missingInvoices(requested []int64, found []domain.InvoiceBalance) []int64 {
	seen := make(map[int64]bool, len(found))
	for _, b := range found {
		seen[b.EntryID] = true
	}
	var missing []int64
	for _, id := range requested {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
