package service

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/paysync/internal/config"
	"github.com/punchamoorthee/paysync/internal/domain"
	"go.uber.org/zap"
)

// DefaultTemplateTypes maps proposal templates to the delivery type an
// accepted engagement becomes.
var DefaultTemplateTypes = map[string]string{
	"tpl-individual-tax": "individual_tax_return",
	"tpl-business-tax":   "business_tax_return",
	"tpl-bookkeeping":    "monthly_bookkeeping",
	"tpl-payroll":        "payroll_services",
	"tpl-advisory":       "advisory_retainer",
	"tpl-audit":          "financial_audit",
	"tpl-review":         "financial_review",
}

// EngagementAcceptor turns paid proposals into their contracted delivery type.
type EngagementAcceptor struct {
	db        domain.LedgerDB
	enabled   bool
	templates map[string]string
	log       *zap.Logger
	now       func() time.Time
}

func NewEngagementAcceptor(db domain.LedgerDB, cfg config.Ledger, templates map[string]string, log *zap.Logger) *EngagementAcceptor {
	if templates == nil {
		templates = DefaultTemplateTypes
	}
	return &EngagementAcceptor{db: db, enabled: cfg.Enabled, templates: templates, log: log, now: time.Now}
}

// Accept converts one engagement. An engagement that is no longer a proposal
// is reported as already accepted and left untouched.
func (a *EngagementAcceptor) Accept(ctx context.Context, engagementID, actorID int64) domain.AcceptOutcome {
	out := domain.AcceptOutcome{EngagementID: engagementID}
	if !a.enabled {
		out.Status = domain.AcceptDisabled
		return out
	}

	err := a.db.InTx(ctx, func(tx domain.LedgerTx) error {
		eng, err := tx.LockEngagement(ctx, engagementID)
		if err != nil {
			return err
		}
		out.Name = eng.Name
		out.FromType = eng.TypeCode

		if eng.TypeCode != domain.ProposalType {
			out.Status = domain.AcceptAlreadyAccepted
			out.ToType = eng.TypeCode
			return nil
		}

		target, ok := a.templates[eng.TemplateID]
		if !ok {
			return fmt.Errorf("%w: template %q", domain.ErrUnmappedTemplate, eng.TemplateID)
		}

		changesetID, err := tx.OpenChangeset(ctx, actorID, a.now())
		if err != nil {
			return err
		}
		if err := tx.UpdateEngagementType(ctx, eng.ID, target, actorID, changesetID); err != nil {
			return err
		}
		if err := tx.CloseChangeset(ctx, changesetID, a.now()); err != nil {
			return err
		}

		out.Status = domain.AcceptAccepted
		out.ToType = target
		out.ChangesetID = changesetID
		return nil
	})
	if err != nil {
		out.Status = domain.AcceptFailed
		out.ToType = ""
		out.ChangesetID = 0
		out.Error = err.Error()
		a.log.Error("engagement acceptance failed",
			zap.Int64("engagement_id", engagementID),
			zap.Int64("actor_id", actorID),
			zap.Error(err))
		return out
	}

	a.log.Info("engagement acceptance",
		zap.Int64("engagement_id", engagementID),
		zap.String("status", string(out.Status)),
		zap.String("from_type", out.FromType),
		zap.String("to_type", out.ToType),
		zap.Int64("changeset_id", out.ChangesetID))
	return out
}

// AcceptAll accepts each engagement independently. Success is false only
// when at least one engagement genuinely failed.
func (a *EngagementAcceptor) AcceptAll(ctx context.Context, engagementIDs []int64, actorID int64) domain.BatchAcceptOutcome {
	batch := domain.BatchAcceptOutcome{Success: true}
	for _, id := range engagementIDs {
		out := a.Accept(ctx, id, actorID)
		if out.Failed() {
			batch.Success = false
		}
		batch.Outcomes = append(batch.Outcomes, out)
	}
	return batch
}
