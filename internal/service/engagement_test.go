package service

import (
	"context"
	"testing"

	"github.com/punchamoorthee/paysync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAcceptor(l *memLedger) *EngagementAcceptor {
	return NewEngagementAcceptor(l, testLedgerConfig(), nil, zap.NewNop())
}

func TestEngagementAcceptor_Accept(t *testing.T) {
	l := newMemLedger()
	l.addEngagement(domain.Engagement{ID: 5, Name: "2024 Return", TypeCode: domain.ProposalType, TemplateID: "tpl-individual-tax"})
	a := newAcceptor(l)

	out := a.Accept(context.Background(), 5, staffID)
	assert.Equal(t, domain.AcceptAccepted, out.Status)
	assert.Equal(t, domain.ProposalType, out.FromType)
	assert.Equal(t, "individual_tax_return", out.ToType)
	assert.Equal(t, "2024 Return", out.Name)
	assert.Equal(t, int64(1), out.ChangesetID)

	eng := l.engagements[5]
	assert.Equal(t, "individual_tax_return", eng.TypeCode)
	assert.Equal(t, staffID, eng.ModifiedBy)
	assert.Equal(t, int64(1), eng.ChangesetID)

	require.Len(t, l.changesets, 1)
	assert.NotNil(t, l.changesets[0].EndedAt)
}

func TestEngagementAcceptor_SecondAcceptIsNoOp(t *testing.T) {
	l := newMemLedger()
	l.addEngagement(domain.Engagement{ID: 5, TypeCode: domain.ProposalType, TemplateID: "tpl-payroll"})
	a := newAcceptor(l)

	first := a.Accept(context.Background(), 5, staffID)
	require.Equal(t, domain.AcceptAccepted, first.Status)

	second := a.Accept(context.Background(), 5, staffID)
	assert.Equal(t, domain.AcceptAlreadyAccepted, second.Status)
	assert.False(t, second.Failed())
	assert.Equal(t, "payroll_services", second.ToType)
	assert.Zero(t, second.ChangesetID)
	assert.Len(t, l.changesets, 1)
}

func TestEngagementAcceptor_Failures(t *testing.T) {
	tests := []struct {
		name      string
		seed      *domain.Engagement
		wantError error
	}{
		{
			name:      "unmapped template",
			seed:      &domain.Engagement{ID: 5, TypeCode: domain.ProposalType, TemplateID: "tpl-unknown"},
			wantError: domain.ErrUnmappedTemplate,
		},
		{
			name:      "missing engagement",
			wantError: domain.ErrEngagementNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newMemLedger()
			if tt.seed != nil {
				l.addEngagement(*tt.seed)
			}

			out := newAcceptor(l).Accept(context.Background(), 5, staffID)
			assert.True(t, out.Failed())
			assert.Contains(t, out.Error, tt.wantError.Error())
			assert.Empty(t, l.changesets)
			if tt.seed != nil {
				assert.Equal(t, domain.ProposalType, l.engagements[5].TypeCode)
			}
		})
	}
}

func TestEngagementAcceptor_Disabled(t *testing.T) {
	l := newMemLedger()
	l.addEngagement(domain.Engagement{ID: 5, TypeCode: domain.ProposalType, TemplateID: "tpl-audit"})
	cfg := testLedgerConfig()
	cfg.Enabled = false

	out := NewEngagementAcceptor(l, cfg, nil, zap.NewNop()).Accept(context.Background(), 5, staffID)
	assert.Equal(t, domain.AcceptDisabled, out.Status)
	assert.False(t, out.Failed())
	assert.Equal(t, domain.ProposalType, l.engagements[5].TypeCode)
}

func TestEngagementAcceptor_CustomTemplates(t *testing.T) {
	l := newMemLedger()
	l.addEngagement(domain.Engagement{ID: 5, TypeCode: domain.ProposalType, TemplateID: "tpl-custom"})

	a := NewEngagementAcceptor(l, testLedgerConfig(), map[string]string{"tpl-custom": "custom_work"}, zap.NewNop())
	out := a.Accept(context.Background(), 5, staffID)
	assert.Equal(t, "custom_work", out.ToType)
}

func TestEngagementAcceptor_AcceptAll(t *testing.T) {
	l := newMemLedger()
	l.addEngagement(domain.Engagement{ID: 1, TypeCode: domain.ProposalType, TemplateID: "tpl-bookkeeping"})
	l.addEngagement(domain.Engagement{ID: 2, TypeCode: "financial_review", TemplateID: "tpl-review"})
	a := newAcceptor(l)

	batch := a.AcceptAll(context.Background(), []int64{1, 2}, staffID)
	assert.True(t, batch.Success)
	require.Len(t, batch.Outcomes, 2)
	assert.Equal(t, domain.AcceptAccepted, batch.Outcomes[0].Status)
	assert.Equal(t, domain.AcceptAlreadyAccepted, batch.Outcomes[1].Status)

	batch = a.AcceptAll(context.Background(), []int64{1, 3}, staffID)
	assert.False(t, batch.Success)
	assert.Equal(t, domain.AcceptAlreadyAccepted, batch.Outcomes[0].Status)
	assert.Equal(t, domain.AcceptFailed, batch.Outcomes[1].Status)
}
