package domain

import (
	"errors"
	"time"
)

var (
	ErrEngagementNotFound = errors.New("engagement not found")
	ErrUnmappedTemplate   = errors.New("engagement template has no delivery type")
)

// ProposalType is the engagement type of a proposal that has not been accepted.
const ProposalType = "proposal"

// Engagement is the external record of a contracted scope of work.
type Engagement struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	TypeCode    string `json:"type_code"`
	TemplateID  string `json:"template_id"`
	ModifiedBy  int64  `json:"modified_by"`
	ChangesetID int64  `json:"changeset_id"`
}

// Changeset is the audit bracket around an engagement mutation.
type Changeset struct {
	ID        int64      `json:"id"`
	ActorID   int64      `json:"actor_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// EngagementAcceptance tracks one proposal's acceptance, payment and sync.
type EngagementAcceptance struct {
	EngagementID  int64     `json:"engagement_id" bson:"_id"`
	Name          string    `json:"name" bson:"name"`
	Signature     string    `json:"signature" bson:"signature"`
	IP            string    `json:"ip" bson:"ip"`
	AcceptedAt    time.Time `json:"accepted_at" bson:"accepted_at"`
	Paid          bool      `json:"paid" bson:"paid"`
	TransactionID string    `json:"transaction_id" bson:"transaction_id"`
	SyncSuccess   bool      `json:"sync_success" bson:"sync_success"`
	ResultType    string    `json:"result_type" bson:"result_type"`
	SyncError     string    `json:"sync_error,omitempty" bson:"sync_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

type AcceptStatus string

const (
	AcceptAccepted        AcceptStatus = "accepted"
	AcceptAlreadyAccepted AcceptStatus = "already_accepted"
	AcceptDisabled        AcceptStatus = "disabled"
	AcceptFailed          AcceptStatus = "failed"
)

// AcceptOutcome is the result of accepting one engagement.
type AcceptOutcome struct {
	EngagementID int64        `json:"engagement_id"`
	Name         string       `json:"name,omitempty"`
	Status       AcceptStatus `json:"status"`
	FromType     string       `json:"from_type,omitempty"`
	ToType       string       `json:"to_type,omitempty"`
	ChangesetID  int64        `json:"changeset_id,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// Failed reports a genuine failure. No-ops and disabled outcomes are not failures.
func (o AcceptOutcome) Failed() bool {
	return o.Status == AcceptFailed
}

// BatchAcceptOutcome aggregates independent acceptances.
type BatchAcceptOutcome struct {
	Outcomes []AcceptOutcome `json:"outcomes"`
	Success  bool            `json:"success"`
}
