package models

import (
	"fmt"
	"time"
)

// CommandKind names the user action a command was built for.
type CommandKind string

const (
	CommandKindReconcileEnrollment CommandKind = "RECONCILE_ENROLLMENT"
	CommandKindSaveThemes          CommandKind = "SAVE_THEMES"
	CommandKindRemoveThemes        CommandKind = "REMOVE_THEMES"
	CommandKindToggleIntensify     CommandKind = "TOGGLE_INTENSIFICATION"
	CommandKindSetStatus           CommandKind = "SET_STATUS"
	CommandKindRetry               CommandKind = "RETRY"
)

// OperationAction is one backend write inside a command.
type OperationAction string

const (
	ActionClearEnrollments OperationAction = "CLEAR_ENROLLMENTS"
	ActionEnroll           OperationAction = "ENROLL"
	ActionAssign           OperationAction = "ASSIGN"
	ActionUnassign         OperationAction = "UNASSIGN"
	ActionUpdateStudent    OperationAction = "UPDATE_STUDENT"
)

// Retryable reports whether a failed operation of this action can be replayed
// on its own. Clearing enrollments only makes sense inside a full replace and
// student updates are re-derived by status reconciliation instead.
func (a OperationAction) Retryable() bool {
	switch a {
	case ActionEnroll, ActionAssign, ActionUnassign:
		return true
	}
	return false
}

// Outcome is the result of a single operation.
type Outcome string

const (
	OutcomePending       Outcome = "PENDING"
	OutcomeCreated       Outcome = "CREATED"
	OutcomeAlreadyExists Outcome = "ALREADY_EXISTS"
	OutcomeRemoved       Outcome = "REMOVED"
	OutcomeMissing       Outcome = "MISSING"
	OutcomeUpdated       Outcome = "UPDATED"
	OutcomeFailed        Outcome = "FAILED"
)

// Succeeded reports whether the outcome counts as success in summaries.
// AlreadyExists and Missing are idempotent no-ops and therefore succeed.
func (o Outcome) Succeeded() bool {
	switch o {
	case OutcomeCreated, OutcomeAlreadyExists, OutcomeRemoved, OutcomeMissing, OutcomeUpdated:
		return true
	}
	return false
}

// Resolved reports whether a removal left the record gone.
func (o Outcome) Resolved() bool {
	return o == OutcomeRemoved || o == OutcomeMissing
}

// Operation is one ordered step of a Command.
type Operation struct {
	ID        string          `db:"id" json:"id"`
	CommandID string          `db:"command_id" json:"commandId"`
	Seq       int             `db:"seq" json:"seq"`
	Action    OperationAction `db:"action" json:"action"`
	StudentID ID              `db:"student_id" json:"studentId"`
	SubjectID ID              `db:"subject_id" json:"subjectId,omitempty"`
	TopicID   ID              `db:"topic_id" json:"topicId,omitempty"`
	Outcome   Outcome         `db:"outcome" json:"outcome"`
	Error     string          `db:"error" json:"error,omitempty"`
}

// Command is a multi-step mutation with its individual outcomes.
type Command struct {
	ID          string      `db:"id" json:"id"`
	Kind        CommandKind `db:"kind" json:"kind"`
	StudentID   ID          `db:"student_id" json:"studentId"`
	ActorID     string      `db:"actor_id" json:"actorId"`
	RetryOf     *string     `db:"retry_of" json:"retryOf,omitempty"`
	Succeeded   int         `db:"succeeded" json:"succeeded"`
	Failed      int         `db:"failed" json:"failed"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	CompletedAt *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
	Operations  []Operation `db:"-" json:"operations"`
}

// Tally folds operation outcomes into the Succeeded and Failed counters.
func (c *Command) Tally() {
	c.Succeeded, c.Failed = 0, 0
	for _, op := range c.Operations {
		switch {
		case op.Outcome.Succeeded():
			c.Succeeded++
		case op.Outcome == OutcomeFailed:
			c.Failed++
		}
	}
}

// FailedOperations returns the operations whose outcome is FAILED.
func (c *Command) FailedOperations() []Operation {
	var out []Operation
	for _, op := range c.Operations {
		if op.Outcome == OutcomeFailed {
			out = append(out, op)
		}
	}
	return out
}

// HasResolvedRemoval reports whether at least one UNASSIGN left its record gone.
func (c *Command) HasResolvedRemoval() bool {
	for _, op := range c.Operations {
		if op.Action == ActionUnassign && op.Outcome.Resolved() {
			return true
		}
	}
	return false
}

// Summary renders the user-facing "N succeeded, M failed" line.
func (c *Command) Summary() string {
	return fmt.Sprintf("%d succeeded, %d failed", c.Succeeded, c.Failed)
}

// CommandSummary is returned to callers after a mutating action.
type CommandSummary struct {
	CommandID       string        `json:"commandId"`
	Kind            CommandKind   `json:"kind"`
	StudentID       ID            `json:"studentId"`
	Succeeded       int           `json:"succeeded"`
	Failed          int           `json:"failed"`
	Message         string        `json:"message"`
	Operations      []Operation   `json:"operations"`
	SnapshotVersion int64         `json:"snapshotVersion"`
	SnapshotStale   bool          `json:"snapshotStale"`
	Status          StudentStatus `json:"status,omitempty"`
	StatusChanged   bool          `json:"statusChanged"`
}

// NewCommandSummary builds the response view of a finished command.
func NewCommandSummary(cmd *Command) CommandSummary {
	return CommandSummary{
		CommandID:  cmd.ID,
		Kind:       cmd.Kind,
		StudentID:  cmd.StudentID,
		Succeeded:  cmd.Succeeded,
		Failed:     cmd.Failed,
		Message:    cmd.Summary(),
		Operations: cmd.Operations,
	}
}

// CommandFilter constrains journal listings.
type CommandFilter struct {
	StudentID ID
	Limit     int
}
