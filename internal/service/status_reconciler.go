package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// Triggers recorded with status changes.
const (
	TriggerAutoReconciliation = "auto_reconciliation"
	TriggerTeacher            = "teacher"
)

type studentStatusWriter interface {
	UpdateStatus(ctx context.Context, id models.ID, update models.StudentStatusUpdate) error
}

type statusChangeRecorder interface {
	RecordStatusChange(status models.StudentStatus, trigger string)
}

// StatusChange describes what auto-reconciliation did. Attempted is true when
// a student write was issued, Changed when it succeeded. Snapshot is the
// snapshot reloaded after the write, if any.
type StatusChange struct {
	StudentID models.ID
	From      models.StudentStatus
	To        models.StudentStatus
	Attempted bool
	Changed   bool
	Snapshot  *models.Snapshot
}

// StatusReconciler promotes a student back to ACTIVE once no outstanding
// assignment remains. It only runs after removals.
type StatusReconciler struct {
	students  studentStatusWriter
	snapshots snapshotProvider
	events    EventPublisher
	metrics   statusChangeRecorder
	logger    *zap.Logger
}

// NewStatusReconciler constructs the reconciler.
func NewStatusReconciler(students studentStatusWriter, snapshots snapshotProvider, events EventPublisher, metrics statusChangeRecorder, logger *zap.Logger) *StatusReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusReconciler{students: students, snapshots: snapshots, events: events, metrics: metrics, logger: logger}
}

// AfterRemoval inspects the refreshed snapshot and, when the student is still
// intensifying with zero PENDING or IN_PROGRESS assignments, writes
// {status: ACTIVE, intensifies: false}.
func (r *StatusReconciler) AfterRemoval(ctx context.Context, studentID models.ID) (StatusChange, error) {
	change := StatusChange{StudentID: studentID}

	snap, err := r.snapshots.Current(ctx)
	if err != nil {
		return change, err
	}
	student, ok := snap.Student(studentID)
	if !ok {
		return change, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	change.From = student.EffectiveStatus()
	change.To = change.From

	if change.From != models.StudentStatusIntensification {
		return change, nil
	}
	if outstanding := snap.OutstandingAssignments(studentID); len(outstanding) > 0 {
		r.logger.Debug("student keeps intensification", zap.Int64("student_id", int64(studentID)), zap.Int("outstanding", len(outstanding)))
		return change, nil
	}

	next, err := NextStatus(change.From, EventOutstandingCleared)
	if err != nil {
		return change, err
	}

	change.Attempted = true
	r.snapshots.MarkStale()
	if err := r.students.UpdateStatus(ctx, studentID, models.StudentStatusUpdate{Status: next, Intensifies: false}); err != nil {
		return change, err
	}
	change.Changed = true
	change.To = next

	if r.metrics != nil {
		r.metrics.RecordStatusChange(next, TriggerAutoReconciliation)
	}
	publish(ctx, r.events, r.logger, EventStudentStatusChanged, StatusChangedEvent{
		StudentID: studentID,
		From:      change.From,
		To:        next,
		Trigger:   TriggerAutoReconciliation,
	})
	r.logger.Info("student promoted after outstanding work cleared", zap.Int64("student_id", int64(studentID)), zap.String("status", string(next)))

	fresh, err := r.snapshots.Reload(ctx)
	if err != nil {
		r.logger.Warn("snapshot reload after status change failed", zap.Error(err))
		return change, nil
	}
	change.Snapshot = fresh
	return change, nil
}
