package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type themeAssignmentStore interface {
	Create(ctx context.Context, studentID, topicID models.ID) (*models.ThemeAssignment, error)
	Delete(ctx context.Context, id models.ID) error
}

type remedialStore interface {
	Delete(ctx context.Context, id models.ID) error
}

type statusReconciler interface {
	AfterRemoval(ctx context.Context, studentID models.ID) (StatusChange, error)
}

// AssignResult reports the outcome of assign or unassign for one topic.
type AssignResult struct {
	StudentID models.ID
	TopicID   models.ID
	Outcome   models.Outcome
	Err       error
}

// Delta is the set difference computed once before any backend call.
type Delta struct {
	ToAdd    []models.ID `json:"toAdd"`
	ToRemove []models.ID `json:"toRemove"`
}

// Empty reports whether the delta requires no writes.
func (d Delta) Empty() bool { return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 }

// BulkReconcile returns toAdd = desired - previous and toRemove = previous -
// desired. Inputs are de-duplicated and outputs sorted.
func BulkReconcile(desired, previous []models.ID) Delta {
	want := toSet(desired)
	have := toSet(previous)
	delta := Delta{ToAdd: []models.ID{}, ToRemove: []models.ID{}}
	for id := range want {
		if _, ok := have[id]; !ok {
			delta.ToAdd = append(delta.ToAdd, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			delta.ToRemove = append(delta.ToRemove, id)
		}
	}
	sort.Slice(delta.ToAdd, func(i, j int) bool { return delta.ToAdd[i] < delta.ToAdd[j] })
	sort.Slice(delta.ToRemove, func(i, j int) bool { return delta.ToRemove[i] < delta.ToRemove[j] })
	return delta
}

func toSet(ids []models.ID) map[models.ID]struct{} {
	set := make(map[models.ID]struct{}, len(ids))
	for _, id := range models.UniqueIDs(ids) {
		set[id] = struct{}{}
	}
	return set
}

// ThemeAssignmentService is the theme assignment engine: idempotent creation
// and removal of assignments, issued sequentially and tallied per item.
type ThemeAssignmentService struct {
	assignments themeAssignmentStore
	remedials   remedialStore
	snapshots   snapshotProvider
	reconciler  statusReconciler
	executor    Executor
	journal     commandRecorder
	locks       *KeyedMutex
	validator   *validator.Validate
	logger      *zap.Logger
}

// ThemeAssignmentServiceDeps groups collaborators of the engine.
type ThemeAssignmentServiceDeps struct {
	Assignments themeAssignmentStore
	Remedials   remedialStore
	Snapshots   snapshotProvider
	Reconciler  statusReconciler
	Executor    Executor
	Journal     commandRecorder
	Locks       *KeyedMutex
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewThemeAssignmentService constructs the engine.
func NewThemeAssignmentService(deps ThemeAssignmentServiceDeps) *ThemeAssignmentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Executor == nil {
		deps.Executor = NewSequentialExecutor(nil, deps.Logger)
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &ThemeAssignmentService{
		assignments: deps.Assignments,
		remedials:   deps.Remedials,
		snapshots:   deps.Snapshots,
		reconciler:  deps.Reconciler,
		executor:    deps.Executor,
		journal:     deps.Journal,
		locks:       deps.Locks,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Assign creates a PENDING assignment. A duplicate is AlreadyExists, which
// counts as success.
func (s *ThemeAssignmentService) Assign(ctx context.Context, studentID, topicID models.ID) AssignResult {
	result := AssignResult{StudentID: studentID, TopicID: topicID}
	_, err := s.assignments.Create(ctx, studentID, topicID)
	switch {
	case err == nil:
		result.Outcome = models.OutcomeCreated
	case errors.Is(err, appErrors.ErrConflict):
		result.Outcome = models.OutcomeAlreadyExists
	default:
		result.Outcome = models.OutcomeFailed
		result.Err = err
	}
	return result
}

// Unassign deletes the assignment of (student, topic) and, independently, the
// remedial records paired with the same (student, subject, topic). Records
// that are already gone resolve as Missing.
func (s *ThemeAssignmentService) Unassign(ctx context.Context, snap *models.Snapshot, studentID, topicID models.ID) AssignResult {
	result := AssignResult{StudentID: studentID, TopicID: topicID, Outcome: models.OutcomeMissing}
	var failures []error

	if assignment, ok := snap.AssignmentFor(studentID, topicID); ok {
		switch err := s.assignments.Delete(ctx, assignment.ID); {
		case err == nil:
			result.Outcome = models.OutcomeRemoved
		case errors.Is(err, appErrors.ErrNotFound):
		default:
			failures = append(failures, fmt.Errorf("delete theme assignment %d: %w", assignment.ID, err))
		}
	}

	var subjectID models.ID
	if topic, ok := snap.Topic(topicID); ok {
		subjectID = topic.SubjectID
	}
	for _, record := range snap.RemedialRecordsFor(studentID, subjectID, topicID) {
		switch err := s.remedials.Delete(ctx, record.ID); {
		case err == nil:
			result.Outcome = models.OutcomeRemoved
		case errors.Is(err, appErrors.ErrNotFound):
		default:
			failures = append(failures, fmt.Errorf("delete remedial record %d: %w", record.ID, err))
		}
	}

	if len(failures) > 0 {
		result.Outcome = models.OutcomeFailed
		result.Err = errors.Join(failures...)
	}
	return result
}

// Save makes the student's assigned topics within the actor's scope equal to
// topicIDs. Removals run before additions; status auto-reconciliation runs
// only when a removal resolved.
func (s *ThemeAssignmentService) Save(ctx context.Context, actor models.Actor, studentID models.ID, topicIDs []models.ID) (*models.CommandSummary, error) {
	if err := s.validator.Var(topicIDs, "dive,gt=0"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid topic ids")
	}

	unlock := s.locks.Lock(studentID)
	defer unlock()

	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Student(studentID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	enrolled := toSet(snap.EnrolledSubjectIDs(studentID))
	if err := validateTopics(snap, actor, enrolled, topicIDs); err != nil {
		return nil, err
	}

	previous := assignedInScope(snap, actor, studentID)
	delta := BulkReconcile(topicIDs, previous)

	cmd := newCommand(models.CommandKindSaveThemes, studentID, actor)
	return s.run(ctx, cmd, snap, s.deltaSteps(snap, studentID, delta))
}

// Remove is the "remove assignment" action for the listed topics.
func (s *ThemeAssignmentService) Remove(ctx context.Context, actor models.Actor, studentID models.ID, topicIDs []models.ID) (*models.CommandSummary, error) {
	if err := s.validator.Var(topicIDs, "required,min=1,dive,gt=0"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "topic ids are required")
	}

	unlock := s.locks.Lock(studentID)
	defer unlock()

	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Student(studentID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	for _, topicID := range topicIDs {
		topic, ok := snap.Topic(topicID)
		if !ok {
			continue
		}
		if subject, ok := snap.Subject(topic.SubjectID); ok && !actor.CanSee(subject) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("topic %d belongs to a subject outside your scope", topicID))
		}
	}

	cmd := newCommand(models.CommandKindRemoveThemes, studentID, actor)
	delta := Delta{ToRemove: models.UniqueIDs(topicIDs)}
	return s.run(ctx, cmd, snap, s.deltaSteps(snap, studentID, delta))
}

// run executes steps, reloads the snapshot, reconciles status after removals
// and journals the command.
func (s *ThemeAssignmentService) run(ctx context.Context, cmd *models.Command, snap *models.Snapshot, steps []Step) (*models.CommandSummary, error) {
	if len(steps) > 0 {
		s.snapshots.MarkStale()
		s.executor.Execute(ctx, cmd, steps)
	} else {
		cmd.Tally()
	}
	summary := finishCommand(ctx, cmd, s.snapshots, s.reconciler, s.logger)
	recordCommand(ctx, s.journal, cmd, len(steps))
	if snap != nil && summary.SnapshotVersion == 0 {
		summary.SnapshotVersion = snap.Version
	}
	return summary, nil
}

// deltaSteps turns a delta into ordered steps: every removal, then every addition.
func (s *ThemeAssignmentService) deltaSteps(snap *models.Snapshot, studentID models.ID, delta Delta) []Step {
	steps := make([]Step, 0, len(delta.ToAdd)+len(delta.ToRemove))
	for _, topicID := range delta.ToRemove {
		steps = append(steps, s.unassignStep(snap, studentID, topicID))
	}
	for _, topicID := range delta.ToAdd {
		steps = append(steps, s.assignStep(snap, studentID, topicID))
	}
	return steps
}

func (s *ThemeAssignmentService) assignStep(snap *models.Snapshot, studentID, topicID models.ID) Step {
	op := models.Operation{Action: models.ActionAssign, StudentID: studentID, TopicID: topicID}
	if topic, ok := snap.Topic(topicID); ok {
		op.SubjectID = topic.SubjectID
	}
	return singleStep(op, func(ctx context.Context) (models.Outcome, error) {
		result := s.Assign(ctx, studentID, topicID)
		return result.Outcome, result.Err
	})
}

func (s *ThemeAssignmentService) unassignStep(snap *models.Snapshot, studentID, topicID models.ID) Step {
	op := models.Operation{Action: models.ActionUnassign, StudentID: studentID, TopicID: topicID}
	if topic, ok := snap.Topic(topicID); ok {
		op.SubjectID = topic.SubjectID
	}
	return singleStep(op, func(ctx context.Context) (models.Outcome, error) {
		result := s.Unassign(ctx, snap, studentID, topicID)
		return result.Outcome, result.Err
	})
}

// validateTopics enforces that every topic exists, belongs to a subject the
// student is enrolled in, and that subject is visible to the actor.
func validateTopics(snap *models.Snapshot, actor models.Actor, enrolled map[models.ID]struct{}, topicIDs []models.ID) error {
	for _, topicID := range models.UniqueIDs(topicIDs) {
		topic, ok := snap.Topic(topicID)
		if !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("topic %d does not exist", topicID))
		}
		if _, ok := enrolled[topic.SubjectID]; !ok {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("topic %d belongs to subject %d the student is not enrolled in", topicID, topic.SubjectID))
		}
		subject, ok := snap.Subject(topic.SubjectID)
		if !ok || !actor.CanSee(subject) {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %d is not visible to the acting teacher", topic.SubjectID))
		}
	}
	return nil
}

// assignedInScope returns the student's assigned topics limited to subjects
// the actor can see, so a teacher never removes another teacher's themes.
func assignedInScope(snap *models.Snapshot, actor models.Actor, studentID models.ID) []models.ID {
	var ids []models.ID
	for _, topicID := range snap.AssignedTopicIDs(studentID) {
		topic, ok := snap.Topic(topicID)
		if !ok {
			if actor.SeesAllSubjects() {
				ids = append(ids, topicID)
			}
			continue
		}
		if subject, ok := snap.Subject(topic.SubjectID); ok && actor.CanSee(subject) {
			ids = append(ids, topicID)
		}
	}
	return ids
}

// finishCommand reloads the snapshot after the writes and runs status
// auto-reconciliation when a removal resolved.
func finishCommand(ctx context.Context, cmd *models.Command, snapshots snapshotProvider, reconciler statusReconciler, logger *zap.Logger) *models.CommandSummary {
	summary := models.NewCommandSummary(cmd)
	if len(cmd.Operations) == 0 {
		if snap, err := snapshots.Current(ctx); err == nil {
			summary.SnapshotVersion = snap.Version
			if student, ok := snap.Student(cmd.StudentID); ok {
				summary.Status = student.EffectiveStatus()
			}
		} else {
			summary.SnapshotStale = true
		}
		return &summary
	}

	snap, err := snapshots.Reload(ctx)
	if err != nil {
		logger.Warn("snapshot reload after command failed", zap.String("command_id", cmd.ID), zap.Error(err))
		summary.SnapshotStale = true
		return &summary
	}

	if reconciler != nil && cmd.HasResolvedRemoval() {
		change, err := reconciler.AfterRemoval(ctx, cmd.StudentID)
		if change.Attempted {
			appendOperation(cmd, models.Operation{Action: models.ActionUpdateStudent, StudentID: cmd.StudentID}, models.OutcomeUpdated, err)
		}
		if err != nil {
			logger.Warn("status auto-reconciliation failed", zap.Int64("student_id", int64(cmd.StudentID)), zap.Error(err))
		}
		summary = models.NewCommandSummary(cmd)
		summary.StatusChanged = change.Changed
		if change.Snapshot != nil {
			snap = change.Snapshot
		} else if change.Attempted {
			summary.SnapshotStale = true
		}
	}

	summary.SnapshotVersion = snap.Version
	if student, ok := snap.Student(cmd.StudentID); ok {
		summary.Status = student.EffectiveStatus()
	}
	if summary.StatusChanged && summary.SnapshotStale {
		summary.Status = models.StudentStatusActive
	}
	return &summary
}

func recordCommand(ctx context.Context, journal commandRecorder, cmd *models.Command, steps int) {
	if journal == nil || steps == 0 {
		return
	}
	journal.Record(ctx, cmd)
}
