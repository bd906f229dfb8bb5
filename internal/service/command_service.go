package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type commandStore interface {
	Save(ctx context.Context, cmd *models.Command) error
	GetByID(ctx context.Context, id string) (*models.Command, error)
	List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error)
}

// CommandCompletedEvent is the payload of command.completed.
type CommandCompletedEvent struct {
	CommandID string             `json:"commandId"`
	Kind      models.CommandKind `json:"kind"`
	StudentID models.ID          `json:"studentId"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	RetryOf   *string            `json:"retryOf,omitempty"`
}

// ErrJournalDisabled is returned by journal reads when no store is configured.
var ErrJournalDisabled = appErrors.Clone(appErrors.ErrNotFound, "command journal is disabled")

// CommandService journals finished commands and retries their failed operations.
type CommandService struct {
	repo        commandStore
	enrollments enrollmentWriter
	engine      *ThemeAssignmentService
	snapshots   snapshotProvider
	reconciler  statusReconciler
	executor    Executor
	locks       *KeyedMutex
	events      EventPublisher
	logger      *zap.Logger
}

// CommandServiceDeps groups collaborators of CommandService. Repo may be nil,
// in which case commands are only announced, never stored.
type CommandServiceDeps struct {
	Repo        commandStore
	Enrollments enrollmentWriter
	Engine      *ThemeAssignmentService
	Snapshots   snapshotProvider
	Reconciler  statusReconciler
	Executor    Executor
	Locks       *KeyedMutex
	Events      EventPublisher
	Logger      *zap.Logger
}

// NewCommandService constructs the journal service.
func NewCommandService(deps CommandServiceDeps) *CommandService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Executor == nil {
		deps.Executor = NewSequentialExecutor(nil, deps.Logger)
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &CommandService{
		repo:        deps.Repo,
		enrollments: deps.Enrollments,
		engine:      deps.Engine,
		snapshots:   deps.Snapshots,
		reconciler:  deps.Reconciler,
		executor:    deps.Executor,
		locks:       deps.Locks,
		events:      deps.Events,
		logger:      deps.Logger,
	}
}

// AttachEngine sets the theme engine used by Retry. The engine journals
// through this service, so it can only be built after it.
func (s *CommandService) AttachEngine(engine *ThemeAssignmentService) {
	s.engine = engine
}

// Enabled reports whether commands are persisted.
func (s *CommandService) Enabled() bool {
	return s != nil && s.repo != nil
}

// Record stores the command and announces it. Journal failures are logged and
// never fail the command they describe.
func (s *CommandService) Record(ctx context.Context, cmd *models.Command) {
	if s == nil || cmd == nil {
		return
	}
	if s.repo != nil {
		if err := s.repo.Save(context.WithoutCancel(ctx), cmd); err != nil {
			s.logger.Error("failed to journal command", zap.String("command_id", cmd.ID), zap.Error(err))
		}
	}
	publish(ctx, s.events, s.logger, EventCommandCompleted, CommandCompletedEvent{
		CommandID: cmd.ID,
		Kind:      cmd.Kind,
		StudentID: cmd.StudentID,
		Succeeded: cmd.Succeeded,
		Failed:    cmd.Failed,
		RetryOf:   cmd.RetryOf,
	})
}

// List returns recent commands.
func (s *CommandService) List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error) {
	if !s.Enabled() {
		return nil, ErrJournalDisabled
	}
	commands, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list commands")
	}
	if commands == nil {
		commands = []models.Command{}
	}
	return commands, nil
}

// Get returns one command with its operations.
func (s *CommandService) Get(ctx context.Context, id string) (*models.Command, error) {
	if !s.Enabled() {
		return nil, ErrJournalDisabled
	}
	cmd, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "command not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load command")
	}
	return cmd, nil
}

// Retry re-issues the failed enroll, assign and unassign operations of a
// command as a new command linked through RetryOf. Each item is idempotent,
// so items that landed in the meantime resolve as AlreadyExists or Missing.
// Assignments are only sent for subjects the student is enrolled in.
func (s *CommandService) Retry(ctx context.Context, actor models.Actor, id string) (*models.CommandSummary, error) {
	original, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var failed []models.Operation
	for _, op := range original.FailedOperations() {
		if op.Action.Retryable() {
			failed = append(failed, op)
		}
	}
	if len(failed) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "command has no retryable failed operations")
	}

	unlock := s.locks.Lock(original.StudentID)
	defer unlock()

	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Student(original.StudentID); !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	progress := &replaceProgress{cleared: true, enrolled: map[models.ID]bool{}}
	for _, subjectID := range snap.EnrolledSubjectIDs(original.StudentID) {
		progress.enrolled[subjectID] = true
	}

	enrolls := make([]Step, 0, len(failed))
	steps := make([]Step, 0, len(failed))
	for _, op := range failed {
		if subject, ok := snap.Subject(op.SubjectID); ok && !actor.CanSee(subject) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("subject %d is outside your scope", op.SubjectID))
		}
		switch op.Action {
		case models.ActionEnroll:
			enrolls = append(enrolls, trackedEnrollStep(s.enrollStep(op.StudentID, op.SubjectID), progress))
		case models.ActionAssign:
			steps = append(steps, gatedAssignStep(s.engine.assignStep(snap, op.StudentID, op.TopicID), progress))
		case models.ActionUnassign:
			steps = append(steps, s.engine.unassignStep(snap, op.StudentID, op.TopicID))
		}
	}
	// Enrollments run first so the assignments gated on them see their results.
	steps = append(enrolls, steps...)

	cmd := newCommand(models.CommandKindRetry, original.StudentID, actor)
	cmd.RetryOf = &original.ID

	s.snapshots.MarkStale()
	s.executor.Execute(ctx, cmd, steps)
	summary := finishCommand(ctx, cmd, s.snapshots, s.reconciler, s.logger)
	s.Record(ctx, cmd)

	s.logger.Info("command retried",
		zap.String("command_id", cmd.ID),
		zap.String("retry_of", original.ID),
		zap.String("summary", cmd.Summary()))
	return summary, nil
}

// trackedEnrollStep marks the subject enrolled once the step lands.
func trackedEnrollStep(step Step, progress *replaceProgress) Step {
	subjectID := step.Operations[0].SubjectID
	run := step.Run
	step.Run = func(ctx context.Context) []StepResult {
		results := run(ctx)
		for _, result := range results {
			if result.Outcome == models.OutcomeCreated || result.Outcome == models.OutcomeAlreadyExists {
				progress.enrolled[subjectID] = true
			}
		}
		return results
	}
	return step
}

func (s *CommandService) enrollStep(studentID, subjectID models.ID) Step {
	op := models.Operation{Action: models.ActionEnroll, StudentID: studentID, SubjectID: subjectID}
	return singleStep(op, func(ctx context.Context) (models.Outcome, error) {
		outcomes, err := s.enrollments.CreateBatch(ctx, []models.Enrollment{{
			StudentID: studentID,
			SubjectID: subjectID,
			Status:    models.EnrollmentStatusActive,
		}})
		switch {
		case errors.Is(err, appErrors.ErrConflict):
			return models.OutcomeAlreadyExists, nil
		case err != nil:
			return models.OutcomeFailed, err
		case len(outcomes) == 0 || bool(outcomes[0].Success):
			return models.OutcomeCreated, nil
		default:
			return models.OutcomeFailed, errors.New(outcomes[0].Error)
		}
	})
}
