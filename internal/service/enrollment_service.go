package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type enrollmentWriter interface {
	DeleteByStudent(ctx context.Context, studentID models.ID) error
	CreateBatch(ctx context.Context, enrollments []models.Enrollment) ([]models.EnrollmentOutcome, error)
}

// ReconcileState is the immutable input of an enrollment reconciliation.
type ReconcileState struct {
	StudentID    models.ID
	SubjectIDs   []models.ID
	ManualTopics []models.ID
	Snapshot     *models.Snapshot
}

// Manual reports whether the caller hand-picked topics.
func (s ReconcileState) Manual() bool { return len(s.ManualTopics) > 0 }

// EnrollmentPlan is the outcome of PlanEnrollment.
type EnrollmentPlan struct {
	StudentID     models.ID           `json:"studentId"`
	Enrollments   []models.Enrollment `json:"enrollments"`
	DesiredTopics []models.ID         `json:"desiredTopics"`
	Manual        bool                `json:"manual"`
	Delta         Delta               `json:"delta"`
}

// PlanEnrollment derives the enrollments and theme assignments that must exist
// for the target subjects. Enrollments follow selection order without
// duplicates. Unless topics were hand-picked, every topic of every selected
// subject is desired. The delta is taken against every assignment the student
// holds, so assignments under dropped subjects are removed.
func PlanEnrollment(state ReconcileState) EnrollmentPlan {
	plan := EnrollmentPlan{
		StudentID:   state.StudentID,
		Enrollments: []models.Enrollment{},
		Manual:      state.Manual(),
	}

	seen := make(map[models.ID]struct{}, len(state.SubjectIDs))
	for _, subjectID := range state.SubjectIDs {
		if !subjectID.Valid() {
			continue
		}
		if _, dup := seen[subjectID]; dup {
			continue
		}
		seen[subjectID] = struct{}{}
		plan.Enrollments = append(plan.Enrollments, models.Enrollment{
			StudentID: state.StudentID,
			SubjectID: subjectID,
			Status:    models.EnrollmentStatusActive,
		})
	}

	if plan.Manual {
		plan.DesiredTopics = models.UniqueIDs(state.ManualTopics)
	} else {
		var topics []models.ID
		for _, e := range plan.Enrollments {
			for _, topic := range state.Snapshot.TopicsForSubject(e.SubjectID) {
				topics = append(topics, topic.ID)
			}
		}
		plan.DesiredTopics = models.UniqueIDs(topics)
	}

	plan.Delta = BulkReconcile(plan.DesiredTopics, state.Snapshot.AssignedTopicIDs(state.StudentID))
	return plan
}

// EnrollmentService is the enrollment reconciler.
type EnrollmentService struct {
	enrollments enrollmentWriter
	engine      *ThemeAssignmentService
	snapshots   snapshotProvider
	reconciler  statusReconciler
	executor    Executor
	journal     commandRecorder
	locks       *KeyedMutex
	validator   *validator.Validate
	logger      *zap.Logger
}

// EnrollmentServiceDeps groups collaborators of EnrollmentService.
type EnrollmentServiceDeps struct {
	Enrollments enrollmentWriter
	Engine      *ThemeAssignmentService
	Snapshots   snapshotProvider
	Reconciler  statusReconciler
	Executor    Executor
	Journal     commandRecorder
	Locks       *KeyedMutex
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewEnrollmentService constructs the reconciler.
func NewEnrollmentService(deps EnrollmentServiceDeps) *EnrollmentService {
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
	return &EnrollmentService{
		enrollments: deps.Enrollments,
		engine:      deps.Engine,
		snapshots:   deps.Snapshots,
		reconciler:  deps.Reconciler,
		executor:    deps.Executor,
		journal:     deps.Journal,
		locks:       deps.Locks,
		validator:   deps.Validator,
		logger:      deps.Logger,
	}
}

// Reconcile replaces the student's enrollments with subjectIDs and brings the
// theme assignments in line. All enrollments are deleted, then the selection
// is inserted in one batch; a failed replace is reported, never rolled back.
func (s *EnrollmentService) Reconcile(ctx context.Context, actor models.Actor, studentID models.ID, subjectIDs, manualTopics []models.ID) (*models.CommandSummary, error) {
	if err := s.validator.Var(subjectIDs, "dive,gt=0"); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject ids")
	}
	if err := s.validator.Var(manualTopics, "dive,gt=0"); err != nil {
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
	for _, subjectID := range subjectIDs {
		subject, ok := snap.Subject(subjectID)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %d does not exist", subjectID))
		}
		if !actor.CanSee(subject) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("subject %d is not visible to the acting teacher", subjectID))
		}
	}

	plan := PlanEnrollment(ReconcileState{
		StudentID:    studentID,
		SubjectIDs:   subjectIDs,
		ManualTopics: manualTopics,
		Snapshot:     snap,
	})
	if plan.Manual {
		target := make(map[models.ID]struct{}, len(plan.Enrollments))
		for _, e := range plan.Enrollments {
			target[e.SubjectID] = struct{}{}
		}
		if err := validateTopics(snap, actor, target, plan.DesiredTopics); err != nil {
			return nil, err
		}
	}

	cmd := newCommand(models.CommandKindReconcileEnrollment, studentID, actor)
	progress := &replaceProgress{enrolled: make(map[models.ID]bool, len(plan.Enrollments))}
	steps := s.enrollmentSteps(studentID, plan, progress)
	for _, topicID := range plan.Delta.ToRemove {
		steps = append(steps, s.engine.unassignStep(snap, studentID, topicID))
	}
	for _, topicID := range plan.Delta.ToAdd {
		steps = append(steps, gatedAssignStep(s.engine.assignStep(snap, studentID, topicID), progress))
	}

	s.snapshots.MarkStale()
	s.executor.Execute(ctx, cmd, steps)

	summary := finishCommand(ctx, cmd, s.snapshots, s.reconciler, s.logger)
	recordCommand(ctx, s.journal, cmd, len(steps))
	if cmd.Failed > 0 {
		s.logger.Warn("enrollment reconciliation partially failed",
			zap.Int64("student_id", int64(studentID)),
			zap.String("command_id", cmd.ID),
			zap.String("summary", cmd.Summary()))
	}
	return summary, nil
}

// replaceProgress carries enrollment results from the replace steps to the
// assignment steps planned after them.
type replaceProgress struct {
	cleared  bool
	enrolled map[models.ID]bool
}

// gatedAssignStep fails an assignment without a backend call when the student
// is not enrolled in its subject, either because the enrollment did not land
// or because it was never there.
func gatedAssignStep(step Step, progress *replaceProgress) Step {
	subjectID := step.Operations[0].SubjectID
	run := step.Run
	step.Run = func(ctx context.Context) []StepResult {
		if !progress.enrolled[subjectID] {
			return []StepResult{{Outcome: models.OutcomeFailed, Err: fmt.Errorf("skipped: student is not enrolled in subject %d", subjectID)}}
		}
		return run(ctx)
	}
	return step
}

// enrollmentSteps plans the delete-all step followed by the batch insert. The
// insert is skipped when the delete failed.
func (s *EnrollmentService) enrollmentSteps(studentID models.ID, plan EnrollmentPlan, progress *replaceProgress) []Step {
	steps := []Step{singleStep(
		models.Operation{Action: models.ActionClearEnrollments, StudentID: studentID},
		func(ctx context.Context) (models.Outcome, error) {
			err := s.enrollments.DeleteByStudent(ctx, studentID)
			switch {
			case err == nil:
				progress.cleared = true
				return models.OutcomeRemoved, nil
			case errors.Is(err, appErrors.ErrNotFound):
				progress.cleared = true
				return models.OutcomeMissing, nil
			default:
				return models.OutcomeFailed, err
			}
		},
	)}

	if len(plan.Enrollments) == 0 {
		return steps
	}

	ops := make([]models.Operation, len(plan.Enrollments))
	for i, e := range plan.Enrollments {
		ops[i] = models.Operation{Action: models.ActionEnroll, StudentID: studentID, SubjectID: e.SubjectID}
	}
	steps = append(steps, Step{
		Operations: ops,
		Run: func(ctx context.Context) []StepResult {
			results := make([]StepResult, len(plan.Enrollments))
			if !progress.cleared {
				for i := range results {
					results[i] = StepResult{Outcome: models.OutcomeFailed, Err: errors.New("enrollment replace aborted: existing enrollments were not removed")}
				}
				return results
			}
			outcomes, err := s.enrollments.CreateBatch(ctx, plan.Enrollments)
			if err != nil {
				for i := range results {
					results[i] = StepResult{Outcome: models.OutcomeFailed, Err: err}
				}
				return results
			}
			for i := range results {
				if i < len(outcomes) && bool(outcomes[i].Success) {
					progress.enrolled[plan.Enrollments[i].SubjectID] = true
					results[i] = StepResult{Outcome: models.OutcomeCreated}
					continue
				}
				reason := "enrollment rejected"
				if i < len(outcomes) && outcomes[i].Error != "" {
					reason = outcomes[i].Error
				}
				results[i] = StepResult{Outcome: models.OutcomeFailed, Err: errors.New(reason)}
			}
			return results
		},
	})
	return steps
}
