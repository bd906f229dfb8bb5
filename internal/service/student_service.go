package service

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// StatusEvent drives the intensification state machine.
type StatusEvent string

const (
	EventIntensify          StatusEvent = "INTENSIFY"
	EventOutstandingCleared StatusEvent = "OUTSTANDING_CLEARED"
	EventActivate           StatusEvent = "ACTIVATE"
	EventDeactivate         StatusEvent = "DEACTIVATE"
)

// ErrInvalidTransition is returned for events the current status cannot accept.
var ErrInvalidTransition = appErrors.New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")

// NextStatus applies event to current.
//
//	ACTIVE, INACTIVE  --INTENSIFY-->            INTENSIFICATION
//	INTENSIFICATION   --OUTSTANDING_CLEARED-->  ACTIVE
//	any               --ACTIVATE-->             ACTIVE
//	any               --DEACTIVATE-->           INACTIVE
func NextStatus(current models.StudentStatus, event StatusEvent) (models.StudentStatus, error) {
	if !current.Valid() {
		return current, appErrors.Clone(ErrInvalidTransition, fmt.Sprintf("unknown status %q", current))
	}
	switch event {
	case EventIntensify:
		return models.StudentStatusIntensification, nil
	case EventOutstandingCleared:
		if current != models.StudentStatusIntensification {
			return current, appErrors.Clone(ErrInvalidTransition, fmt.Sprintf("%s cannot clear outstanding work", current))
		}
		return models.StudentStatusActive, nil
	case EventActivate:
		return models.StudentStatusActive, nil
	case EventDeactivate:
		return models.StudentStatusInactive, nil
	default:
		return current, appErrors.Clone(ErrInvalidTransition, fmt.Sprintf("unknown event %q", event))
	}
}

func eventFor(target models.StudentStatus) (StatusEvent, bool) {
	switch target {
	case models.StudentStatusIntensification:
		return EventIntensify, true
	case models.StudentStatusActive:
		return EventActivate, true
	case models.StudentStatusInactive:
		return EventDeactivate, true
	}
	return "", false
}

// StudentService owns the intensification state machine.
type StudentService struct {
	students  studentStatusWriter
	engine    *ThemeAssignmentService
	snapshots snapshotProvider
	executor  Executor
	journal   commandRecorder
	locks     *KeyedMutex
	events    EventPublisher
	metrics   statusChangeRecorder
	logger    *zap.Logger
}

// StudentServiceDeps groups collaborators of StudentService.
type StudentServiceDeps struct {
	Students  studentStatusWriter
	Engine    *ThemeAssignmentService
	Snapshots snapshotProvider
	Executor  Executor
	Journal   commandRecorder
	Locks     *KeyedMutex
	Events    EventPublisher
	Metrics   statusChangeRecorder
	Logger    *zap.Logger
}

// NewStudentService constructs the service.
func NewStudentService(deps StudentServiceDeps) *StudentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Executor == nil {
		deps.Executor = NewSequentialExecutor(nil, deps.Logger)
	}
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	return &StudentService{
		students:  deps.Students,
		engine:    deps.Engine,
		snapshots: deps.Snapshots,
		executor:  deps.Executor,
		journal:   deps.Journal,
		locks:     deps.Locks,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// EditState returns the initial state of the edit form: the effective status,
// whether the theme checklist is shown and every visible subject with its
// topics marked as assigned or not.
func (s *StudentService) EditState(ctx context.Context, actor models.Actor, studentID models.ID) (*models.ProgressView, error) {
	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	student, ok := snap.Student(studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	enrolled := toSet(snap.EnrolledSubjectIDs(studentID))
	assignments := make(map[models.ID]models.ThemeAssignment)
	for _, a := range snap.AssignmentsFor(studentID) {
		assignments[a.TopicID] = a
	}

	subjects := make([]models.SubjectProgress, 0)
	for _, subject := range snap.Subjects {
		_, isEnrolled := enrolled[subject.ID]
		if !actor.CanSee(subject) && !isEnrolled {
			continue
		}
		progress := models.SubjectProgress{Subject: subject, Enrolled: isEnrolled, Topics: []models.TopicProgress{}}
		for _, topic := range snap.TopicsForSubject(subject.ID) {
			tp := models.TopicProgress{Topic: topic}
			if a, ok := assignments[topic.ID]; ok {
				tp.Assigned = true
				tp.AssignmentStatus = a.Status
			}
			progress.Topics = append(progress.Topics, tp)
		}
		subjects = append(subjects, progress)
	}
	sort.SliceStable(subjects, func(i, j int) bool { return subjects[i].Subject.ID < subjects[j].Subject.ID })

	status := student.EffectiveStatus()
	return &models.ProgressView{
		Student:          student,
		EffectiveStatus:  status,
		ChecklistVisible: status == models.StudentStatusIntensification,
		CanIntensify:     len(enrolled) > 0,
		Subjects:         subjects,
		Outstanding:      len(snap.OutstandingAssignments(studentID)),
		SnapshotVersion:  snap.Version,
	}, nil
}

// ToggleIntensification switches the student into or out of intensification.
func (s *StudentService) ToggleIntensification(ctx context.Context, actor models.Actor, studentID models.ID, enabled bool) (*models.CommandSummary, error) {
	target := models.StudentStatusActive
	if enabled {
		target = models.StudentStatusIntensification
	}
	return s.transition(ctx, actor, studentID, target, models.CommandKindToggleIntensify)
}

// SetStatus is the explicit status edit.
func (s *StudentService) SetStatus(ctx context.Context, actor models.Actor, studentID models.ID, status models.StudentStatus) (*models.CommandSummary, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}
	return s.transition(ctx, actor, studentID, status, models.CommandKindSetStatus)
}

// transition moves the student to target. Entering intensification requires
// at least one enrollment and is rejected before any backend call otherwise.
// Leaving it first removes outstanding assignments so the flag and the
// assignment set never disagree; every one of them must lie within the
// actor's scope, and the status write is skipped if any removal failed.
// Switching intensification off for a student who is not intensifying is a
// no-op.
func (s *StudentService) transition(ctx context.Context, actor models.Actor, studentID models.ID, target models.StudentStatus, kind models.CommandKind) (*models.CommandSummary, error) {
	event, ok := eventFor(target)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", target))
	}

	unlock := s.locks.Lock(studentID)
	defer unlock()

	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	student, ok := snap.Student(studentID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}

	current := student.EffectiveStatus()
	if kind == models.CommandKindToggleIntensify && target != models.StudentStatusIntensification && current != models.StudentStatusIntensification {
		cmd := newCommand(kind, studentID, actor)
		cmd.Tally()
		return finishCommand(ctx, cmd, s.snapshots, nil, s.logger), nil
	}
	next, err := NextStatus(current, event)
	if err != nil {
		return nil, err
	}
	if next == models.StudentStatusIntensification && len(snap.EnrolledSubjectIDs(studentID)) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assign subjects to the student before enabling intensification")
	}

	var outstanding []models.ThemeAssignment
	if current == models.StudentStatusIntensification && next != models.StudentStatusIntensification {
		outstanding = snap.OutstandingAssignments(studentID)
		for _, a := range outstanding {
			topic, ok := snap.Topic(a.TopicID)
			if !ok {
				continue
			}
			if subject, ok := snap.Subject(topic.SubjectID); ok && !actor.CanSee(subject) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("subject %d is outside your scope", subject.ID))
			}
		}
	}

	update := models.StudentStatusUpdate{Status: next, Intensifies: next == models.StudentStatusIntensification}
	cmd := newCommand(kind, studentID, actor)
	if next == current && student.Status == next && bool(student.Intensifies) == update.Intensifies {
		cmd.Tally()
		return finishCommand(ctx, cmd, s.snapshots, nil, s.logger), nil
	}

	steps := make([]Step, 0, len(outstanding)+1)
	for _, a := range outstanding {
		steps = append(steps, s.engine.unassignStep(snap, studentID, a.TopicID))
	}

	steps = append(steps, singleStep(
		models.Operation{Action: models.ActionUpdateStudent, StudentID: studentID},
		func(ctx context.Context) (models.Outcome, error) {
			if hasFailure(cmd) {
				return models.OutcomeFailed, fmt.Errorf("outstanding assignments could not be removed, status left unchanged")
			}
			if err := s.students.UpdateStatus(ctx, studentID, update); err != nil {
				return models.OutcomeFailed, err
			}
			return models.OutcomeUpdated, nil
		},
	))

	s.snapshots.MarkStale()
	s.executor.Execute(ctx, cmd, steps)

	summary := finishCommand(ctx, cmd, s.snapshots, nil, s.logger)
	recordCommand(ctx, s.journal, cmd, len(steps))

	if !hasFailure(cmd) {
		summary.StatusChanged = next != current
		summary.Status = next
		if s.metrics != nil {
			s.metrics.RecordStatusChange(next, TriggerTeacher)
		}
		publish(ctx, s.events, s.logger, EventStudentStatusChanged, StatusChangedEvent{
			StudentID:   studentID,
			From:        current,
			To:          next,
			Intensifies: update.Intensifies,
			Trigger:     TriggerTeacher,
		})
	}
	return summary, nil
}

func hasFailure(cmd *models.Command) bool {
	for _, op := range cmd.Operations {
		if op.Outcome == models.OutcomeFailed {
			return true
		}
	}
	return false
}
