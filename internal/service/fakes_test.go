package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

// fakeBackend is an in-memory persistence service. It honours the same
// contract as the HTTP repositories: 409 on duplicate assignments and 404 on
// unknown ids.
type fakeBackend struct {
	mu     sync.Mutex
	data   models.SnapshotData
	nextID models.ID

	fetchErr         error
	fetches          int
	createErr        map[models.ID]error
	deleteErr        map[models.ID]error
	clearErr         error
	enrollErr        map[models.ID]string
	updateErr        error
	statusUpdates    []models.StudentStatusUpdate
	assignmentCreate int
}

func newFakeBackend(data models.SnapshotData) *fakeBackend {
	return &fakeBackend{
		data:      data,
		nextID:    1000,
		createErr: map[models.ID]error{},
		deleteErr: map[models.ID]error{},
		enrollErr: map[models.ID]string{},
	}
}

func (b *fakeBackend) id() models.ID {
	b.nextID++
	return b.nextID
}

func (b *fakeBackend) Fetch(ctx context.Context) (models.SnapshotData, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches++
	if b.fetchErr != nil {
		return models.SnapshotData{}, b.fetchErr
	}
	return models.SnapshotData{
		Students:         append([]models.Student(nil), b.data.Students...),
		Subjects:         append([]models.Subject(nil), b.data.Subjects...),
		Enrollments:      append([]models.Enrollment(nil), b.data.Enrollments...),
		Topics:           append([]models.Topic(nil), b.data.Topics...),
		ThemeAssignments: append([]models.ThemeAssignment(nil), b.data.ThemeAssignments...),
		RemedialRecords:  append([]models.RemedialRecord(nil), b.data.RemedialRecords...),
		Evaluations:      append([]models.Evaluation(nil), b.data.Evaluations...),
		Grades:           append([]models.Grade(nil), b.data.Grades...),
	}, nil
}

func (b *fakeBackend) assignedTopics(studentID models.ID) []models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []models.ID
	for _, a := range b.data.ThemeAssignments {
		if a.StudentID == studentID {
			ids = append(ids, a.TopicID)
		}
	}
	return models.UniqueIDs(ids)
}

func (b *fakeBackend) enrolledSubjects(studentID models.ID) []models.ID {
	b.mu.Lock()
	defer b.mu.Unlock()
	var ids []models.ID
	for _, e := range b.data.Enrollments {
		if e.StudentID == studentID {
			ids = append(ids, e.SubjectID)
		}
	}
	return ids
}

func (b *fakeBackend) student(id models.ID) models.Student {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.data.Students {
		if s.ID == id {
			return s
		}
	}
	return models.Student{}
}

func (b *fakeBackend) DeleteByStudent(ctx context.Context, studentID models.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.clearErr != nil {
		return b.clearErr
	}
	kept := b.data.Enrollments[:0]
	for _, e := range b.data.Enrollments {
		if e.StudentID != studentID {
			kept = append(kept, e)
		}
	}
	b.data.Enrollments = kept
	return nil
}

func (b *fakeBackend) CreateBatch(ctx context.Context, enrollments []models.Enrollment) ([]models.EnrollmentOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	outcomes := make([]models.EnrollmentOutcome, 0, len(enrollments))
	for _, e := range enrollments {
		outcome := models.EnrollmentOutcome{StudentID: e.StudentID, SubjectID: e.SubjectID}
		if reason, ok := b.enrollErr[e.SubjectID]; ok {
			outcome.Error = reason
			outcomes = append(outcomes, outcome)
			continue
		}
		e.ID = b.id()
		b.data.Enrollments = append(b.data.Enrollments, e)
		outcome.ID = e.ID
		outcome.Success = true
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (b *fakeBackend) UpdateStatus(ctx context.Context, id models.ID, update models.StudentStatusUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return b.updateErr
	}
	for i, s := range b.data.Students {
		if s.ID == id {
			b.data.Students[i].Status = update.Status
			b.data.Students[i].Intensifies = models.Flag(update.Intensifies)
			b.statusUpdates = append(b.statusUpdates, update)
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

// fakeAssignments exposes the theme-assignment collection of fakeBackend.
type fakeAssignments struct{ b *fakeBackend }

func (f fakeAssignments) Create(ctx context.Context, studentID, topicID models.ID) (*models.ThemeAssignment, error) {
	b := f.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assignmentCreate++
	if err := b.createErr[topicID]; err != nil {
		return nil, err
	}
	for _, a := range b.data.ThemeAssignments {
		if a.StudentID == studentID && a.TopicID == topicID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate theme assignment")
		}
	}
	a := models.ThemeAssignment{ID: b.id(), StudentID: studentID, TopicID: topicID, Status: models.AssignmentStatusPending}
	b.data.ThemeAssignments = append(b.data.ThemeAssignments, a)
	return &a, nil
}

func (f fakeAssignments) Delete(ctx context.Context, id models.ID) error {
	b := f.b
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.deleteErr[id]; err != nil {
		return err
	}
	for i, a := range b.data.ThemeAssignments {
		if a.ID == id {
			b.data.ThemeAssignments = append(b.data.ThemeAssignments[:i], b.data.ThemeAssignments[i+1:]...)
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "theme assignment not found")
}

// fakeRemedials exposes the remedial collection of fakeBackend.
type fakeRemedials struct{ b *fakeBackend }

func (f fakeRemedials) Delete(ctx context.Context, id models.ID) error {
	b := f.b
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.data.RemedialRecords {
		if r.ID == id {
			b.data.RemedialRecords = append(b.data.RemedialRecords[:i], b.data.RemedialRecords[i+1:]...)
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrNotFound, "remedial record not found")
}

type fakeJournal struct {
	mu       sync.Mutex
	commands map[string]*models.Command
	order    []string
	saveErr  error
}

func newFakeJournal() *fakeJournal {
	return &fakeJournal{commands: map[string]*models.Command{}}
}

func (j *fakeJournal) Save(ctx context.Context, cmd *models.Command) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.saveErr != nil {
		return j.saveErr
	}
	copied := *cmd
	copied.Operations = append([]models.Operation(nil), cmd.Operations...)
	j.commands[cmd.ID] = &copied
	j.order = append(j.order, cmd.ID)
	return nil
}

func (j *fakeJournal) GetByID(ctx context.Context, id string) (*models.Command, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	cmd, ok := j.commands[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cmd, nil
}

func (j *fakeJournal) List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.Command
	for i := len(j.order) - 1; i >= 0; i-- {
		cmd := j.commands[j.order[i]]
		if filter.StudentID.Valid() && cmd.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *cmd)
	}
	return out, nil
}

type publishedEvent struct {
	Type    string
	Payload interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (f *fakeEvents) Publish(ctx context.Context, eventType string, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{Type: eventType, Payload: payload})
	return f.err
}

func (f *fakeEvents) ofType(eventType string) []publishedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []publishedEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// harness wires every service on top of one fakeBackend the way main does.
type harness struct {
	backend    *fakeBackend
	snapshots  *SnapshotService
	engine     *ThemeAssignmentService
	enrollment *EnrollmentService
	students   *StudentService
	commands   *CommandService
	grades     *GradeService
	journal    *fakeJournal
	events     *fakeEvents
}

func newHarness(data models.SnapshotData) *harness {
	backend := newFakeBackend(data)
	events := &fakeEvents{}
	journal := newFakeJournal()
	locks := NewKeyedMutex()
	executor := NewSequentialExecutor(nil, nil)

	snapshots := NewSnapshotService(backend, 0, nil, nil, events, nil)
	reconciler := NewStatusReconciler(backend, snapshots, events, nil, nil)
	commands := NewCommandService(CommandServiceDeps{
		Repo:        journal,
		Enrollments: backend,
		Snapshots:   snapshots,
		Reconciler:  reconciler,
		Executor:    executor,
		Locks:       locks,
		Events:      events,
	})
	engine := NewThemeAssignmentService(ThemeAssignmentServiceDeps{
		Assignments: fakeAssignments{backend},
		Remedials:   fakeRemedials{backend},
		Snapshots:   snapshots,
		Reconciler:  reconciler,
		Executor:    executor,
		Journal:     commands,
		Locks:       locks,
	})
	commands.AttachEngine(engine)

	return &harness{
		backend:   backend,
		snapshots: snapshots,
		engine:    engine,
		enrollment: NewEnrollmentService(EnrollmentServiceDeps{
			Enrollments: backend,
			Engine:      engine,
			Snapshots:   snapshots,
			Reconciler:  reconciler,
			Executor:    executor,
			Journal:     commands,
			Locks:       locks,
		}),
		students: NewStudentService(StudentServiceDeps{
			Students:  backend,
			Engine:    engine,
			Snapshots: snapshots,
			Executor:  executor,
			Journal:   commands,
			Locks:     locks,
			Events:    events,
		}),
		commands: commands,
		grades:   NewGradeService(snapshots, nil, nil, nil),
		journal:  journal,
		events:   events,
	}
}

var (
	adminActor   = models.Actor{UserID: "admin-1", Role: models.RoleAdmin}
	teacherActor = models.Actor{UserID: "teacher-1", Role: models.RoleTeacher, TeacherID: 50}

	errBackendDown = appErrors.Wrap(errors.New("connection refused"), appErrors.ErrBackendUnavailable.Code, appErrors.ErrBackendUnavailable.Status, appErrors.ErrBackendUnavailable.Message)
)

// schoolData is student S (1) with subject A (10: topics 101, 102) and
// subject B (20: topic 201), both owned by teacher 50, and subject C (30:
// topic 301) owned by teacher 60.
func schoolData() models.SnapshotData {
	return models.SnapshotData{
		Students: []models.Student{
			{ID: 1, Name: "Sofia", Status: models.StudentStatusActive},
			{ID: 2, Name: "Bruno", Status: models.StudentStatusActive},
		},
		Subjects: []models.Subject{
			{ID: 10, Name: "Algebra", TeacherID: 50, Status: models.SubjectStatusActive},
			{ID: 20, Name: "Biology", TeacherID: 50, Status: models.SubjectStatusActive},
			{ID: 30, Name: "Chemistry", TeacherID: 60, Status: models.SubjectStatusActive},
		},
		Topics: []models.Topic{
			{ID: 101, SubjectID: 10, Title: "Equations"},
			{ID: 102, SubjectID: 10, Title: "Inequalities"},
			{ID: 201, SubjectID: 20, Title: "Cells"},
			{ID: 301, SubjectID: 30, Title: "Atoms"},
		},
	}
}
