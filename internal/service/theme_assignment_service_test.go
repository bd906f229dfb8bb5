package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

func TestBulkReconcile(t *testing.T) {
	tests := []struct {
		name     string
		desired  []models.ID
		previous []models.ID
		add      []models.ID
		remove   []models.ID
	}{
		{name: "overlap", desired: []models.ID{1, 2, 3}, previous: []models.ID{2, 3, 4}, add: []models.ID{1}, remove: []models.ID{4}},
		{name: "identical", desired: []models.ID{3, 1}, previous: []models.ID{1, 3}, add: []models.ID{}, remove: []models.ID{}},
		{name: "from nothing", desired: []models.ID{5, 2, 2}, previous: nil, add: []models.ID{2, 5}, remove: []models.ID{}},
		{name: "clear all", desired: nil, previous: []models.ID{9, 7}, add: []models.ID{}, remove: []models.ID{7, 9}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			delta := BulkReconcile(tc.desired, tc.previous)
			assert.Equal(t, tc.add, delta.ToAdd)
			assert.Equal(t, tc.remove, delta.ToRemove)
		})
	}
	assert.True(t, BulkReconcile([]models.ID{1}, []models.ID{1}).Empty())
}

func TestAssignIsIdempotent(t *testing.T) {
	h := newHarness(schoolData())

	first := h.engine.Assign(context.Background(), 1, 101)
	second := h.engine.Assign(context.Background(), 1, 101)

	assert.Equal(t, models.OutcomeCreated, first.Outcome)
	assert.Equal(t, models.OutcomeAlreadyExists, second.Outcome)
	assert.NoError(t, second.Err)
	assert.True(t, second.Outcome.Succeeded())
	assert.Equal(t, []models.ID{101}, h.backend.assignedTopics(1))
}

func TestAssignReportsBackendFailure(t *testing.T) {
	h := newHarness(schoolData())
	h.backend.createErr[101] = errBackendDown

	result := h.engine.Assign(context.Background(), 1, 101)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, appErrors.ErrBackendUnavailable)
}

func TestUnassignRemovesPairedRemedialRecord(t *testing.T) {
	data := schoolData()
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending}}
	data.RemedialRecords = []models.RemedialRecord{
		{ID: 700, StudentID: 1, SubjectID: 10, TopicID: 101, Status: models.AssignmentStatusPending},
		{ID: 701, StudentID: 1, SubjectID: 20, TopicID: 201, Status: models.AssignmentStatusPending},
	}
	h := newHarness(data)
	snap, err := h.snapshots.Current(context.Background())
	require.NoError(t, err)

	result := h.engine.Unassign(context.Background(), snap, 1, 101)

	assert.Equal(t, models.OutcomeRemoved, result.Outcome)
	assert.Empty(t, h.backend.assignedTopics(1))
	require.Len(t, h.backend.data.RemedialRecords, 1)
	assert.Equal(t, models.ID(701), h.backend.data.RemedialRecords[0].ID)
}

func TestUnassignMissingRecordsResolve(t *testing.T) {
	data := schoolData()
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending}}
	h := newHarness(data)
	snap, err := h.snapshots.Current(context.Background())
	require.NoError(t, err)

	// Removed behind the snapshot's back.
	h.backend.data.ThemeAssignments = nil

	result := h.engine.Unassign(context.Background(), snap, 1, 101)
	assert.Equal(t, models.OutcomeMissing, result.Outcome)
	assert.NoError(t, result.Err)

	result = h.engine.Unassign(context.Background(), snap, 1, 201)
	assert.Equal(t, models.OutcomeMissing, result.Outcome)
}

func TestUnassignFailure(t *testing.T) {
	data := schoolData()
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending}}
	h := newHarness(data)
	h.backend.deleteErr[500] = errBackendDown
	snap, err := h.snapshots.Current(context.Background())
	require.NoError(t, err)

	result := h.engine.Unassign(context.Background(), snap, 1, 101)

	assert.Equal(t, models.OutcomeFailed, result.Outcome)
	assert.ErrorIs(t, result.Err, appErrors.ErrBackendUnavailable)
}

func TestSaveAppliesDeltaRemovalsFirst(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}, {ID: 2, StudentID: 1, SubjectID: 20}}
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending}}
	h := newHarness(data)

	summary, err := h.engine.Save(context.Background(), adminActor, 1, []models.ID{102, 201})

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, "3 succeeded, 0 failed", summary.Message)
	require.Len(t, summary.Operations, 3)
	assert.Equal(t, models.ActionUnassign, summary.Operations[0].Action)
	assert.Equal(t, models.ID(101), summary.Operations[0].TopicID)
	assert.Equal(t, models.ActionAssign, summary.Operations[1].Action)
	assert.Equal(t, models.ActionAssign, summary.Operations[2].Action)
	assert.Equal(t, []models.ID{102, 201}, h.backend.assignedTopics(1))
	assert.False(t, summary.SnapshotStale)

	snap, err := h.snapshots.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.Version, summary.SnapshotVersion)
	assert.Equal(t, []models.ID{102, 201}, snap.AssignedTopicIDs(1))

	saved, err := h.commands.Get(context.Background(), summary.CommandID)
	require.NoError(t, err)
	assert.Equal(t, models.CommandKindSaveThemes, saved.Kind)
	assert.Len(t, saved.Operations, 3)
}

func TestSaveWithoutChangesIssuesNoWrites(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending}}
	h := newHarness(data)

	summary, err := h.engine.Save(context.Background(), adminActor, 1, []models.ID{101})

	require.NoError(t, err)
	assert.Empty(t, summary.Operations)
	assert.Equal(t, 0, h.backend.assignmentCreate)
	assert.Empty(t, h.journal.order)
}

func TestSaveValidation(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	h := newHarness(data)

	tests := []struct {
		name   string
		actor  models.Actor
		topics []models.ID
		err    error
	}{
		{name: "topic outside enrollment", actor: adminActor, topics: []models.ID{201}, err: appErrors.ErrValidation},
		{name: "unknown topic", actor: adminActor, topics: []models.ID{999}, err: appErrors.ErrValidation},
		{name: "non positive id", actor: adminActor, topics: []models.ID{0}, err: appErrors.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Save(context.Background(), tc.actor, 1, tc.topics)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	_, err := h.engine.Save(context.Background(), adminActor, 99, []models.ID{101})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	assert.Equal(t, 0, h.backend.assignmentCreate)
}

func TestSaveKeepsAssignmentsOutsideTeacherScope(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}, {ID: 2, StudentID: 1, SubjectID: 30}}
	data.ThemeAssignments = []models.ThemeAssignment{
		{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending},
		{ID: 501, StudentID: 1, TopicID: 301, Status: models.AssignmentStatusPending},
	}
	h := newHarness(data)

	summary, err := h.engine.Save(context.Background(), teacherActor, 1, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []models.ID{301}, h.backend.assignedTopics(1))

	_, err = h.engine.Save(context.Background(), teacherActor, 1, []models.ID{301})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSaveReportsPartialFailure(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}, {ID: 2, StudentID: 1, SubjectID: 20}}
	h := newHarness(data)
	h.backend.createErr[201] = errBackendDown

	summary, err := h.engine.Save(context.Background(), adminActor, 1, []models.ID{101, 201})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, "1 succeeded, 1 failed", summary.Message)
	assert.Equal(t, []models.ID{101}, h.backend.assignedTopics(1))
	assert.Equal(t, models.OutcomeFailed, summary.Operations[1].Outcome)
	assert.NotEmpty(t, summary.Operations[1].Error)
}

func TestRemoveAutoDemotesWhenNothingOutstanding(t *testing.T) {
	data := schoolData()
	data.Students[0] = models.Student{ID: 1, Name: "Sofia", Status: models.StudentStatusIntensification, Intensifies: true}
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	data.ThemeAssignments = []models.ThemeAssignment{
		{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending},
		{ID: 501, StudentID: 1, TopicID: 102, Status: models.AssignmentStatusDone},
	}
	h := newHarness(data)

	summary, err := h.engine.Remove(context.Background(), adminActor, 1, []models.ID{101})

	require.NoError(t, err)
	assert.True(t, summary.StatusChanged)
	assert.Equal(t, models.StudentStatusActive, summary.Status)
	student := h.backend.student(1)
	assert.Equal(t, models.StudentStatusActive, student.Status)
	assert.False(t, bool(student.Intensifies))
	require.Len(t, summary.Operations, 2)
	assert.Equal(t, models.ActionUpdateStudent, summary.Operations[1].Action)
	assert.Equal(t, models.OutcomeUpdated, summary.Operations[1].Outcome)

	changes := h.events.ofType(EventStudentStatusChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, TriggerAutoReconciliation, changes[0].Payload.(StatusChangedEvent).Trigger)
}

func TestRemoveKeepsIntensificationWhileWorkRemains(t *testing.T) {
	data := schoolData()
	data.Students[0] = models.Student{ID: 1, Name: "Sofia", Status: models.StudentStatusIntensification, Intensifies: true}
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	data.ThemeAssignments = []models.ThemeAssignment{
		{ID: 500, StudentID: 1, TopicID: 101, Status: models.AssignmentStatusPending},
		{ID: 501, StudentID: 1, TopicID: 102, Status: models.AssignmentStatusPending},
	}
	h := newHarness(data)

	summary, err := h.engine.Remove(context.Background(), adminActor, 1, []models.ID{101})

	require.NoError(t, err)
	assert.False(t, summary.StatusChanged)
	assert.Equal(t, models.StudentStatusIntensification, summary.Status)
	assert.Empty(t, h.backend.statusUpdates)
	assert.Len(t, summary.Operations, 1)
}

func TestAdditionsNeverTriggerAutoReconciliation(t *testing.T) {
	data := schoolData()
	data.Students[0] = models.Student{ID: 1, Name: "Sofia", Status: models.StudentStatusIntensification, Intensifies: true}
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	h := newHarness(data)
	h.backend.createErr[101] = errBackendDown

	summary, err := h.engine.Save(context.Background(), adminActor, 1, []models.ID{101})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, h.backend.statusUpdates)
	assert.Equal(t, models.StudentStatusIntensification, summary.Status)
}

func TestRemoveRejectsForeignSubject(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 30}}
	data.ThemeAssignments = []models.ThemeAssignment{{ID: 500, StudentID: 1, TopicID: 301, Status: models.AssignmentStatusPending}}
	h := newHarness(data)

	_, err := h.engine.Remove(context.Background(), teacherActor, 1, []models.ID{301})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = h.engine.Remove(context.Background(), teacherActor, 1, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, []models.ID{301}, h.backend.assignedTopics(1))
}

func TestSaveSurfacesStaleSnapshot(t *testing.T) {
	data := schoolData()
	data.Enrollments = []models.Enrollment{{ID: 1, StudentID: 1, SubjectID: 10}}
	h := newHarness(data)
	_, err := h.snapshots.Current(context.Background())
	require.NoError(t, err)

	h.backend.fetchErr = errBackendDown
	summary, err := h.engine.Save(context.Background(), adminActor, 1, []models.ID{101})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, summary.SnapshotStale)

	_, err = h.snapshots.Current(context.Background())
	assert.ErrorIs(t, err, appErrors.ErrSnapshotStale)
}
