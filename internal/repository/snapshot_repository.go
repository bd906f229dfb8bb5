package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// SnapshotRepository fetches every collection needed by a snapshot reload.
type SnapshotRepository struct {
	students    *StudentRepository
	subjects    *SubjectRepository
	enrollments *EnrollmentRepository
	topics      *TopicRepository
	assignments *ThemeAssignmentRepository
	remedials   *RemedialRepository
	grades      *GradeRepository
}

// NewSnapshotRepository wires the per-entity repositories sharing one client.
func NewSnapshotRepository(backend *BackendClient) *SnapshotRepository {
	return &SnapshotRepository{
		students:    NewStudentRepository(backend),
		subjects:    NewSubjectRepository(backend),
		enrollments: NewEnrollmentRepository(backend),
		topics:      NewTopicRepository(backend),
		assignments: NewThemeAssignmentRepository(backend),
		remedials:   NewRemedialRepository(backend),
		grades:      NewGradeRepository(backend),
	}
}

// Fetch loads all collections sequentially. Any failure aborts the reload so
// a snapshot is never assembled from a partial read.
func (r *SnapshotRepository) Fetch(ctx context.Context) (models.SnapshotData, error) {
	var (
		data models.SnapshotData
		err  error
	)
	if data.Students, err = r.students.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch students: %w", err)
	}
	if data.Subjects, err = r.subjects.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch subjects: %w", err)
	}
	if data.Enrollments, err = r.enrollments.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch enrollments: %w", err)
	}
	if data.Topics, err = r.topics.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch topics: %w", err)
	}
	if data.ThemeAssignments, err = r.assignments.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch theme assignments: %w", err)
	}
	if data.RemedialRecords, err = r.remedials.List(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch remedial records: %w", err)
	}
	if data.Evaluations, err = r.grades.ListEvaluations(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch evaluations: %w", err)
	}
	if data.Grades, err = r.grades.ListGrades(ctx); err != nil {
		return models.SnapshotData{}, fmt.Errorf("fetch grades: %w", err)
	}
	return data, nil
}
