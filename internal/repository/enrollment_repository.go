package repository

import (
	"context"
	"net/url"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

const enrollmentPath = "/enrollment"

// EnrollmentRepository manages enrollments on the persistence service.
type EnrollmentRepository struct {
	backend *BackendClient
}

// NewEnrollmentRepository constructs an EnrollmentRepository.
func NewEnrollmentRepository(backend *BackendClient) *EnrollmentRepository {
	return &EnrollmentRepository{backend: backend}
}

// List returns every enrollment.
func (r *EnrollmentRepository) List(ctx context.Context) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	if err := r.backend.Get(ctx, "enrollment.list", enrollmentPath, nil, &enrollments); err != nil {
		return nil, err
	}
	return enrollments, nil
}

// DeleteByStudent removes all enrollments of a student.
func (r *EnrollmentRepository) DeleteByStudent(ctx context.Context, studentID models.ID) error {
	query := url.Values{}
	query.Set("studentId", studentID.String())
	return r.backend.Delete(ctx, "enrollment.delete_by_student", enrollmentPath, query)
}

type enrollmentResult struct {
	ID        models.ID    `json:"id"`
	StudentID models.ID    `json:"studentId"`
	SubjectID models.ID    `json:"subjectId"`
	Success   *models.Flag `json:"success"`
	Error     string       `json:"error"`
}

// CreateBatch inserts the enrollments in one request and returns one outcome
// per requested subject, in request order. Items the backend omits from its
// answer are reported as failed; an empty answer means every item succeeded.
func (r *EnrollmentRepository) CreateBatch(ctx context.Context, enrollments []models.Enrollment) ([]models.EnrollmentOutcome, error) {
	if len(enrollments) == 0 {
		return nil, nil
	}
	var results []enrollmentResult
	if err := r.backend.Post(ctx, "enrollment.create_batch", enrollmentPath, enrollments, &results); err != nil {
		return nil, err
	}

	bySubject := make(map[models.ID]enrollmentResult, len(results))
	for _, res := range results {
		bySubject[res.SubjectID] = res
	}

	outcomes := make([]models.EnrollmentOutcome, 0, len(enrollments))
	for _, e := range enrollments {
		outcome := models.EnrollmentOutcome{StudentID: e.StudentID, SubjectID: e.SubjectID}
		res, ok := bySubject[e.SubjectID]
		switch {
		case len(results) == 0:
			outcome.Success = true
		case !ok:
			outcome.Error = "no outcome reported for subject"
		default:
			outcome.ID = res.ID
			outcome.Error = res.Error
			if res.Success != nil {
				outcome.Success = *res.Success
			} else {
				outcome.Success = models.Flag(res.Error == "")
			}
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}
