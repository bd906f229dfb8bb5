package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

const themeAssignmentPath = "/theme-assignment"

// ThemeAssignmentRepository creates and deletes theme assignments.
type ThemeAssignmentRepository struct {
	backend *BackendClient
}

// NewThemeAssignmentRepository constructs a ThemeAssignmentRepository.
func NewThemeAssignmentRepository(backend *BackendClient) *ThemeAssignmentRepository {
	return &ThemeAssignmentRepository{backend: backend}
}

// List returns every theme assignment.
func (r *ThemeAssignmentRepository) List(ctx context.Context) ([]models.ThemeAssignment, error) {
	var assignments []models.ThemeAssignment
	if err := r.backend.Get(ctx, "theme_assignment.list", themeAssignmentPath, nil, &assignments); err != nil {
		return nil, err
	}
	return assignments, nil
}

// Create inserts a PENDING assignment. A duplicate surfaces as a CONFLICT error.
func (r *ThemeAssignmentRepository) Create(ctx context.Context, studentID, topicID models.ID) (*models.ThemeAssignment, error) {
	payload := models.ThemeAssignment{StudentID: studentID, TopicID: topicID, Status: models.AssignmentStatusPending}
	var created models.ThemeAssignment
	if err := r.backend.Post(ctx, "theme_assignment.create", themeAssignmentPath, payload, &created); err != nil {
		return nil, err
	}
	if !created.StudentID.Valid() {
		created.StudentID = studentID
		created.TopicID = topicID
		created.Status = models.AssignmentStatusPending
	}
	return &created, nil
}

// Delete removes an assignment by id.
func (r *ThemeAssignmentRepository) Delete(ctx context.Context, id models.ID) error {
	return r.backend.Delete(ctx, "theme_assignment.delete", fmt.Sprintf("%s/%d", themeAssignmentPath, id), nil)
}
