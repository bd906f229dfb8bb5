package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

const studentPath = "/student"

// StudentRepository reads and updates student records on the persistence service.
type StudentRepository struct {
	backend *BackendClient
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(backend *BackendClient) *StudentRepository {
	return &StudentRepository{backend: backend}
}

// List returns every student.
func (r *StudentRepository) List(ctx context.Context) ([]models.Student, error) {
	var students []models.Student
	if err := r.backend.Get(ctx, "student.list", studentPath, nil, &students); err != nil {
		return nil, err
	}
	return students, nil
}

// UpdateStatus writes the status and intensification flag of a student.
func (r *StudentRepository) UpdateStatus(ctx context.Context, id models.ID, update models.StudentStatusUpdate) error {
	return r.backend.Put(ctx, "student.update", fmt.Sprintf("%s/%d", studentPath, id), update, nil)
}
