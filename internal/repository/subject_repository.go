package repository

import (
	"context"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// SubjectRepository reads subjects from the persistence service.
type SubjectRepository struct {
	backend *BackendClient
}

// NewSubjectRepository constructs a SubjectRepository.
func NewSubjectRepository(backend *BackendClient) *SubjectRepository {
	return &SubjectRepository{backend: backend}
}

// List returns every subject.
func (r *SubjectRepository) List(ctx context.Context) ([]models.Subject, error) {
	var subjects []models.Subject
	if err := r.backend.Get(ctx, "subject.list", "/subject", nil, &subjects); err != nil {
		return nil, err
	}
	return subjects, nil
}
