package repository

import (
	"context"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// GradeRepository reads evaluations and grades.
type GradeRepository struct {
	backend *BackendClient
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(backend *BackendClient) *GradeRepository {
	return &GradeRepository{backend: backend}
}

// ListEvaluations returns every evaluation.
func (r *GradeRepository) ListEvaluations(ctx context.Context) ([]models.Evaluation, error) {
	var evaluations []models.Evaluation
	if err := r.backend.Get(ctx, "evaluation.list", "/evaluation", nil, &evaluations); err != nil {
		return nil, err
	}
	return evaluations, nil
}

// ListGrades returns every grade.
func (r *GradeRepository) ListGrades(ctx context.Context) ([]models.Grade, error) {
	var grades []models.Grade
	if err := r.backend.Get(ctx, "grade.list", "/grade", nil, &grades); err != nil {
		return nil, err
	}
	return grades, nil
}
