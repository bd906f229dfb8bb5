package repository

import (
	"context"
	"fmt"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

const remedialPath = "/intensification"

// RemedialRepository manages the remedial-tracking records paired with theme
// assignments.
type RemedialRepository struct {
	backend *BackendClient
}

// NewRemedialRepository constructs a RemedialRepository.
func NewRemedialRepository(backend *BackendClient) *RemedialRepository {
	return &RemedialRepository{backend: backend}
}

// List returns every remedial record.
func (r *RemedialRepository) List(ctx context.Context) ([]models.RemedialRecord, error) {
	var records []models.RemedialRecord
	if err := r.backend.Get(ctx, "intensification.list", remedialPath, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Delete removes a remedial record by id.
func (r *RemedialRepository) Delete(ctx context.Context, id models.ID) error {
	return r.backend.Delete(ctx, "intensification.delete", fmt.Sprintf("%s/%d", remedialPath, id), nil)
}
