package repository

import (
	"context"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// TopicRepository reads content items, exposed by the backend as /content.
type TopicRepository struct {
	backend *BackendClient
}

// NewTopicRepository constructs a TopicRepository.
func NewTopicRepository(backend *BackendClient) *TopicRepository {
	return &TopicRepository{backend: backend}
}

// List returns every topic.
func (r *TopicRepository) List(ctx context.Context) ([]models.Topic, error) {
	var topics []models.Topic
	if err := r.backend.Get(ctx, "content.list", "/content", nil, &topics); err != nil {
		return nil, err
	}
	return topics, nil
}
