package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// Event types published for UI collaborators.
const (
	EventStudentStatusChanged = "student.status.changed"
	EventSnapshotReloaded     = "snapshot.reloaded"
	EventCommandCompleted     = "command.completed"
)

// EventPublisher fans domain events out to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload interface{}) error
}

// StatusChangedEvent is the payload of student.status.changed.
type StatusChangedEvent struct {
	StudentID   models.ID            `json:"studentId"`
	From        models.StudentStatus `json:"from"`
	To          models.StudentStatus `json:"to"`
	Intensifies bool                 `json:"intensifies"`
	Trigger     string               `json:"trigger"`
}

// SnapshotReloadedEvent is the payload of snapshot.reloaded.
type SnapshotReloadedEvent struct {
	Version int64 `json:"version"`
}

// publish never fails the caller: events are best effort.
func publish(ctx context.Context, publisher EventPublisher, logger *zap.Logger, eventType string, payload interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, eventType, payload); err != nil {
		logger.Warn("failed to publish event", zap.String("event", eventType), zap.Error(err))
	}
}
