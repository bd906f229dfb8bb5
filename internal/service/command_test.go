package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

type recordingMetrics struct {
	outcomes map[models.Outcome]int
}

func (r *recordingMetrics) RecordOperation(action models.OperationAction, outcome models.Outcome) {
	if r.outcomes == nil {
		r.outcomes = map[models.Outcome]int{}
	}
	r.outcomes[outcome]++
}

func TestSequentialExecutorRunsEveryStepInOrder(t *testing.T) {
	metrics := &recordingMetrics{}
	executor := NewSequentialExecutor(metrics, nil)
	cmd := newCommand(models.CommandKindSaveThemes, 1, adminActor)

	var order []models.ID
	step := func(topicID models.ID, outcome models.Outcome, err error) Step {
		return singleStep(models.Operation{Action: models.ActionAssign, StudentID: 1, TopicID: topicID}, func(ctx context.Context) (models.Outcome, error) {
			order = append(order, topicID)
			return outcome, err
		})
	}

	executor.Execute(context.Background(), cmd, []Step{
		step(1, models.OutcomeCreated, nil),
		step(2, models.OutcomeCreated, errors.New("server error")),
		step(3, models.OutcomeAlreadyExists, nil),
	})

	assert.Equal(t, []models.ID{1, 2, 3}, order)
	require.Len(t, cmd.Operations, 3)
	assert.Equal(t, 2, cmd.Succeeded)
	assert.Equal(t, 1, cmd.Failed)
	assert.Equal(t, models.OutcomeFailed, cmd.Operations[1].Outcome)
	assert.Equal(t, "server error", cmd.Operations[1].Error)
	for i, op := range cmd.Operations {
		assert.Equal(t, i+1, op.Seq)
		assert.Equal(t, cmd.ID, op.CommandID)
		assert.NotEmpty(t, op.ID)
	}
	assert.NotNil(t, cmd.CompletedAt)
	assert.Equal(t, 1, metrics.outcomes[models.OutcomeFailed])
	assert.Equal(t, 1, metrics.outcomes[models.OutcomeAlreadyExists])
}

func TestSequentialExecutorBatchStep(t *testing.T) {
	executor := NewSequentialExecutor(nil, nil)
	cmd := newCommand(models.CommandKindReconcileEnrollment, 1, adminActor)

	executor.Execute(context.Background(), cmd, []Step{{
		Operations: []models.Operation{
			{Action: models.ActionEnroll, SubjectID: 10},
			{Action: models.ActionEnroll, SubjectID: 20},
			{Action: models.ActionEnroll, SubjectID: 30},
		},
		Run: func(ctx context.Context) []StepResult {
			return []StepResult{{Outcome: models.OutcomeCreated}, {Outcome: models.OutcomeCreated}}
		},
	}})

	require.Len(t, cmd.Operations, 3)
	assert.Equal(t, 2, cmd.Succeeded)
	assert.Equal(t, "no result reported", cmd.Operations[2].Error)
}

func TestSequentialExecutorIgnoresCallerCancellation(t *testing.T) {
	executor := NewSequentialExecutor(nil, nil)
	cmd := newCommand(models.CommandKindRemoveThemes, 1, adminActor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	executor.Execute(ctx, cmd, []Step{singleStep(models.Operation{Action: models.ActionUnassign}, func(ctx context.Context) (models.Outcome, error) {
		seen = ctx.Err()
		return models.OutcomeRemoved, nil
	})})

	assert.NoError(t, seen)
	assert.Equal(t, 1, cmd.Succeeded)
}

func TestCommandHelpers(t *testing.T) {
	cmd := &models.Command{ID: "c1"}
	appendOperation(cmd, models.Operation{Action: models.ActionUnassign}, models.OutcomeMissing, nil)
	appendOperation(cmd, models.Operation{Action: models.ActionUpdateStudent}, models.OutcomeUpdated, errors.New("conflict"))

	assert.True(t, cmd.HasResolvedRemoval())
	assert.Equal(t, "1 succeeded, 1 failed", cmd.Summary())
	failed := cmd.FailedOperations()
	require.Len(t, failed, 1)
	assert.Equal(t, 2, failed[0].Seq)
	assert.False(t, failed[0].Action.Retryable())
}
