package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

// StepResult is the outcome of one planned operation.
type StepResult struct {
	Outcome models.Outcome
	Err     error
}

// Step is one unit of sequential work. It usually covers a single operation;
// batched backend calls cover several and return one result per operation.
type Step struct {
	Operations []models.Operation
	Run        func(ctx context.Context) []StepResult
}

// singleStep adapts a one-operation call into a Step.
func singleStep(op models.Operation, run func(ctx context.Context) (models.Outcome, error)) Step {
	return Step{
		Operations: []models.Operation{op},
		Run: func(ctx context.Context) []StepResult {
			outcome, err := run(ctx)
			return []StepResult{{Outcome: outcome, Err: err}}
		},
	}
}

// Executor runs planned steps and folds their results into the command.
// SequentialExecutor is the only implementation; a batched backend endpoint
// would plug in here.
type Executor interface {
	Execute(ctx context.Context, cmd *models.Command, steps []Step)
}

type operationRecorder interface {
	RecordOperation(action models.OperationAction, outcome models.Outcome)
}

// SequentialExecutor awaits each step before starting the next. A failing
// step never aborts the remaining ones.
type SequentialExecutor struct {
	metrics operationRecorder
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewSequentialExecutor constructs the executor.
func NewSequentialExecutor(metrics operationRecorder, logger *zap.Logger) *SequentialExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequentialExecutor{
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("github.com/noah-isme/sma-progress-api/internal/service/command"),
		now:     time.Now,
	}
}

// Execute runs steps in order. The batch is detached from the caller's
// cancellation so a dropped client connection cannot cut it in half.
func (e *SequentialExecutor) Execute(ctx context.Context, cmd *models.Command, steps []Step) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := e.tracer.Start(ctx, "command.execute", trace.WithAttributes(
		attribute.String("command.id", cmd.ID),
		attribute.String("command.kind", string(cmd.Kind)),
		attribute.Int64("command.student_id", int64(cmd.StudentID)),
		attribute.Int("command.steps", len(steps)),
	))
	defer span.End()

	for _, step := range steps {
		results := step.Run(ctx)
		for i, op := range step.Operations {
			result := StepResult{Outcome: models.OutcomeFailed, Err: fmt.Errorf("no result reported")}
			if i < len(results) {
				result = results[i]
			}
			e.record(cmd, op, result)
		}
	}

	cmd.Tally()
	completed := e.now().UTC()
	cmd.CompletedAt = &completed
	span.SetAttributes(attribute.Int("command.succeeded", cmd.Succeeded), attribute.Int("command.failed", cmd.Failed))
	if cmd.Failed > 0 {
		span.SetStatus(codes.Error, "partial_batch_failure")
	}
}

func (e *SequentialExecutor) record(cmd *models.Command, op models.Operation, result StepResult) {
	op.Seq = len(cmd.Operations) + 1
	op.CommandID = cmd.ID
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	op.Outcome = result.Outcome
	if result.Err != nil {
		op.Outcome = models.OutcomeFailed
		op.Error = result.Err.Error()
	}
	cmd.Operations = append(cmd.Operations, op)
	if e.metrics != nil {
		e.metrics.RecordOperation(op.Action, op.Outcome)
	}

	fields := []zap.Field{
		zap.String("command_id", cmd.ID),
		zap.String("action", string(op.Action)),
		zap.Int64("student_id", int64(op.StudentID)),
		zap.Int64("subject_id", int64(op.SubjectID)),
		zap.Int64("topic_id", int64(op.TopicID)),
	}
	switch op.Outcome {
	case models.OutcomeFailed:
		e.logger.Warn("operation failed", append(fields, zap.String("error", op.Error))...)
	case models.OutcomeMissing:
		e.logger.Warn("record vanished before removal", fields...)
	}
}

// newCommand starts an empty command for the actor.
func newCommand(kind models.CommandKind, studentID models.ID, actor models.Actor) *models.Command {
	return &models.Command{
		ID:        uuid.NewString(),
		Kind:      kind,
		StudentID: studentID,
		ActorID:   actor.UserID,
		CreatedAt: time.Now().UTC(),
	}
}

// appendOperation records an operation executed outside the pipeline, such as
// the status write of auto-reconciliation.
func appendOperation(cmd *models.Command, op models.Operation, outcome models.Outcome, err error) {
	op.Seq = len(cmd.Operations) + 1
	op.CommandID = cmd.ID
	op.ID = uuid.NewString()
	op.Outcome = outcome
	if err != nil {
		op.Outcome = models.OutcomeFailed
		op.Error = err.Error()
	}
	cmd.Operations = append(cmd.Operations, op)
	cmd.Tally()
}

type commandRecorder interface {
	Record(ctx context.Context, cmd *models.Command)
}
