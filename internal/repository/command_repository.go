package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

const commandColumns = `id, kind, student_id, actor_id, retry_of, succeeded, failed, created_at, completed_at`

const operationColumns = `id, command_id, seq, action, student_id, subject_id, topic_id, outcome, error`

// CommandRepository persists the journal of executed commands.
type CommandRepository struct {
	db *sqlx.DB
}

// NewCommandRepository constructs the repository.
func NewCommandRepository(db *sqlx.DB) *CommandRepository {
	return &CommandRepository{db: db}
}

// Save inserts the command and its operations in one transaction.
func (r *CommandRepository) Save(ctx context.Context, cmd *models.Command) error {
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin command tx: %w", err)
	}

	const insertCommand = `INSERT INTO progress_commands (` + commandColumns + `)
	VALUES (:id, :kind, :student_id, :actor_id, :retry_of, :succeeded, :failed, :created_at, :completed_at)`
	if _, err := tx.NamedExecContext(ctx, insertCommand, cmd); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert command: %w", err)
	}

	const insertOperation = `INSERT INTO progress_command_operations (` + operationColumns + `)
	VALUES (:id, :command_id, :seq, :action, :student_id, :subject_id, :topic_id, :outcome, :error)`
	for i := range cmd.Operations {
		op := &cmd.Operations[i]
		if op.ID == "" {
			op.ID = uuid.NewString()
		}
		op.CommandID = cmd.ID
		if _, err := tx.NamedExecContext(ctx, insertOperation, op); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert command operation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit command tx: %w", err)
	}
	return nil
}

// GetByID loads a command with its operations in sequence order.
func (r *CommandRepository) GetByID(ctx context.Context, id string) (*models.Command, error) {
	var cmd models.Command
	query := `SELECT ` + commandColumns + ` FROM progress_commands WHERE id = $1`
	if err := r.db.GetContext(ctx, &cmd, query, id); err != nil {
		return nil, err
	}

	opsQuery := `SELECT ` + operationColumns + ` FROM progress_command_operations WHERE command_id = $1 ORDER BY seq`
	if err := r.db.SelectContext(ctx, &cmd.Operations, opsQuery, id); err != nil {
		return nil, fmt.Errorf("list command operations: %w", err)
	}
	return &cmd, nil
}

// List returns the latest commands, optionally for one student. Operations
// are not loaded.
func (r *CommandRepository) List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 1)
	builder.WriteString(`SELECT ` + commandColumns + ` FROM progress_commands`)
	if filter.StudentID.Valid() {
		args = append(args, filter.StudentID)
		builder.WriteString(fmt.Sprintf(" WHERE student_id = $%d", len(args)))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d", limit))

	var commands []models.Command
	if err := r.db.SelectContext(ctx, &commands, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return commands, nil
}
