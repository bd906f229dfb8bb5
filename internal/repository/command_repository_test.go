package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

func newCommandRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCommandRepositorySave(t *testing.T) {
	db, mock, cleanup := newCommandRepoMock(t)
	defer cleanup()
	repo := NewCommandRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO progress_commands")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO progress_command_operations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO progress_command_operations")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cmd := &models.Command{
		Kind:      models.CommandKindSaveThemes,
		StudentID: 7,
		ActorID:   "teacher-1",
		Operations: []models.Operation{
			{Seq: 1, Action: models.ActionAssign, StudentID: 7, TopicID: 11, Outcome: models.OutcomeCreated},
			{Seq: 2, Action: models.ActionAssign, StudentID: 7, TopicID: 12, Outcome: models.OutcomeFailed, Error: "boom"},
		},
	}
	require.NoError(t, repo.Save(context.Background(), cmd))
	assert.NotEmpty(t, cmd.ID)
	assert.False(t, cmd.CreatedAt.IsZero())
	for _, op := range cmd.Operations {
		assert.Equal(t, cmd.ID, op.CommandID)
		assert.NotEmpty(t, op.ID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandRepositorySaveRollsBack(t *testing.T) {
	db, mock, cleanup := newCommandRepoMock(t)
	defer cleanup()
	repo := NewCommandRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO progress_commands")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Save(context.Background(), &models.Command{Kind: models.CommandKindRemoveThemes, StudentID: 3})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newCommandRepoMock(t)
	defer cleanup()
	repo := NewCommandRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind, student_id, actor_id, retry_of, succeeded, failed, created_at, completed_at FROM progress_commands WHERE id = $1")).
		WithArgs("cmd-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "student_id", "actor_id", "retry_of", "succeeded", "failed", "created_at", "completed_at"}).
			AddRow("cmd-1", "SAVE_THEMES", int64(7), "teacher-1", nil, 1, 1, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM progress_command_operations WHERE command_id = $1 ORDER BY seq")).
		WithArgs("cmd-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "command_id", "seq", "action", "student_id", "subject_id", "topic_id", "outcome", "error"}).
			AddRow("op-1", "cmd-1", 1, "ASSIGN", int64(7), int64(0), int64(11), "CREATED", "").
			AddRow("op-2", "cmd-1", 2, "ASSIGN", int64(7), int64(0), int64(12), "FAILED", "boom"))

	cmd, err := repo.GetByID(context.Background(), "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, models.ID(7), cmd.StudentID)
	require.Len(t, cmd.Operations, 2)
	assert.Equal(t, models.OutcomeFailed, cmd.Operations[1].Outcome)
	assert.Equal(t, models.ID(12), cmd.Operations[1].TopicID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommandRepositoryListByStudent(t *testing.T) {
	db, mock, cleanup := newCommandRepoMock(t)
	defer cleanup()
	repo := NewCommandRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM progress_commands WHERE student_id = $1 ORDER BY created_at DESC LIMIT 20")).
		WithArgs(models.ID(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "student_id", "actor_id", "retry_of", "succeeded", "failed", "created_at", "completed_at"}).
			AddRow("cmd-1", "REMOVE_THEMES", int64(7), "teacher-1", nil, 2, 0, time.Now(), nil))

	commands, err := repo.List(context.Background(), models.CommandFilter{StudentID: 7, Limit: 20})
	require.NoError(t, err)
	require.Len(t, commands, 1)
	assert.Equal(t, models.CommandKindRemoveThemes, commands[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}
