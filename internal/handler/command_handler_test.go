package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/internal/service"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type commandJournalMock struct {
	filter   models.CommandFilter
	commands map[string]models.Command
	retried  string
	listErr  error
}

func (m *commandJournalMock) List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error) {
	m.filter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Command, 0, len(m.commands))
	for _, cmd := range m.commands {
		out = append(out, cmd)
	}
	return out, nil
}

func (m *commandJournalMock) Get(ctx context.Context, id string) (*models.Command, error) {
	cmd, ok := m.commands[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "command not found")
	}
	return &cmd, nil
}

func (m *commandJournalMock) Retry(ctx context.Context, actor models.Actor, id string) (*models.CommandSummary, error) {
	m.retried = id
	return &models.CommandSummary{CommandID: "retry-" + id, Kind: models.CommandKindRetry}, nil
}

func TestCommandHandlerList(t *testing.T) {
	journal := &commandJournalMock{commands: map[string]models.Command{"c1": {ID: "c1", StudentID: 7}}}
	handler := NewCommandHandler(journal, nil)

	c, w := newTestContext(http.MethodGet, "/commands?studentId=7&limit=20", nil, "")
	handler.List(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CommandFilter{StudentID: 7, Limit: 20}, journal.filter)
	assert.Contains(t, w.Body.String(), `"count":1`)

	c, w = newTestContext(http.MethodGet, "/commands?limit=5000", nil, "")
	handler.List(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommandHandlerListWhenJournalDisabled(t *testing.T) {
	handler := NewCommandHandler(&commandJournalMock{listErr: service.ErrJournalDisabled}, nil)

	c, w := newTestContext(http.MethodGet, "/commands", nil, "")
	handler.List(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCommandHandlerGetAndRetry(t *testing.T) {
	journal := &commandJournalMock{commands: map[string]models.Command{"c1": {ID: "c1"}}}
	handler := NewCommandHandler(journal, nil)

	c, w := newTestContext(http.MethodGet, "/commands/c1", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Get(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newTestContext(http.MethodGet, "/commands/nope", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	handler.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newTestContext(http.MethodPost, "/commands/c1/retry", nil, "")
	c.Params = gin.Params{{Key: "id", Value: "c1"}}
	handler.Retry(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", journal.retried)
}
