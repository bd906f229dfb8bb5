package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type commandJournal interface {
	List(ctx context.Context, filter models.CommandFilter) ([]models.Command, error)
	Get(ctx context.Context, id string) (*models.Command, error)
	Retry(ctx context.Context, actor models.Actor, id string) (*models.CommandSummary, error)
}

// CommandHandler exposes the reconciliation command journal.
type CommandHandler struct {
	commands  commandJournal
	validator *validator.Validate
}

// NewCommandHandler constructs CommandHandler.
func NewCommandHandler(commands commandJournal, validate *validator.Validate) *CommandHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CommandHandler{commands: commands, validator: validate}
}

// List godoc
// @Summary List journaled commands
// @Tags Commands
// @Produce json
// @Param studentId query int false "Filter by student"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /commands [get]
func (h *CommandHandler) List(c *gin.Context) {
	var q dto.CommandListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validationError(err, "invalid command query"))
		return
	}
	if err := h.validator.Struct(q); err != nil {
		response.Error(c, validationError(err, "limit must be between 1 and 200"))
		return
	}
	studentID, err := optionalIDQuery(c, "studentId")
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.CommandFilter{Limit: q.Limit}
	if studentID != nil {
		filter.StudentID = *studentID
	}
	commands, err := h.commands.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, commands, map[string]interface{}{"count": len(commands)})
}

// Get godoc
// @Summary Get a journaled command
// @Tags Commands
// @Produce json
// @Param id path string true "Command ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /commands/{id} [get]
func (h *CommandHandler) Get(c *gin.Context) {
	cmd, err := h.commands.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cmd)
}

// Retry godoc
// @Summary Retry the failed operations of a command
// @Tags Commands
// @Produce json
// @Param id path string true "Command ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /commands/{id}/retry [post]
func (h *CommandHandler) Retry(c *gin.Context) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.commands.Retry(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
