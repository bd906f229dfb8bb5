package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type themeAssignmentService interface {
	Save(ctx context.Context, actor models.Actor, studentID models.ID, topicIDs []models.ID) (*models.CommandSummary, error)
	Remove(ctx context.Context, actor models.Actor, studentID models.ID, topicIDs []models.ID) (*models.CommandSummary, error)
}

// ThemeHandler exposes intensification theme endpoints.
type ThemeHandler struct {
	themes themeAssignmentService
}

// NewThemeHandler constructs ThemeHandler.
func NewThemeHandler(themes themeAssignmentService) *ThemeHandler {
	return &ThemeHandler{themes: themes}
}

// Save godoc
// @Summary Save the checked themes of a student
// @Description Assigns checked topics and removes unchecked ones within the caller's subjects.
// @Tags Themes
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.ThemesRequest true "Checked topic ids"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/themes [put]
func (h *ThemeHandler) Save(c *gin.Context) {
	h.mutate(c, h.themes.Save)
}

// Remove godoc
// @Summary Remove theme assignments
// @Tags Themes
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.ThemesRequest true "Topic ids to remove"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/themes [delete]
func (h *ThemeHandler) Remove(c *gin.Context) {
	h.mutate(c, h.themes.Remove)
}

func (h *ThemeHandler) mutate(c *gin.Context, run func(context.Context, models.Actor, models.ID, []models.ID) (*models.CommandSummary, error)) {
	actor, err := actorFromContext(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	studentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.ThemesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid themes payload"))
		return
	}
	summary, err := run(c.Request.Context(), actor, studentID, req.TopicIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
