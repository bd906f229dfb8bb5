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

type studentProgressService interface {
	EditState(ctx context.Context, actor models.Actor, studentID models.ID) (*models.ProgressView, error)
	ToggleIntensification(ctx context.Context, actor models.Actor, studentID models.ID, enabled bool) (*models.CommandSummary, error)
	SetStatus(ctx context.Context, actor models.Actor, studentID models.ID, status models.StudentStatus) (*models.CommandSummary, error)
}

// StudentHandler exposes the student edit form endpoints.
type StudentHandler struct {
	students  studentProgressService
	validator *validator.Validate
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentProgressService, validate *validator.Validate) *StudentHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &StudentHandler{students: students, validator: validate}
}

// Progress godoc
// @Summary Get the edit form state of a student
// @Tags Students
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/progress [get]
func (h *StudentHandler) Progress(c *gin.Context) {
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
	view, err := h.students.EditState(c.Request.Context(), actor, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// ToggleIntensification godoc
// @Summary Switch intensification on or off
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.IntensificationRequest true "Toggle payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/intensification [put]
func (h *StudentHandler) ToggleIntensification(c *gin.Context) {
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
	var req dto.IntensificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid intensification payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, validationError(err, "enabled is required"))
		return
	}
	summary, err := h.students.ToggleIntensification(c.Request.Context(), actor, studentID, *req.Enabled)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}

// SetStatus godoc
// @Summary Set a student's status explicitly
// @Tags Students
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.StatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/status [put]
func (h *StudentHandler) SetStatus(c *gin.Context) {
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
	var req dto.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid status payload"))
		return
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, validationError(err, "status must be ACTIVE, INACTIVE or INTENSIFICATION"))
		return
	}
	summary, err := h.students.SetStatus(c.Request.Context(), actor, studentID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
