package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-progress-api/internal/dto"
	"github.com/noah-isme/sma-progress-api/internal/models"
	"github.com/noah-isme/sma-progress-api/pkg/response"
)

type enrollmentReconciler interface {
	Reconcile(ctx context.Context, actor models.Actor, studentID models.ID, subjectIDs, manualTopics []models.ID) (*models.CommandSummary, error)
}

// EnrollmentHandler replaces student enrollments.
type EnrollmentHandler struct {
	enrollment enrollmentReconciler
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollment enrollmentReconciler) *EnrollmentHandler {
	return &EnrollmentHandler{enrollment: enrollment}
}

// Reconcile godoc
// @Summary Replace a student's enrollments and derived theme assignments
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param payload body dto.EnrollmentRequest true "Selected subjects and optional curated topics"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/enrollments [put]
func (h *EnrollmentHandler) Reconcile(c *gin.Context) {
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
	var req dto.EnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, validationError(err, "invalid enrollment payload"))
		return
	}
	summary, err := h.enrollment.Reconcile(c.Request.Context(), actor, studentID, req.SubjectIDs, req.TopicIDs)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary)
}
