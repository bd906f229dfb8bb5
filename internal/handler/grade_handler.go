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

type gradeService interface {
	Average(ctx context.Context, query models.AverageQuery) (*models.AverageResult, error)
	Report(ctx context.Context, studentID models.ID, subjectID *models.ID) (*models.GradeReport, error)
}

// GradeHandler exposes weighted average endpoints.
type GradeHandler struct {
	grades    gradeService
	validator *validator.Validate
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades gradeService, validate *validator.Validate) *GradeHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &GradeHandler{grades: grades, validator: validate}
}

// Average godoc
// @Summary Compute a weighted average
// @Description Returns a null average when no qualifying grades exist.
// @Tags Grades
// @Produce json
// @Param id path int true "Student ID"
// @Param period query int true "Report period (1 or 2)"
// @Param stage query string true "ADVANCE or FINAL"
// @Param subjectId query int false "Restrict to a subject"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/{id}/average [get]
func (h *GradeHandler) Average(c *gin.Context) {
	studentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var q dto.AverageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, validationError(err, "invalid average query"))
		return
	}
	if err := h.validator.Struct(q); err != nil {
		response.Error(c, validationError(err, "period must be 1 or 2 and stage ADVANCE or FINAL"))
		return
	}
	subjectID, err := optionalIDQuery(c, "subjectId")
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.grades.Average(c.Request.Context(), models.AverageQuery{
		StudentID: studentID,
		Period:    q.Period,
		Stage:     models.EvaluationStage(q.Stage),
		SubjectID: subjectID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Report godoc
// @Summary Four-cell grade report
// @Tags Grades
// @Produce json
// @Param id path int true "Student ID"
// @Param subjectId query int false "Restrict to a subject"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/report [get]
func (h *GradeHandler) Report(c *gin.Context) {
	studentID, err := idParam(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	subjectID, err := optionalIDQuery(c, "subjectId")
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := h.grades.Report(c.Request.Context(), studentID, subjectID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, map[string]interface{}{"cached": report.Cached})
}
