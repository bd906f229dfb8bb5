package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/models"
)

type gradeServiceMock struct {
	query   models.AverageQuery
	subject *models.ID
	average *float64
}

func (m *gradeServiceMock) Average(ctx context.Context, query models.AverageQuery) (*models.AverageResult, error) {
	m.query = query
	return &models.AverageResult{StudentID: query.StudentID, Period: query.Period, Stage: query.Stage, Average: m.average}, nil
}

func (m *gradeServiceMock) Report(ctx context.Context, studentID models.ID, subjectID *models.ID) (*models.GradeReport, error) {
	m.subject = subjectID
	return &models.GradeReport{StudentID: studentID, SubjectID: subjectID, Cached: true}, nil
}

func TestGradeHandlerAverage(t *testing.T) {
	avg := 6.67
	svc := &gradeServiceMock{average: &avg}
	handler := NewGradeHandler(svc, nil)

	c, w := newTestContext(http.MethodGet, "/students/1/average?period=1&stage=ADVANCE&subjectId=10", nil, "1")
	handler.Average(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.ID(1), svc.query.StudentID)
	assert.Equal(t, models.StageAdvance, svc.query.Stage)
	require.NotNil(t, svc.query.SubjectID)
	assert.Equal(t, models.ID(10), *svc.query.SubjectID)

	var env struct {
		Data models.AverageResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Data.Average)
	assert.Equal(t, 6.67, *env.Data.Average)
}

func TestGradeHandlerAverageWithoutDataIsNull(t *testing.T) {
	handler := NewGradeHandler(&gradeServiceMock{}, nil)

	c, w := newTestContext(http.MethodGet, "/students/1/average?period=2&stage=FINAL", nil, "1")
	handler.Average(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"average":null`)
}

func TestGradeHandlerAverageValidation(t *testing.T) {
	handler := NewGradeHandler(&gradeServiceMock{}, nil)

	for _, target := range []string{
		"/students/1/average?period=3&stage=ADVANCE",
		"/students/1/average?period=1&stage=MIDTERM",
		"/students/1/average?stage=FINAL",
		"/students/1/average?period=one&stage=FINAL",
		"/students/1/average?period=1&stage=FINAL&subjectId=-4",
	} {
		c, w := newTestContext(http.MethodGet, target, nil, "1")
		handler.Average(c)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestGradeHandlerReport(t *testing.T) {
	svc := &gradeServiceMock{}
	handler := NewGradeHandler(svc, nil)

	c, w := newTestContext(http.MethodGet, "/students/1/report?subjectId=20", nil, "1")
	handler.Report(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.subject)
	assert.Equal(t, models.ID(20), *svc.subject)
	assert.Contains(t, w.Body.String(), `"meta":{"cached":true}`)
}
