package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{entries: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = raw
	m.sets++
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	removed := 0
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func gradeData() models.SnapshotData {
	data := schoolData()
	data.Evaluations = []models.Evaluation{
		{ID: 1, SubjectID: 10, Title: "Quiz", Weight: models.NumberPtr(1), Period: 1, Stage: models.StageAdvance},
		{ID: 2, SubjectID: 10, Title: "Project", Weight: models.NumberPtr(2), Period: 1, Stage: models.StageAdvance},
		{ID: 3, SubjectID: 20, Title: "Lab", Period: 1, Stage: models.StageAdvance},
		{ID: 4, SubjectID: 10, Title: "Exam", Weight: models.NumberPtr(3), Period: 1, Stage: models.StageFinal},
		{ID: 5, SubjectID: 10, Title: "Oral", Weight: models.NumberPtr(1), Period: 2, Stage: models.StageAdvance},
	}
	data.Grades = []models.Grade{
		{ID: 1, StudentID: 1, EvaluationID: 1, Score: models.NumberPtr(8), Status: models.GradeStatusFinal},
		{ID: 2, StudentID: 1, EvaluationID: 2, Score: models.NumberPtr(6), Status: models.GradeStatusFinal},
		{ID: 3, StudentID: 1, EvaluationID: 4, Score: models.NumberPtr(models.AbsentScore), Status: models.GradeStatusFinal},
		{ID: 4, StudentID: 1, EvaluationID: 5, Score: models.NumberPtr(9), Status: models.GradeStatusDraft},
		{ID: 5, StudentID: 2, EvaluationID: 1, Score: models.NumberPtr(10), Status: models.GradeStatusFinal},
	}
	return data
}

func TestWeightedAverageUsesWeights(t *testing.T) {
	snap := models.NewSnapshot(1, fixedNow, gradeData())

	avg, count := WeightedAverage(snap, models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance})

	require.NotNil(t, avg)
	assert.Equal(t, 6.67, *avg)
	assert.Equal(t, 2, count)
}

func TestWeightedAverageExcludesAbsentGrades(t *testing.T) {
	data := gradeData()
	data.Grades = append(data.Grades,
		models.Grade{ID: 6, StudentID: 1, EvaluationID: 3, Score: models.NumberPtr(models.AbsentScore), Status: models.GradeStatusFinal},
		models.Grade{ID: 7, StudentID: 1, EvaluationID: 3, Score: nil, Status: models.GradeStatusFinal},
	)
	snap := models.NewSnapshot(1, fixedNow, data)

	avg, count := WeightedAverage(snap, models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance})

	require.NotNil(t, avg)
	assert.Equal(t, 6.67, *avg)
	assert.Equal(t, 2, count)
}

func TestWeightedAverageWithoutDataIsUndefined(t *testing.T) {
	snap := models.NewSnapshot(1, fixedNow, gradeData())

	tests := []struct {
		name  string
		query models.AverageQuery
	}{
		{name: "only absent grades", query: models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageFinal}},
		{name: "only drafts", query: models.AverageQuery{StudentID: 1, Period: 2, Stage: models.StageAdvance}},
		{name: "no grades at all", query: models.AverageQuery{StudentID: 1, Period: 2, Stage: models.StageFinal}},
		{name: "unknown student", query: models.AverageQuery{StudentID: 9, Period: 1, Stage: models.StageAdvance}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			avg, count := WeightedAverage(snap, tc.query)
			assert.Nil(t, avg)
			assert.Zero(t, count)
		})
	}
}

func TestWeightedAverageSubjectScopeAndDefaultWeight(t *testing.T) {
	data := gradeData()
	data.Grades = append(data.Grades, models.Grade{ID: 8, StudentID: 1, EvaluationID: 3, Score: models.NumberPtr(10), Status: models.GradeStatusFinal})
	snap := models.NewSnapshot(1, fixedNow, data)

	subject := models.ID(20)
	avg, count := WeightedAverage(snap, models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance, SubjectID: &subject})
	require.NotNil(t, avg)
	assert.Equal(t, 10.0, *avg)
	assert.Equal(t, 1, count)

	// (8×1 + 6×2 + 10×1) / 4
	avg, count = WeightedAverage(snap, models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance})
	require.NotNil(t, avg)
	assert.Equal(t, 7.5, *avg)
	assert.Equal(t, 3, count)
}

func TestGradeServiceAverage(t *testing.T) {
	h := newHarness(gradeData())

	result, err := h.grades.Average(context.Background(), models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance})
	require.NoError(t, err)
	require.NotNil(t, result.Average)
	assert.Equal(t, 6.67, *result.Average)
	assert.Equal(t, int64(1), result.SnapshotVersion)

	_, err = h.grades.Average(context.Background(), models.AverageQuery{StudentID: 1, Period: 3, Stage: models.StageAdvance})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = h.grades.Average(context.Background(), models.AverageQuery{StudentID: 1, Period: 1, Stage: "MIDTERM"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = h.grades.Average(context.Background(), models.AverageQuery{StudentID: 77, Period: 1, Stage: models.StageAdvance})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	missing := models.ID(999)
	_, err = h.grades.Average(context.Background(), models.AverageQuery{StudentID: 1, Period: 1, Stage: models.StageAdvance, SubjectID: &missing})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGradeServiceReportIsCachedPerSnapshotVersion(t *testing.T) {
	backend := newFakeBackend(gradeData())
	repo := newMemoryCacheRepo()
	cache := NewCacheService(repo, nil, time.Minute, nil, true)
	snapshots := NewSnapshotService(backend, 0, nil, cache, nil, nil)
	svc := NewGradeService(snapshots, cache, nil, nil)
	ctx := context.Background()

	report, err := svc.Report(ctx, 1, nil)
	require.NoError(t, err)
	assert.False(t, report.Cached)
	require.Len(t, report.Cells, 4)
	assert.Equal(t, 1, report.Cells[0].Period)
	assert.Equal(t, models.StageAdvance, report.Cells[0].Stage)
	require.NotNil(t, report.Cells[0].Average)
	assert.Equal(t, 6.67, *report.Cells[0].Average)
	assert.Nil(t, report.Cells[1].Average)
	assert.Nil(t, report.Cells[2].Average)
	assert.Nil(t, report.Cells[3].Average)

	again, err := svc.Report(ctx, 1, nil)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, report.Cells, again.Cells)
	assert.Equal(t, 1, repo.sets)

	_, err = snapshots.Reload(ctx)
	require.NoError(t, err)
	assert.Empty(t, repo.entries)

	fresh, err := svc.Report(ctx, 1, nil)
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, int64(2), fresh.SnapshotVersion)
}

func TestGradeServiceReportWithoutCache(t *testing.T) {
	h := newHarness(gradeData())
	subject := models.ID(10)

	report, err := h.grades.Report(context.Background(), 1, &subject)

	require.NoError(t, err)
	assert.False(t, report.Cached)
	require.Len(t, report.Cells, 4)
	assert.Equal(t, &subject, report.Cells[0].SubjectID)

	_, err = h.grades.Report(context.Background(), 0, nil)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
