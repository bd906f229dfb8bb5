package service

import (
	"context"
	"math"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-progress-api/internal/models"
	appErrors "github.com/noah-isme/sma-progress-api/pkg/errors"
)

type snapshotReader interface {
	Current(ctx context.Context) (*models.Snapshot, error)
}

// averageInput mirrors AverageQuery for struct validation.
type averageInput struct {
	StudentID models.ID              `validate:"gt=0"`
	Period    int                    `validate:"min=1,max=2"`
	Stage     models.EvaluationStage `validate:"oneof=ADVANCE FINAL"`
}

// WeightedAverage computes Σ(score × weight) / Σ(weight) over the student's
// counting grades whose evaluation falls in the requested (period, stage) and,
// when set, subject. It returns nil when no grade qualifies, which is distinct
// from an average of zero. The count of grades used is returned alongside.
func WeightedAverage(snap *models.Snapshot, query models.AverageQuery) (*float64, int) {
	var sum, weights float64
	var count int
	for _, grade := range snap.GradesFor(query.StudentID) {
		if !grade.Counts() {
			continue
		}
		evaluation, ok := snap.Evaluation(grade.EvaluationID)
		if !ok || !evaluation.InPartition(query.Period, query.Stage) {
			continue
		}
		if query.SubjectID != nil && evaluation.SubjectID != *query.SubjectID {
			continue
		}
		weight := evaluation.EffectiveWeight()
		sum += grade.Score.Float() * weight
		weights += weight
		count++
	}
	if count == 0 || weights == 0 {
		return nil, 0
	}
	avg := roundScore(sum / weights)
	return &avg, count
}

func roundScore(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// GradeService exposes the grade aggregation engine over the current snapshot.
type GradeService struct {
	snapshots snapshotReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs a GradeService.
func NewGradeService(snapshots snapshotReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &GradeService{snapshots: snapshots, cache: cache, validator: validate, logger: logger}
}

// Average computes one (student, period, stage) cell.
func (s *GradeService) Average(ctx context.Context, query models.AverageQuery) (*models.AverageResult, error) {
	if err := s.validator.Struct(averageInput{StudentID: query.StudentID, Period: query.Period, Stage: query.Stage}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid average query")
	}
	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkScope(snap, query.StudentID, query.SubjectID); err != nil {
		return nil, err
	}
	result := cell(snap, query)
	return &result, nil
}

// Report computes the four independent cells (two periods by two stages).
// Results are cached per snapshot version, so a reload never serves an old report.
func (s *GradeService) Report(ctx context.Context, studentID models.ID, subjectID *models.ID) (*models.GradeReport, error) {
	if !studentID.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid student id")
	}
	snap, err := s.snapshots.Current(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkScope(snap, studentID, subjectID); err != nil {
		return nil, err
	}

	key := ReportKey(snap.Version, studentID, subjectID)
	var cached models.GradeReport
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		cached.Cached = true
		return &cached, nil
	}

	report := &models.GradeReport{
		StudentID:       studentID,
		SubjectID:       subjectID,
		Cells:           make([]models.AverageResult, 0, len(models.ReportPeriods)*len(models.ReportStages)),
		SnapshotVersion: snap.Version,
	}
	for _, period := range models.ReportPeriods {
		for _, stage := range models.ReportStages {
			report.Cells = append(report.Cells, cell(snap, models.AverageQuery{
				StudentID: studentID,
				Period:    period,
				Stage:     stage,
				SubjectID: subjectID,
			}))
		}
	}

	if err := s.cache.Set(ctx, key, report, 0); err != nil {
		s.logger.Debug("report not cached", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}

func cell(snap *models.Snapshot, query models.AverageQuery) models.AverageResult {
	avg, count := WeightedAverage(snap, query)
	return models.AverageResult{
		StudentID:       query.StudentID,
		SubjectID:       query.SubjectID,
		Period:          query.Period,
		Stage:           query.Stage,
		Average:         avg,
		GradeCount:      count,
		SnapshotVersion: snap.Version,
	}
}

func checkScope(snap *models.Snapshot, studentID models.ID, subjectID *models.ID) error {
	if _, ok := snap.Student(studentID); !ok {
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	}
	if subjectID != nil {
		if _, ok := snap.Subject(*subjectID); !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
	}
	return nil
}
