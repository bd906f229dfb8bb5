package models

// EvaluationStage partitions evaluations inside a period.
type EvaluationStage string

const (
	StageAdvance EvaluationStage = "ADVANCE"
	StageFinal   EvaluationStage = "FINAL"
)

// Valid reports whether the stage is known.
func (s EvaluationStage) Valid() bool {
	return s == StageAdvance || s == StageFinal
}

// Periods and stages making up the four-cell report.
var (
	ReportPeriods = []int{1, 2}
	ReportStages  = []EvaluationStage{StageAdvance, StageFinal}
)

// DefaultEvaluationWeight applies when an evaluation carries no weight.
const DefaultEvaluationWeight = 1.0

// Evaluation is a graded activity of a subject.
type Evaluation struct {
	ID        ID              `json:"id"`
	SubjectID ID              `json:"subjectId"`
	TopicID   ID              `json:"topicId,omitempty"`
	Title     string          `json:"title"`
	Date      string          `json:"date,omitempty"`
	Type      string          `json:"type,omitempty"`
	Weight    *Number         `json:"weight,omitempty"`
	Period    Number          `json:"period"`
	Stage     EvaluationStage `json:"stage"`
	Status    string          `json:"status,omitempty"`
}

// EffectiveWeight returns the weight, defaulting to 1.0 when unset or non-positive.
func (e Evaluation) EffectiveWeight() float64 {
	if e.Weight == nil || e.Weight.Float() <= 0 {
		return DefaultEvaluationWeight
	}
	return e.Weight.Float()
}

// InPartition reports whether the evaluation belongs to (period, stage).
func (e Evaluation) InPartition(period int, stage EvaluationStage) bool {
	return int(e.Period) == period && e.Stage == stage
}
