package models

// GradeStatus marks whether a score is settled.
type GradeStatus string

const (
	GradeStatusDraft GradeStatus = "DRAFT"
	GradeStatusFinal GradeStatus = "FINAL"
)

// Score bounds for present grades. AbsentScore is the reserved sentinel the
// backend stores for an absent student.
const (
	MinScore    = 1.0
	MaxScore    = 10.0
	AbsentScore = 0.0
)

// Grade is a student's score on one evaluation.
type Grade struct {
	ID           ID          `json:"id"`
	StudentID    ID          `json:"studentId"`
	EvaluationID ID          `json:"evaluationId"`
	Score        *Number     `json:"score"`
	Status       GradeStatus `json:"status"`
	Notes        string      `json:"notes,omitempty"`
}

// Absent reports whether the grade carries the absent sentinel.
func (g Grade) Absent() bool {
	return g.Score != nil && g.Score.Float() == AbsentScore
}

// Counts reports whether the grade participates in averages. Only FINAL grades
// with a present, non-absent, in-range score count; unknown statuses do not.
func (g Grade) Counts() bool {
	if g.Status != GradeStatusFinal || g.Score == nil || g.Absent() {
		return false
	}
	score := g.Score.Float()
	return score >= MinScore && score <= MaxScore
}
