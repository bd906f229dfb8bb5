package models

// ProgressView is the initial state of the student edit form.
type ProgressView struct {
	Student          Student           `json:"student"`
	EffectiveStatus  StudentStatus     `json:"effectiveStatus"`
	ChecklistVisible bool              `json:"checklistVisible"`
	CanIntensify     bool              `json:"canIntensify"`
	Subjects         []SubjectProgress `json:"subjects"`
	Outstanding      int               `json:"outstanding"`
	SnapshotVersion  int64             `json:"snapshotVersion"`
}

// SubjectProgress groups the topics of one visible subject.
type SubjectProgress struct {
	Subject  Subject         `json:"subject"`
	Enrolled bool            `json:"enrolled"`
	Topics   []TopicProgress `json:"topics"`
}

// TopicProgress marks whether a topic is assigned to the student.
type TopicProgress struct {
	Topic            Topic            `json:"topic"`
	Assigned         bool             `json:"assigned"`
	AssignmentStatus AssignmentStatus `json:"assignmentStatus,omitempty"`
}

// AverageQuery selects one (student, period, stage) cell, optionally scoped
// to a subject.
type AverageQuery struct {
	StudentID ID
	Period    int
	Stage     EvaluationStage
	SubjectID *ID
}

// AverageResult is a computed weighted average. A nil Average means no
// qualifying grades exist, which is distinct from an average of zero.
type AverageResult struct {
	StudentID       ID              `json:"studentId"`
	SubjectID       *ID             `json:"subjectId,omitempty"`
	Period          int             `json:"period"`
	Stage           EvaluationStage `json:"stage"`
	Average         *float64        `json:"average"`
	GradeCount      int             `json:"gradeCount"`
	SnapshotVersion int64           `json:"snapshotVersion"`
}

// GradeReport holds the four independent cells of a student's report.
type GradeReport struct {
	StudentID       ID              `json:"studentId"`
	SubjectID       *ID             `json:"subjectId,omitempty"`
	Cells           []AverageResult `json:"cells"`
	SnapshotVersion int64           `json:"snapshotVersion"`
	Cached          bool            `json:"cached"`
}
