package models

// AssignmentStatus tracks a student's progress on an assigned topic.
type AssignmentStatus string

const (
	AssignmentStatusPending    AssignmentStatus = "PENDING"
	AssignmentStatusInProgress AssignmentStatus = "IN_PROGRESS"
	AssignmentStatusDone       AssignmentStatus = "DONE"
)

// ThemeAssignment records that a student must complete a topic. There is at
// most one per (student, topic).
type ThemeAssignment struct {
	ID        ID               `json:"id,omitempty"`
	StudentID ID               `json:"studentId"`
	TopicID   ID               `json:"topicId"`
	Status    AssignmentStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
}

// Outstanding reports whether the assignment still represents pending work.
func (a ThemeAssignment) Outstanding() bool {
	return a.Status == AssignmentStatusPending || a.Status == AssignmentStatusInProgress
}

// RemedialRecord is the remedial-tracking record paired with a theme
// assignment for the same (student, subject, topic). It lives in its own
// collection and must be located and removed independently.
type RemedialRecord struct {
	ID        ID               `json:"id"`
	StudentID ID               `json:"studentId"`
	SubjectID ID               `json:"subjectId"`
	TopicID   ID               `json:"topicId"`
	Status    AssignmentStatus `json:"status"`
	Notes     string           `json:"notes,omitempty"`
}
