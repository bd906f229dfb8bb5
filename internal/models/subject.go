package models

// SubjectStatus captures the subject lifecycle.
type SubjectStatus string

const (
	SubjectStatusActive   SubjectStatus = "ACTIVE"
	SubjectStatusInactive SubjectStatus = "INACTIVE"
	SubjectStatusFinished SubjectStatus = "FINISHED"
)

// Subject represents an academic subject owned by a teacher.
type Subject struct {
	ID        ID            `json:"id"`
	Name      string        `json:"name"`
	Course    string        `json:"course,omitempty"`
	Division  string        `json:"division,omitempty"`
	TeacherID ID            `json:"teacherId"`
	Status    SubjectStatus `json:"status"`
}
