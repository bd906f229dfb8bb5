package models

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Enrollment relates a student to a subject. It is replaced as a unit whenever
// the student's subject selection changes.
type Enrollment struct {
	ID        ID               `json:"id,omitempty"`
	StudentID ID               `json:"studentId"`
	SubjectID ID               `json:"subjectId"`
	Status    EnrollmentStatus `json:"status"`
}

// EnrollmentOutcome is one item of the batch POST /enrollment response.
type EnrollmentOutcome struct {
	ID        ID     `json:"id,omitempty"`
	StudentID ID     `json:"studentId"`
	SubjectID ID     `json:"subjectId"`
	Success   Flag   `json:"success"`
	Error     string `json:"error,omitempty"`
}
