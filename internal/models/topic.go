package models

// TopicStatus captures the lifecycle of a content item.
type TopicStatus string

const (
	TopicStatusPending    TopicStatus = "PENDING"
	TopicStatusInProgress TopicStatus = "IN_PROGRESS"
	TopicStatusDone       TopicStatus = "DONE"
	TopicStatusCanceled   TopicStatus = "CANCELED"
)

// Topic is a content item ("theme") of a subject.
type Topic struct {
	ID          ID          `json:"id"`
	SubjectID   ID          `json:"subjectId"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      TopicStatus `json:"status"`
}
