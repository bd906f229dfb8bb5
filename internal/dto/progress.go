package dto

import "github.com/noah-isme/sma-progress-api/internal/models"

// EnrollmentRequest replaces a student's enrollments. TopicIDs, when present,
// curates the assignments instead of deriving every topic of the subjects.
type EnrollmentRequest struct {
	SubjectIDs []models.ID `json:"subjectIds" validate:"dive,gt=0"`
	TopicIDs   []models.ID `json:"topicIds,omitempty" validate:"omitempty,dive,gt=0"`
}

// IntensificationRequest switches intensification on or off.
type IntensificationRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// StatusRequest sets an explicit lifecycle status.
type StatusRequest struct {
	Status models.StudentStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE INTENSIFICATION"`
}

// ThemesRequest lists topic ids to save or remove.
type ThemesRequest struct {
	TopicIDs []models.ID `json:"topicIds" validate:"dive,gt=0"`
}

// AverageQuery binds the weighted average query string.
type AverageQuery struct {
	Period int    `form:"period" validate:"required,min=1,max=2"`
	Stage  string `form:"stage" validate:"required,oneof=ADVANCE FINAL"`
}

// CommandListQuery binds the journal listing query string. studentId is
// parsed separately as an ID.
type CommandListQuery struct {
	Limit int `form:"limit" validate:"omitempty,min=1,max=200"`
}
