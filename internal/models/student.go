package models

// StudentStatus is the academic status shown on the student record.
type StudentStatus string

const (
	StudentStatusActive          StudentStatus = "ACTIVE"
	StudentStatusInactive        StudentStatus = "INACTIVE"
	StudentStatusIntensification StudentStatus = "INTENSIFICATION"
)

// Valid reports whether the status is one of the known values.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusActive, StudentStatusInactive, StudentStatusIntensification:
		return true
	}
	return false
}

// Student represents a learner as served by the persistence service.
type Student struct {
	ID          ID            `json:"id"`
	Name        string        `json:"name"`
	LastName    string        `json:"lastName,omitempty"`
	Email       string        `json:"email,omitempty"`
	Status      StudentStatus `json:"status"`
	Intensifies Flag          `json:"intensifies"`
}

// EffectiveStatus derives the status from the intensification flag, which is
// authoritative: INTENSIFICATION is only a view of Intensifies.
func (s Student) EffectiveStatus() StudentStatus {
	if s.Intensifies {
		return StudentStatusIntensification
	}
	switch s.Status {
	case StudentStatusInactive:
		return StudentStatusInactive
	default:
		return StudentStatusActive
	}
}

// FullName joins name parts for log and response output.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.Name
	}
	return s.Name + " " + s.LastName
}

// StudentStatusUpdate is the PUT /student/{id} payload.
type StudentStatusUpdate struct {
	Status      StudentStatus `json:"status"`
	Intensifies bool          `json:"intensifies"`
}
