package models

import "time"

// SnapshotData holds the raw collections fetched from the persistence service.
type SnapshotData struct {
	Students         []Student
	Subjects         []Subject
	Enrollments      []Enrollment
	Topics           []Topic
	ThemeAssignments []ThemeAssignment
	RemedialRecords  []RemedialRecord
	Evaluations      []Evaluation
	Grades           []Grade
}

// Snapshot is an immutable, indexed view of one wholesale reload. It is never
// patched; mutations are followed by a fresh Snapshot.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	SnapshotData

	students     map[ID]Student
	subjects     map[ID]Subject
	topics       map[ID]Topic
	evaluations  map[ID]Evaluation
	enrollments  map[ID][]Enrollment
	topicsBySubj map[ID][]Topic
	assignments  map[ID][]ThemeAssignment
	remedials    map[ID][]RemedialRecord
	gradesByStud map[ID][]Grade
}

// NewSnapshot indexes the collections.
func NewSnapshot(version int64, loadedAt time.Time, data SnapshotData) *Snapshot {
	s := &Snapshot{
		Version:      version,
		LoadedAt:     loadedAt,
		SnapshotData: data,
		students:     make(map[ID]Student, len(data.Students)),
		subjects:     make(map[ID]Subject, len(data.Subjects)),
		topics:       make(map[ID]Topic, len(data.Topics)),
		evaluations:  make(map[ID]Evaluation, len(data.Evaluations)),
		enrollments:  make(map[ID][]Enrollment),
		topicsBySubj: make(map[ID][]Topic),
		assignments:  make(map[ID][]ThemeAssignment),
		remedials:    make(map[ID][]RemedialRecord),
		gradesByStud: make(map[ID][]Grade),
	}
	for _, st := range data.Students {
		s.students[st.ID] = st
	}
	for _, sub := range data.Subjects {
		s.subjects[sub.ID] = sub
	}
	for _, t := range data.Topics {
		s.topics[t.ID] = t
		s.topicsBySubj[t.SubjectID] = append(s.topicsBySubj[t.SubjectID], t)
	}
	for _, ev := range data.Evaluations {
		s.evaluations[ev.ID] = ev
	}
	for _, e := range data.Enrollments {
		s.enrollments[e.StudentID] = append(s.enrollments[e.StudentID], e)
	}
	for _, a := range data.ThemeAssignments {
		s.assignments[a.StudentID] = append(s.assignments[a.StudentID], a)
	}
	for _, r := range data.RemedialRecords {
		s.remedials[r.StudentID] = append(s.remedials[r.StudentID], r)
	}
	for _, g := range data.Grades {
		s.gradesByStud[g.StudentID] = append(s.gradesByStud[g.StudentID], g)
	}
	return s
}

// Student looks a student up by id.
func (s *Snapshot) Student(id ID) (Student, bool) {
	st, ok := s.students[id]
	return st, ok
}

// Subject looks a subject up by id.
func (s *Snapshot) Subject(id ID) (Subject, bool) {
	sub, ok := s.subjects[id]
	return sub, ok
}

// Topic looks a topic up by id.
func (s *Snapshot) Topic(id ID) (Topic, bool) {
	t, ok := s.topics[id]
	return t, ok
}

// Evaluation looks an evaluation up by id.
func (s *Snapshot) Evaluation(id ID) (Evaluation, bool) {
	ev, ok := s.evaluations[id]
	return ev, ok
}

// EnrollmentsFor returns the student's enrollments.
func (s *Snapshot) EnrollmentsFor(studentID ID) []Enrollment {
	return s.enrollments[studentID]
}

// EnrolledSubjectIDs returns the distinct subjects the student is enrolled in.
func (s *Snapshot) EnrolledSubjectIDs(studentID ID) []ID {
	enrollments := s.enrollments[studentID]
	ids := make([]ID, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.SubjectID)
	}
	return UniqueIDs(ids)
}

// IsEnrolled reports whether the student is enrolled in the subject.
func (s *Snapshot) IsEnrolled(studentID, subjectID ID) bool {
	for _, e := range s.enrollments[studentID] {
		if e.SubjectID == subjectID {
			return true
		}
	}
	return false
}

// TopicsForSubject returns the topics owned by a subject.
func (s *Snapshot) TopicsForSubject(subjectID ID) []Topic {
	return s.topicsBySubj[subjectID]
}

// AssignmentsFor returns every theme assignment of the student.
func (s *Snapshot) AssignmentsFor(studentID ID) []ThemeAssignment {
	return s.assignments[studentID]
}

// AssignmentFor returns the assignment for (student, topic) if present.
func (s *Snapshot) AssignmentFor(studentID, topicID ID) (ThemeAssignment, bool) {
	for _, a := range s.assignments[studentID] {
		if a.TopicID == topicID {
			return a, true
		}
	}
	return ThemeAssignment{}, false
}

// AssignedTopicIDs returns the topics currently assigned to the student.
func (s *Snapshot) AssignedTopicIDs(studentID ID) []ID {
	assignments := s.assignments[studentID]
	ids := make([]ID, 0, len(assignments))
	for _, a := range assignments {
		ids = append(ids, a.TopicID)
	}
	return UniqueIDs(ids)
}

// OutstandingAssignments returns the PENDING or IN_PROGRESS assignments.
func (s *Snapshot) OutstandingAssignments(studentID ID) []ThemeAssignment {
	var out []ThemeAssignment
	for _, a := range s.assignments[studentID] {
		if a.Outstanding() {
			out = append(out, a)
		}
	}
	return out
}

// RemedialRecordsFor returns remedial records matching (student, subject, topic).
func (s *Snapshot) RemedialRecordsFor(studentID, subjectID, topicID ID) []RemedialRecord {
	var out []RemedialRecord
	for _, r := range s.remedials[studentID] {
		if r.TopicID == topicID && (r.SubjectID == subjectID || !r.SubjectID.Valid()) {
			out = append(out, r)
		}
	}
	return out
}

// GradesFor returns every grade of the student.
func (s *Snapshot) GradesFor(studentID ID) []Grade {
	return s.gradesByStud[studentID]
}

// Info summarises the snapshot for API consumers.
func (s *Snapshot) Info() SnapshotInfo {
	return SnapshotInfo{
		Version:  s.Version,
		LoadedAt: s.LoadedAt,
		Counts: map[string]int{
			"students":         len(s.Students),
			"subjects":         len(s.Subjects),
			"enrollments":      len(s.Enrollments),
			"topics":           len(s.Topics),
			"themeAssignments": len(s.ThemeAssignments),
			"remedialRecords":  len(s.RemedialRecords),
			"evaluations":      len(s.Evaluations),
			"grades":           len(s.Grades),
		},
	}
}

// SnapshotInfo is the metadata exposed on /snapshot.
type SnapshotInfo struct {
	Version  int64          `json:"version"`
	LoadedAt time.Time      `json:"loadedAt"`
	Stale    bool           `json:"stale"`
	Counts   map[string]int `json:"counts"`
}
