package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload of tokens issued to teachers by the
// academic platform. TeacherID links the caller to the subjects it owns.
type JWTClaims struct {
	UserID    string   `json:"user_id"`
	Role      UserRole `json:"role"`
	Email     string   `json:"email"`
	FullName  string   `json:"full_name"`
	TeacherID ID       `json:"teacher_id,omitempty"`
	jwt.RegisteredClaims
}

// Actor is the authenticated caller as seen by services.
type Actor struct {
	UserID    string
	Role      UserRole
	TeacherID ID
}

// ActorFromClaims converts validated claims into an Actor.
func ActorFromClaims(claims *JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role, TeacherID: claims.TeacherID}
}

// SeesAllSubjects reports whether the actor bypasses teacher ownership checks.
func (a Actor) SeesAllSubjects() bool {
	return a.Role == RoleAdmin || a.Role == RoleSuperAdmin
}

// CanSee reports whether the subject is visible to the actor.
func (a Actor) CanSee(subject Subject) bool {
	if a.SeesAllSubjects() {
		return true
	}
	return a.TeacherID.Valid() && subject.TeacherID == a.TeacherID
}
