package attendance

import "time"

// Role is the capacity under which a session is recorded.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTutor
}

// User is a person registered with the center. Records are read-mostly:
// the controller never writes them, only administrative provisioning does.
type User struct {
	UserID        string     `json:"user_id"`
	FirstName     string     `json:"first_name"`
	LastName      string     `json:"last_name"`
	PersonalEmail string     `json:"personal_email,omitempty"`
	Major         string     `json:"major,omitempty"`
	DateJoined    time.Time  `json:"date_joined"`
	DateLeft      *time.Time `json:"date_left,omitempty"`
	EducationPlan bool       `json:"education_plan"`
	IsStudent     bool       `json:"is_student"`
	IsTutor       bool       `json:"is_tutor"`
}

// ActiveOn reports whether the user is eligible on the given date.
// DateJoined and DateLeft bound eligibility inclusively.
func (u User) ActiveOn(day time.Time) bool {
	day = truncateToDay(day)
	if day.Before(truncateToDay(u.DateJoined)) {
		return false
	}
	if u.DateLeft != nil && day.After(truncateToDay(*u.DateLeft)) {
		return false
	}
	return true
}

// EligibleRoles returns the roles the user may sign in under today.
func (u User) EligibleRoles() []Role {
	var roles []Role
	if u.IsStudent {
		roles = append(roles, RoleStudent)
	}
	if u.IsTutor {
		roles = append(roles, RoleTutor)
	}
	return roles
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
