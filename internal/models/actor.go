package models

import "fmt"

// Actor identifies who performs an operation. It is taken from the caller's
// token; the zero value is the system itself.
type Actor struct {
	UserID uint   `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Label is the value stored in performed-by audit fields.
func (a Actor) Label() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.UserID != 0:
		return fmt.Sprintf("user:%d", a.UserID)
	default:
		return "system"
	}
}

// IsStaff reports whether the actor acts on behalf of the café.
func (a Actor) IsStaff() bool {
	return a.UserID == 0 || a.Role.IsStaff()
}
