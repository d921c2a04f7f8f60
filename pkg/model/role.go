package model

import (
	"errors"
	"strings"
)

var ErrInvalidRole = errors.New("invalid role: must be student, moderator, staff, or admin")

// Role represents a user's authority level. Values are ordered; a higher
// value carries strictly more authority.
type Role int

const (
	RoleStudent   Role = iota + 1 // Default role, no moderation rights
	RoleModerator                 // Community bans, escalates to staff
	RoleStaff                     // Community and app bans, escalates to admin
	RoleAdmin                     // Permanent bans, role management, review resolution
)

// Roles lists every valid role from least to most authority.
func Roles() []Role {
	return []Role{RoleStudent, RoleModerator, RoleStaff, RoleAdmin}
}

func (r Role) String() string {
	switch r {
	case RoleStudent:
		return "student"
	case RoleModerator:
		return "moderator"
	case RoleStaff:
		return "staff"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// Valid returns true if the role is one of the four recognised values.
func (r Role) Valid() bool {
	return r >= RoleStudent && r <= RoleAdmin
}

// Level returns the position of the role in the authority order, or 0 for an
// invalid role.
func (r Role) Level() int {
	if !r.Valid() {
		return 0
	}
	return int(r)
}

// Outranks reports whether r has strictly more authority than other.
// An invalid role outranks nothing.
func (r Role) Outranks(other Role) bool {
	return r.Level() > other.Level()
}

// LookupRole converts a role name to a Role, reporting whether the name was
// recognised. Matching is case-insensitive.
func LookupRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "student":
		return RoleStudent, true
	case "moderator":
		return RoleModerator, true
	case "staff":
		return RoleStaff, true
	case "admin":
		return RoleAdmin, true
	default:
		return 0, false
	}
}

// ParseRole converts a string to a Role. Unknown names map to RoleStudent.
func ParseRole(s string) Role {
	if r, ok := LookupRole(s); ok {
		return r
	}
	return RoleStudent
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, ErrInvalidRole
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unlike ParseRole it
// rejects unknown names.
func (r *Role) UnmarshalText(text []byte) error {
	role, ok := LookupRole(string(text))
	if !ok {
		return ErrInvalidRole
	}
	*r = role
	return nil
}
