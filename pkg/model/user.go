package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength  = 64
	MaxEmailLength = 254
)

var ErrNameEmpty = errors.New("name must not be empty")
var ErrNameTooLong = fmt.Errorf("name must not exceed %d characters", MaxNameLength)
var ErrEmailInvalid = errors.New("email must be of the form local@domain")

// UserRecord is a moderated user as seen by the ban engine.
// Version is owned by the store and bumped on every replace.
type UserRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Role           Role      `json:"role"`
	CommunityBan   BanState  `json:"community_ban"`
	AppBan         BanState  `json:"app_ban"`
	RequiresReview bool      `json:"requires_review"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ban returns the ban state of the given scope.
func (u UserRecord) Ban(scope BanScope) BanState {
	if scope == ScopeApp {
		return u.AppBan
	}
	return u.CommunityBan
}

// WithBan returns a copy of u with the given scope's state replaced.
// u itself is not modified.
func (u UserRecord) WithBan(scope BanScope, state BanState) UserRecord {
	if state.ExpiresAt != nil {
		t := *state.ExpiresAt
		state.ExpiresAt = &t
	}
	switch scope {
	case ScopeCommunity:
		u.CommunityBan = state
	case ScopeApp:
		u.AppBan = state
	}
	return u
}

// Validate checks name, email, role and both ban states.
func (u UserRecord) Validate() error {
	if err := ValidateName(u.Name); err != nil {
		return err
	}
	if err := ValidateEmail(u.Email); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return ErrInvalidRole
	}
	for _, scope := range Scopes() {
		if err := u.Ban(scope).Validate(); err != nil {
			return fmt.Errorf("%s ban: %w", scope, err)
		}
	}
	return nil
}

// ValidateName checks that a display name is non-blank and at most
// MaxNameLength characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateEmail performs a shallow syntax check: one @, non-empty local part,
// a dot in the domain and no whitespace.
func ValidateEmail(email string) error {
	if len(email) == 0 || len(email) > MaxEmailLength || strings.ContainsAny(email, " \t\r\n") {
		return ErrEmailInvalid
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return ErrEmailInvalid
	}
	if i := strings.LastIndex(domain, "."); i <= 0 || i == len(domain)-1 {
		return ErrEmailInvalid
	}
	return nil
}
