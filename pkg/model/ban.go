package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidScope    = errors.New("invalid ban scope: must be community or app")
	ErrInvalidBanState = errors.New("invalid ban state: only a banned scope may carry an expiry")
)

// BanScope is the domain a ban applies to.
type BanScope int

const (
	ScopeCommunity BanScope = iota + 1 // forum and social features
	ScopeApp                           // entire application access
)

// Scopes lists every ban scope.
func Scopes() []BanScope {
	return []BanScope{ScopeCommunity, ScopeApp}
}

func (s BanScope) String() string {
	switch s {
	case ScopeCommunity:
		return "community"
	case ScopeApp:
		return "app"
	default:
		return "unknown"
	}
}

// Valid returns true for Community and App.
func (s BanScope) Valid() bool {
	return s == ScopeCommunity || s == ScopeApp
}

// ParseScope converts a scope name to a BanScope.
func ParseScope(s string) (BanScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "community":
		return ScopeCommunity, nil
	case "app":
		return ScopeApp, nil
	default:
		return 0, ErrInvalidScope
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s BanScope) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, ErrInvalidScope
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BanScope) UnmarshalText(text []byte) error {
	scope, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = scope
	return nil
}

// BanStatus is the state of a single scope for a single user.
type BanStatus int

const (
	StatusActive BanStatus = iota
	StatusBanned
)

func (s BanStatus) String() string {
	if s == StatusBanned {
		return "banned"
	}
	return "active"
}

// MarshalText implements encoding.TextMarshaler.
func (s BanStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *BanStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "active", "":
		*s = StatusActive
	case "banned":
		*s = StatusBanned
	default:
		return errors.New("invalid ban status: must be active or banned")
	}
	return nil
}

// BanState is the ban status of one scope. ExpiresAt is only meaningful
// while Status is StatusBanned; nil then means the ban is permanent.
type BanState struct {
	Status    BanStatus  `json:"status" yaml:"status"`
	ExpiresAt *time.Time `json:"expires_at" yaml:"expires_at,omitempty"`
}

// Active returns the unbanned state.
func Active() BanState {
	return BanState{Status: StatusActive}
}

// Banned returns a banned state expiring at expiresAt (nil = permanent).
func Banned(expiresAt *time.Time) BanState {
	return BanState{Status: StatusBanned, ExpiresAt: expiresAt}
}

// Validate checks that the status is known and that an active state has no
// expiry.
func (b BanState) Validate() error {
	switch {
	case b.Status != StatusActive && b.Status != StatusBanned:
		return fmt.Errorf("%w: status %d", ErrInvalidBanState, int(b.Status))
	case b.Status == StatusActive && b.ExpiresAt != nil:
		return ErrInvalidBanState
	}
	return nil
}

// IsBanned reports whether the status is banned, regardless of expiry.
func (b BanState) IsBanned() bool { return b.Status == StatusBanned }

// Permanent reports whether the state is a ban without expiry.
func (b BanState) Permanent() bool {
	return b.Status == StatusBanned && b.ExpiresAt == nil
}

// BannedAt reports whether the ban is in force at now.
func (b BanState) BannedAt(now time.Time) bool {
	if b.Status != StatusBanned {
		return false
	}
	return b.ExpiresAt == nil || now.Before(*b.ExpiresAt)
}

// Equal compares two states, treating expiry instants as equal across
// locations.
func (b BanState) Equal(o BanState) bool {
	if b.Status != o.Status {
		return false
	}
	if b.ExpiresAt == nil || o.ExpiresAt == nil {
		return b.ExpiresAt == nil && o.ExpiresAt == nil
	}
	return b.ExpiresAt.Equal(*o.ExpiresAt)
}
