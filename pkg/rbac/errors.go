package rbac

import (
	"errors"
	"fmt"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

// Authorization failure kinds. Engine errors wrap exactly one of these.
var (
	ErrInsufficientAuthority  = errors.New("insufficient authority")
	ErrScopeNotPermitted      = errors.New("scope not permitted")
	ErrDurationNotPermitted   = errors.New("duration not permitted")
	ErrEscalationNotPermitted = errors.New("escalation not permitted")
)

// Error is an authorization failure with the context it was decided in.
// Scope and Duration are zero when not relevant to the operation.
type Error struct {
	Kind     error
	Op       string
	Actor    model.Role
	Target   model.Role
	Scope    model.BanScope
	Duration model.Duration
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("rbac: %s: %v (actor=%s target=%s", e.Op, e.Kind, e.Actor, e.Target)
	if e.Scope.Valid() {
		msg += " scope=" + e.Scope.String()
	}
	if e.Duration.Valid() {
		msg += " duration=" + e.Duration.String()
	}
	return msg + ")"
}

func (e *Error) Unwrap() error { return e.Kind }

// KindOf returns the failure kind of err, or nil if err is not an
// authorization failure.
func KindOf(err error) error {
	for _, kind := range []error{ErrInsufficientAuthority, ErrScopeNotPermitted, ErrDurationNotPermitted, ErrEscalationNotPermitted} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
