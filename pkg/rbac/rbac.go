// Package rbac holds the moderation permission table and the ban engine
// that evaluates moderation requests against it.
package rbac

import (
	"errors"
	"fmt"
	"slices"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

// RolePolicy describes what one role may do to users it outranks.
type RolePolicy struct {
	// Durations maps each scope the role may ban in to its allowed
	// durations, in picker order. A scope absent from the map is not
	// permitted.
	Durations map[model.BanScope][]model.Duration

	// CanEscalate allows flagging a user for review by EscalatesTo.
	CanEscalate bool
	EscalatesTo model.Role

	CanResolveReview bool
	CanManageRoles   bool
}

// PermissionTable maps roles to their moderation policy. Roles without an
// entry have no moderation rights.
type PermissionTable map[model.Role]RolePolicy

// DefaultTable returns the stock permission table.
func DefaultTable() PermissionTable {
	short := []model.Duration{model.Days(1), model.Days(7), model.Days(30), model.Days(90), model.Days(180)}
	return PermissionTable{
		model.RoleStudent: {},
		model.RoleModerator: {
			Durations: map[model.BanScope][]model.Duration{
				model.ScopeCommunity: short,
			},
			CanEscalate: true,
			EscalatesTo: model.RoleStaff,
		},
		model.RoleStaff: {
			Durations: map[model.BanScope][]model.Duration{
				model.ScopeCommunity: {model.Days(1), model.Days(7), model.Days(30), model.Days(180), model.Days(365)},
				model.ScopeApp:       short,
			},
			CanEscalate: true,
			EscalatesTo: model.RoleAdmin,
		},
		model.RoleAdmin: {
			Durations: map[model.BanScope][]model.Duration{
				model.ScopeCommunity: {model.Days(1), model.Days(7), model.Days(30), model.Days(365), model.Permanent},
				model.ScopeApp:       {model.Days(1), model.Days(7), model.Days(30), model.Days(365), model.Permanent},
			},
			CanResolveReview: true,
			CanManageRoles:   true,
		},
	}
}

// Policy returns the policy for role, or the empty policy.
func (t PermissionTable) Policy(role model.Role) RolePolicy {
	return t[role]
}

// Scopes returns the scopes role may ban in, in Community, App order.
func (t PermissionTable) Scopes(role model.Role) []model.BanScope {
	p := t[role]
	var scopes []model.BanScope
	for _, s := range model.Scopes() {
		if _, ok := p.Durations[s]; ok {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

// Durations returns the durations role may impose in scope.
func (t PermissionTable) Durations(role model.Role, scope model.BanScope) []model.Duration {
	return slices.Clone(t[role].Durations[scope])
}

// AllowsScope reports whether role may ban in scope.
func (t PermissionTable) AllowsScope(role model.Role, scope model.BanScope) bool {
	_, ok := t[role].Durations[scope]
	return ok
}

// AllowsDuration reports whether role may impose d in scope.
func (t PermissionTable) AllowsDuration(role model.Role, scope model.BanScope, d model.Duration) bool {
	return slices.Contains(t[role].Durations[scope], d)
}

// CanEscalate reports whether role may flag users for review.
func (t PermissionTable) CanEscalate(role model.Role) bool {
	return t[role].CanEscalate
}

// EscalatesTo returns the role an escalation from role is handed to.
func (t PermissionTable) EscalatesTo(role model.Role) (model.Role, bool) {
	p := t[role]
	if !p.CanEscalate {
		return 0, false
	}
	return p.EscalatesTo, true
}

// Validate checks the table's structural invariants.
func (t PermissionTable) Validate() error {
	var errs []error
	for role, p := range t {
		if !role.Valid() {
			errs = append(errs, fmt.Errorf("rbac: table: %w: %d", model.ErrInvalidRole, int(role)))
			continue
		}
		for scope, durations := range p.Durations {
			if !scope.Valid() {
				errs = append(errs, fmt.Errorf("rbac: table: %s: %w", role, model.ErrInvalidScope))
			}
			for _, d := range durations {
				if !d.Valid() {
					errs = append(errs, fmt.Errorf("rbac: table: %s/%s: %w", role, scope, model.ErrInvalidDuration))
				}
			}
		}
		if p.CanEscalate {
			switch {
			case role == model.RoleAdmin:
				errs = append(errs, errors.New("rbac: table: admin cannot escalate, there is no higher authority"))
			case !p.EscalatesTo.Outranks(role):
				errs = append(errs, fmt.Errorf("rbac: table: %s must escalate to a higher role, got %s", role, p.EscalatesTo))
			}
		}
	}
	return errors.Join(errs...)
}
