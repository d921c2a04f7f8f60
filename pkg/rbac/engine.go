package rbac

import (
	"time"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

// Engine decides moderation requests. It holds no mutable state: every
// result is a function of its inputs, the table and the clock.
type Engine struct {
	table PermissionTable
	now   func() time.Time
}

// NewEngine creates an Engine over the default table using time.Now().UTC().
func NewEngine() *Engine {
	return NewEngineWithClock(DefaultTable(), nil)
}

// NewEngineWithClock creates an Engine with a custom table and clock.
// A nil table means DefaultTable; a nil clock means time.Now().UTC().
func NewEngineWithClock(table PermissionTable, now func() time.Time) *Engine {
	if table == nil {
		table = DefaultTable()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{table: table, now: now}
}

// Table returns the permission table the engine evaluates against.
func (e *Engine) Table() PermissionTable { return e.table }

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// AuthorizeBan checks whether actor may ban target in scope for d and, if
// so, returns the resulting ban state. Checks run in order: authority,
// scope, duration.
func (e *Engine) AuthorizeBan(actor model.Role, target model.UserRecord, scope model.BanScope, d model.Duration) (model.BanState, error) {
	fail := func(kind error) (model.BanState, error) {
		return model.BanState{}, &Error{Kind: kind, Op: "ban", Actor: actor, Target: target.Role, Scope: scope, Duration: d}
	}
	if !actor.Outranks(target.Role) {
		return fail(ErrInsufficientAuthority)
	}
	if !e.table.AllowsScope(actor, scope) {
		return fail(ErrScopeNotPermitted)
	}
	if !d.Valid() || !e.table.AllowsDuration(actor, scope, d) {
		return fail(ErrDurationNotPermitted)
	}
	return model.Banned(d.ExpiresAt(e.now())), nil
}

// AuthorizeUnban checks whether actor may lift target's ban in scope. The
// authority and scope rules are those of AuthorizeBan.
func (e *Engine) AuthorizeUnban(actor model.Role, target model.UserRecord, scope model.BanScope) (model.BanState, error) {
	if !actor.Outranks(target.Role) {
		return model.BanState{}, &Error{Kind: ErrInsufficientAuthority, Op: "unban", Actor: actor, Target: target.Role, Scope: scope}
	}
	if !e.table.AllowsScope(actor, scope) {
		return model.BanState{}, &Error{Kind: ErrScopeNotPermitted, Op: "unban", Actor: actor, Target: target.Role, Scope: scope}
	}
	return model.Active(), nil
}

// ApplyBan returns target with scope's ban state replaced by state.
func (e *Engine) ApplyBan(target model.UserRecord, scope model.BanScope, state model.BanState) model.UserRecord {
	return target.WithBan(scope, state)
}

// Escalate flags target for review by a higher authority. Ban state is not
// touched. Escalating an already flagged user succeeds unchanged.
func (e *Engine) Escalate(actor model.Role, target model.UserRecord) (model.UserRecord, error) {
	if !e.table.CanEscalate(actor) {
		return model.UserRecord{}, &Error{Kind: ErrEscalationNotPermitted, Op: "escalate", Actor: actor, Target: target.Role}
	}
	target.RequiresReview = true
	return target, nil
}

// ResolveReview clears target's review flag.
func (e *Engine) ResolveReview(actor model.Role, target model.UserRecord) (model.UserRecord, error) {
	if !e.table.Policy(actor).CanResolveReview {
		return model.UserRecord{}, &Error{Kind: ErrInsufficientAuthority, Op: "resolve review", Actor: actor, Target: target.Role}
	}
	target.RequiresReview = false
	return target, nil
}

// ChangeRole sets target's role. The actor needs role-management rights and
// must outrank the target, so an admin cannot change another admin's role
// (including their own).
func (e *Engine) ChangeRole(actor model.Role, target model.UserRecord, newRole model.Role) (model.UserRecord, error) {
	if !e.table.Policy(actor).CanManageRoles || !actor.Outranks(target.Role) {
		return model.UserRecord{}, &Error{Kind: ErrInsufficientAuthority, Op: "change role", Actor: actor, Target: target.Role}
	}
	if !newRole.Valid() {
		return model.UserRecord{}, model.ErrInvalidRole
	}
	target.Role = newRole
	return target, nil
}

// Expire reverts every scope whose ban has run out to active. It reports
// whether any scope changed. Permanent bans never expire.
func (e *Engine) Expire(target model.UserRecord) (model.UserRecord, bool) {
	now := e.now()
	changed := false
	for _, scope := range model.Scopes() {
		st := target.Ban(scope)
		if st.IsBanned() && !st.BannedAt(now) {
			target = target.WithBan(scope, model.Active())
			changed = true
		}
	}
	return target, changed
}
