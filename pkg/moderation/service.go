// Package moderation applies ban engine decisions to stored users. Each
// operation loads the actor and target, evaluates the request, writes the
// result back with a version check and records an audit entry.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
	"github.com/NicolasHaas/portalmod/pkg/store"
)

// MaxAttempts bounds how often an operation is re-evaluated after losing a
// concurrent update.
const MaxAttempts = 3

// MaxReasonLength limits the free-text reason stored with an action.
const MaxReasonLength = 500

var (
	ErrActorBanned   = errors.New("moderation: actor is banned from the app")
	ErrReasonTooLong = fmt.Errorf("moderation: reason must not exceed %d characters", MaxReasonLength)
)

// Service runs moderation operations against a UserStore.
type Service struct {
	store   store.UserStore
	engine  *rbac.Engine
	metrics Metrics
	logger  *slog.Logger
}

// New creates a Service. A nil engine means rbac.NewEngine(), nil metrics
// discard counters and a nil logger uses slog.Default().
func New(st store.UserStore, engine *rbac.Engine, metrics Metrics, logger *slog.Logger) *Service {
	if engine == nil {
		engine = rbac.NewEngine()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, engine: engine, metrics: metrics, logger: logger}
}

// Engine returns the engine decisions are made with.
func (s *Service) Engine() *rbac.Engine { return s.engine }

// BanRequest asks for target to be banned in Scope for Duration.
type BanRequest struct {
	ActorID  string
	TargetID string
	Scope    model.BanScope
	Duration model.Duration
	Reason   string
}

// Ban authorizes and applies a ban.
func (s *Service) Ban(ctx context.Context, req BanRequest) (*model.UserRecord, error) {
	entry := model.Action{Kind: model.ActionBan, Scope: req.Scope, Duration: req.Duration, Reason: req.Reason}
	return s.mutate(ctx, req.ActorID, req.TargetID, entry, func(actor model.Role, target model.UserRecord) (model.UserRecord, error) {
		state, err := s.engine.AuthorizeBan(actor, target, req.Scope, req.Duration)
		if err != nil {
			return model.UserRecord{}, err
		}
		return s.engine.ApplyBan(target, req.Scope, state), nil
	})
}

// Unban lifts target's ban in scope.
func (s *Service) Unban(ctx context.Context, actorID, targetID string, scope model.BanScope, reason string) (*model.UserRecord, error) {
	entry := model.Action{Kind: model.ActionUnban, Scope: scope, Reason: reason}
	return s.mutate(ctx, actorID, targetID, entry, func(actor model.Role, target model.UserRecord) (model.UserRecord, error) {
		state, err := s.engine.AuthorizeUnban(actor, target, scope)
		if err != nil {
			return model.UserRecord{}, err
		}
		return s.engine.ApplyBan(target, scope, state), nil
	})
}

// Escalate flags target for review by the actor's escalation role.
func (s *Service) Escalate(ctx context.Context, actorID, targetID, reason string) (*model.UserRecord, error) {
	entry := model.Action{Kind: model.ActionEscalate, Reason: reason}
	return s.mutate(ctx, actorID, targetID, entry, s.engine.Escalate)
}

// ResolveReview clears target's review flag.
func (s *Service) ResolveReview(ctx context.Context, actorID, targetID, reason string) (*model.UserRecord, error) {
	entry := model.Action{Kind: model.ActionResolveReview, Reason: reason}
	return s.mutate(ctx, actorID, targetID, entry, s.engine.ResolveReview)
}

// ChangeRole sets target's role to newRole.
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, newRole model.Role) (*model.UserRecord, error) {
	entry := model.Action{Kind: model.ActionChangeRole, NewRole: newRole}
	return s.mutate(ctx, actorID, targetID, entry, func(actor model.Role, target model.UserRecord) (model.UserRecord, error) {
		return s.engine.ChangeRole(actor, target, newRole)
	})
}

// Get returns a user with any run-out bans shown as active.
func (s *Service) Get(ctx context.Context, id string) (*model.UserRecord, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	expired, _ := s.engine.Expire(*u)
	return &expired, nil
}

// List returns all users with run-out bans shown as active.
func (s *Service) List(ctx context.Context) ([]model.UserRecord, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i], _ = s.engine.Expire(users[i])
	}
	return users, nil
}

// Actions returns the audit log for a user. The user must exist.
func (s *Service) Actions(ctx context.Context, targetID string) ([]model.Action, error) {
	if _, err := s.store.GetUser(ctx, targetID); err != nil {
		return nil, err
	}
	return s.store.ListActions(ctx, targetID)
}

// Actor loads the user acting under actorID and rejects app-banned actors.
func (s *Service) Actor(ctx context.Context, actorID string) (*model.UserRecord, error) {
	u, err := s.store.GetUser(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("moderation: load actor: %w", err)
	}
	if u.AppBan.BannedAt(s.engine.Now()) {
		return nil, ErrActorBanned
	}
	return u, nil
}

// ExpireAll reverts every run-out ban and returns how many users changed.
// Users that change concurrently are left for the next sweep.
func (s *Service) ExpireAll(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("moderation: expire: %w", err)
	}
	n := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		updated, changed := s.engine.Expire(u)
		if !changed {
			continue
		}
		if _, err := s.store.ReplaceUser(ctx, updated); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				s.metrics.Conflict(model.ActionExpire)
				s.logger.Debug("expire skipped, user changed concurrently", "user", u.ID)
				continue
			}
			return n, fmt.Errorf("moderation: expire %s: %w", u.ID, err)
		}
		s.recordExpiry(ctx, u, updated)
		n++
	}
	if n > 0 {
		s.logger.Info("expired bans", "users", n)
	}
	return n, nil
}

type decideFunc func(actor model.Role, target model.UserRecord) (model.UserRecord, error)

// mutate runs one read-evaluate-write cycle, retrying on version conflicts.
func (s *Service) mutate(ctx context.Context, actorID, targetID string, entry model.Action, decide decideFunc) (*model.UserRecord, error) {
	if utf8.RuneCountInString(entry.Reason) > MaxReasonLength {
		return nil, ErrReasonTooLong
	}
	entry.Reason = strings.TrimSpace(entry.Reason)

	for attempt := 1; ; attempt++ {
		actor, err := s.Actor(ctx, actorID)
		if err != nil {
			return nil, err
		}
		current, err := s.store.GetUser(ctx, targetID)
		if err != nil {
			return nil, fmt.Errorf("moderation: %s: %w", entry.Kind, err)
		}
		target, _ := s.engine.Expire(*current)

		updated, err := decide(actor.Role, target)
		if err != nil {
			if kind := rbac.KindOf(err); kind != nil {
				s.metrics.Denied(entry.Kind, reasonLabel(kind))
				s.logger.Warn("moderation denied",
					"op", entry.Kind,
					"actor", actorID,
					"target", targetID,
					"err", err,
				)
			}
			return nil, err
		}

		stored, err := s.store.ReplaceUser(ctx, updated)
		if errors.Is(err, store.ErrVersionConflict) && attempt < MaxAttempts {
			s.metrics.Conflict(entry.Kind)
			s.logger.Debug("version conflict, retrying", "op", entry.Kind, "target", targetID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("moderation: %s: %w", entry.Kind, err)
		}

		s.recordExpiry(ctx, *current, target)
		entry.ActorID = actor.ID
		entry.ActorRole = actor.Role
		entry.TargetID = targetID
		entry.CreatedAt = s.engine.Now()
		if err := s.store.AppendAction(ctx, &entry); err != nil {
			s.logger.Error("failed to record action", "op", entry.Kind, "target", targetID, "err", err)
		}

		s.metrics.Applied(entry.Kind)
		s.logger.Info("moderation applied",
			"op", entry.Kind,
			"actor", actorID,
			"actor_role", actor.Role.String(),
			"target", targetID,
		)
		return stored, nil
	}
}

// recordExpiry logs an expire entry for each scope that went from banned in
// before to active in after.
func (s *Service) recordExpiry(ctx context.Context, before, after model.UserRecord) {
	for _, scope := range model.Scopes() {
		if !before.Ban(scope).IsBanned() || after.Ban(scope).IsBanned() {
			continue
		}
		s.metrics.Expired(scope)
		entry := model.Action{
			Kind:      model.ActionExpire,
			TargetID:  before.ID,
			Scope:     scope,
			CreatedAt: s.engine.Now(),
		}
		if err := s.store.AppendAction(ctx, &entry); err != nil {
			s.logger.Error("failed to record expiry", "target", before.ID, "err", err)
		}
	}
}

func reasonLabel(kind error) string {
	switch kind {
	case rbac.ErrInsufficientAuthority:
		return "insufficient_authority"
	case rbac.ErrScopeNotPermitted:
		return "scope_not_permitted"
	case rbac.ErrDurationNotPermitted:
		return "duration_not_permitted"
	case rbac.ErrEscalationNotPermitted:
		return "escalation_not_permitted"
	}
	return "unknown"
}
