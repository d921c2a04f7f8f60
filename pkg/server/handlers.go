package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/moderation"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
	"github.com/NicolasHaas/portalmod/pkg/version"
)

const maxBodyBytes = 64 << 10

// BanRequest is the body of POST /users/{id}/ban.
type BanRequest struct {
	Scope    model.BanScope `json:"scope"`
	Duration model.Duration `json:"duration"`
	Reason   string         `json:"reason,omitempty"`
}

// UnbanRequest is the body of POST /users/{id}/unban.
type UnbanRequest struct {
	Scope  model.BanScope `json:"scope"`
	Reason string         `json:"reason,omitempty"`
}

// ReasonRequest is the optional body of escalate and review resolution.
type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RoleRequest is the body of PUT /users/{id}/role.
type RoleRequest struct {
	Role model.Role `json:"role"`
}

// DurationOption is one entry of a ban duration picker. Days is zero for a
// permanent ban.
type DurationOption struct {
	Value     model.Duration `json:"value"`
	Label     string         `json:"label"`
	Days      int            `json:"days,omitempty"`
	Permanent bool           `json:"permanent,omitempty"`
}

// PermissionsResponse describes what the caller may do.
type PermissionsResponse struct {
	UserID           string                              `json:"user_id"`
	Role             model.Role                          `json:"role"`
	Scopes           map[model.BanScope][]DurationOption `json:"scopes"`
	CanEscalate      bool                                `json:"can_escalate"`
	EscalatesTo      *model.Role                         `json:"escalates_to,omitempty"`
	CanResolveReview bool                                `json:"can_resolve_review"`
	CanManageRoles   bool                                `json:"can_manage_roles"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.String()})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFrom(r.Context())
	writeJSON(w, http.StatusOK, permissionsFor(s.svc.Engine().Table(), *actor))
}

func permissionsFor(table rbac.PermissionTable, actor model.UserRecord) PermissionsResponse {
	policy := table.Policy(actor.Role)
	resp := PermissionsResponse{
		UserID:           actor.ID,
		Role:             actor.Role,
		Scopes:           map[model.BanScope][]DurationOption{},
		CanEscalate:      policy.CanEscalate,
		CanResolveReview: policy.CanResolveReview,
		CanManageRoles:   policy.CanManageRoles,
	}
	for _, scope := range table.Scopes(actor.Role) {
		opts := []DurationOption{}
		for _, d := range table.Durations(actor.Role, scope) {
			opts = append(opts, DurationOption{
				Value:     d,
				Label:     d.Label(),
				Days:      d.NumDays(),
				Permanent: d.IsPermanent(),
			})
		}
		resp.Scopes[scope] = opts
	}
	if to, ok := table.EscalatesTo(actor.Role); ok {
		resp.EscalatesTo = &to
	}
	return resp
}

// requireModerator rejects actors the table grants no moderation rights.
func (s *Server) requireModerator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := actorFrom(r.Context())
		table := s.svc.Engine().Table()
		policy := table.Policy(actor.Role)
		if len(table.Scopes(actor.Role)) == 0 && !policy.CanEscalate && !policy.CanResolveReview && !policy.CanManageRoles {
			s.writeError(w, r, rbac.ErrInsufficientAuthority)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.svc.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var roleFilter model.Role
	if v := q.Get("role"); v != "" {
		var ok bool
		if roleFilter, ok = model.LookupRole(v); !ok {
			s.writeError(w, r, fmt.Errorf("role filter: %w: %q", model.ErrInvalidRole, v))
			return
		}
	}
	reviewOnly := q.Get("review") == "true"

	out := make([]model.UserRecord, 0, len(users))
	for _, u := range users {
		if roleFilter != 0 && u.Role != roleFilter {
			continue
		}
		if reviewOnly && !u.RequiresReview {
			continue
		}
		out = append(out, u)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.svc.Actions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if actions == nil {
		actions = []model.Action{}
	}
	writeJSON(w, http.StatusOK, actions)
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	var req BanRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Scope.Valid() {
		s.writeError(w, r, model.ErrInvalidScope)
		return
	}
	if !req.Duration.Valid() {
		s.writeError(w, r, model.ErrInvalidDuration)
		return
	}

	actor, _ := actorFrom(r.Context())
	u, err := s.svc.Ban(r.Context(), moderation.BanRequest{
		ActorID:  actor.ID,
		TargetID: chi.URLParam(r, "id"),
		Scope:    req.Scope,
		Duration: req.Duration,
		Reason:   req.Reason,
	})
	s.respondUser(w, r, u, err)
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	var req UnbanRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Scope.Valid() {
		s.writeError(w, r, model.ErrInvalidScope)
		return
	}

	actor, _ := actorFrom(r.Context())
	u, err := s.svc.Unban(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Scope, req.Reason)
	s.respondUser(w, r, u, err)
}

func (s *Server) handleEscalate(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	u, err := s.svc.Escalate(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Reason)
	s.respondUser(w, r, u, err)
}

func (s *Server) handleResolveReview(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	actor, _ := actorFrom(r.Context())
	u, err := s.svc.ResolveReview(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Reason)
	s.respondUser(w, r, u, err)
}

func (s *Server) handleChangeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if !req.Role.Valid() {
		s.writeError(w, r, model.ErrInvalidRole)
		return
	}
	actor, _ := actorFrom(r.Context())
	u, err := s.svc.ChangeRole(r.Context(), actor.ID, chi.URLParam(r, "id"), req.Role)
	s.respondUser(w, r, u, err)
}

func (s *Server) respondUser(w http.ResponseWriter, r *http.Request, u *model.UserRecord, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// decodeBody decodes a JSON request body into v. An empty body is accepted
// only when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(v)
	if errors.Is(err, io.EOF) && optional {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
