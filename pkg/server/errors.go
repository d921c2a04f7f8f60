package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/moderation"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
	"github.com/NicolasHaas/portalmod/pkg/store"
)

var (
	errBadRequest   = errors.New("malformed request body")
	errUnknownActor = errors.New("token subject is not a known user")
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// asAuthError turns a failed actor lookup into an authentication failure.
func asAuthError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errUnknownActor
	}
	return err
}

// classify maps err to an HTTP status, a stable error code and the message
// shown to the moderator.
func classify(err error) (int, ErrorResponse) {
	var authzErr *rbac.Error
	if errors.As(err, &authzErr) {
		return http.StatusForbidden, ErrorResponse{Error: code(authzErr.Kind), Message: denialMessage(authzErr)}
	}

	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidSignature), errors.Is(err, errUnknownActor):
		return http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: err.Error()}
	case errors.Is(err, ErrExpiredToken):
		return http.StatusUnauthorized, ErrorResponse{Error: "token_expired", Message: err.Error()}
	case errors.Is(err, moderation.ErrActorBanned):
		return http.StatusForbidden, ErrorResponse{Error: "actor_banned", Message: "Your account is banned from the app."}
	case errors.Is(err, rbac.ErrInsufficientAuthority):
		return http.StatusForbidden, ErrorResponse{Error: code(rbac.ErrInsufficientAuthority), Message: "You don't have permission to view this resource."}
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User not found."}
	case errors.Is(err, store.ErrVersionConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: "The user was changed concurrently, please retry."}
	case errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict, ErrorResponse{Error: "duplicate", Message: "A user with this ID or email already exists."}
	case errors.Is(err, errBadRequest), errors.Is(err, model.ErrInvalidRole),
		errors.Is(err, model.ErrInvalidScope), errors.Is(err, model.ErrInvalidDuration),
		errors.Is(err, moderation.ErrReasonTooLong):
		return http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal", Message: "Internal server error."}
}

func code(kind error) string {
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
	return "forbidden"
}

func denialMessage(e *rbac.Error) string {
	switch e.Kind {
	case rbac.ErrDurationNotPermitted:
		return "This ban duration is not permitted for your role."
	case rbac.ErrScopeNotPermitted:
		return "This ban scope is not permitted for your role."
	case rbac.ErrEscalationNotPermitted:
		return "Your role has no higher authority to escalate to."
	}
	switch e.Op {
	case "ban", "unban":
		return "You don't have permission to ban this user role."
	case "change role":
		return "You don't have permission to change this user's role."
	case "resolve review":
		return "You don't have permission to resolve reviews."
	}
	return "You don't have permission to moderate this user."
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "err", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}
