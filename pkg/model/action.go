package model

import "time"

// ActionKind names a moderation operation recorded in the audit log.
type ActionKind string

const (
	ActionBan           ActionKind = "ban"
	ActionUnban         ActionKind = "unban"
	ActionEscalate      ActionKind = "escalate"
	ActionResolveReview ActionKind = "resolve_review"
	ActionChangeRole    ActionKind = "change_role"
	ActionExpire        ActionKind = "expire"
)

// Action is one audit log entry. ActorID is empty for system actions such
// as expiry sweeps. Scope, Duration and NewRole are set only when relevant.
type Action struct {
	ID        int64      `json:"id"`
	Kind      ActionKind `json:"kind"`
	ActorID   string     `json:"actor_id,omitempty"`
	ActorRole Role       `json:"actor_role,omitempty"`
	TargetID  string     `json:"target_id"`
	Scope     BanScope   `json:"scope,omitempty"`
	Duration  Duration   `json:"duration,omitzero"`
	NewRole   Role       `json:"new_role,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
