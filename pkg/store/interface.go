package store

import (
	"context"
	"errors"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

var (
	ErrNotFound        = errors.New("store: user not found")
	ErrVersionConflict = errors.New("store: version conflict")
	ErrDuplicate       = errors.New("store: duplicate user")
)

// UserStore is the authoritative user list. Implementations include the
// SQLite store and an in-memory store for tests and demos.
//
// Records are returned by value or as fresh copies; callers never alias
// stored state.
type UserStore interface {
	// Close closes the underlying storage connection.
	Close() error

	// ---- Users ----

	// CreateUser validates and inserts u, assigning an ID when empty,
	// Version 1 and CreatedAt. The stored record is returned.
	CreateUser(ctx context.Context, u model.UserRecord) (*model.UserRecord, error)

	// GetUser retrieves a user by ID. Returns ErrNotFound if absent.
	GetUser(ctx context.Context, id string) (*model.UserRecord, error)

	// ReplaceUser overwrites the stored record with u if the stored Version
	// equals u.Version, then bumps the version. Returns ErrVersionConflict on
	// mismatch and ErrNotFound if the ID is unknown.
	ReplaceUser(ctx context.Context, u model.UserRecord) (*model.UserRecord, error)

	// ListUsers returns all users ordered by creation time then ID.
	ListUsers(ctx context.Context) ([]model.UserRecord, error)

	// ---- Audit log ----

	// AppendAction records a moderation action and assigns its ID.
	AppendAction(ctx context.Context, a *model.Action) error

	// ListActions returns the actions recorded against a target, oldest first.
	ListActions(ctx context.Context, targetID string) ([]model.Action, error)
}

// Compile-time checks.
var (
	_ UserStore = (*Store)(nil)
	_ UserStore = (*MemoryStore)(nil)
)
