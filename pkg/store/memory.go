package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

// MemoryStore provides an in-memory UserStore. It mirrors the SQLite store's
// validation and error behaviour.
type MemoryStore struct {
	mu sync.RWMutex

	now func() time.Time

	nextActionID int64

	usersByID map[string]*model.UserRecord
	emails    map[string]string
	actions   []model.Action
}

// NewMemory creates a MemoryStore using time.Now().UTC().
func NewMemory() *MemoryStore {
	return NewMemoryWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryWithClock creates a MemoryStore with a custom clock.
func NewMemoryWithClock(now func() time.Time) *MemoryStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &MemoryStore{
		now:          now,
		nextActionID: 1,
		usersByID:    make(map[string]*model.UserRecord),
		emails:       make(map[string]string),
	}
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

// CreateUser validates and inserts a new user.
func (s *MemoryStore) CreateUser(_ context.Context, u model.UserRecord) (*model.UserRecord, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.usersByID[u.ID]; exists {
		return nil, fmt.Errorf("store: create user %s: %w", u.ID, ErrDuplicate)
	}
	if _, exists := s.emails[u.Email]; exists {
		return nil, fmt.Errorf("store: create user %s: %w", u.Email, ErrDuplicate)
	}
	u.Version = 1
	u.CreatedAt = s.now().UTC().Truncate(time.Second)
	stored := normalizeUser(u)
	s.usersByID[u.ID] = &stored
	s.emails[u.Email] = u.ID
	out := cloneUser(stored)
	return &out, nil
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(_ context.Context, id string) (*model.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.usersByID[id]
	if !ok {
		return nil, fmt.Errorf("store: get user %s: %w", id, ErrNotFound)
	}
	out := cloneUser(*u)
	return &out, nil
}

// ReplaceUser overwrites a user if its version matches.
func (s *MemoryStore) ReplaceUser(_ context.Context, u model.UserRecord) (*model.UserRecord, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("store: replace user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.usersByID[u.ID]
	if !ok {
		return nil, fmt.Errorf("store: replace user %s: %w", u.ID, ErrNotFound)
	}
	if current.Version != u.Version {
		return nil, fmt.Errorf("store: replace user %s (have v%d, got v%d): %w", u.ID, current.Version, u.Version, ErrVersionConflict)
	}
	if owner, exists := s.emails[u.Email]; exists && owner != u.ID {
		return nil, fmt.Errorf("store: replace user %s: %w", u.Email, ErrDuplicate)
	}
	delete(s.emails, current.Email)
	s.emails[u.Email] = u.ID

	u.Version = current.Version + 1
	u.CreatedAt = current.CreatedAt
	stored := normalizeUser(u)
	s.usersByID[u.ID] = &stored
	out := cloneUser(stored)
	return &out, nil
}

// ListUsers returns all users.
func (s *MemoryStore) ListUsers(_ context.Context) ([]model.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]model.UserRecord, 0, len(s.usersByID))
	for _, u := range s.usersByID {
		users = append(users, cloneUser(*u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// AppendAction records a moderation action.
func (s *MemoryStore) AppendAction(_ context.Context, a *model.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.nextActionID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	a.CreatedAt = a.CreatedAt.Truncate(time.Second)
	s.nextActionID++
	s.actions = append(s.actions, *a)
	return nil
}

// ListActions returns the actions recorded against targetID.
func (s *MemoryStore) ListActions(_ context.Context, targetID string) ([]model.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Action
	for _, a := range s.actions {
		if a.TargetID == targetID {
			out = append(out, a)
		}
	}
	return out, nil
}

// cloneUser deep-copies the expiry pointers of u.
func cloneUser(u model.UserRecord) model.UserRecord {
	u = u.WithBan(model.ScopeCommunity, u.CommunityBan)
	return u.WithBan(model.ScopeApp, u.AppBan)
}

// normalizeUser copies u with expiries truncated to the second precision
// the SQLite store keeps.
func normalizeUser(u model.UserRecord) model.UserRecord {
	for _, scope := range model.Scopes() {
		st := u.Ban(scope)
		if st.ExpiresAt != nil {
			t := st.ExpiresAt.UTC().Truncate(time.Second)
			st.ExpiresAt = &t
		}
		u = u.WithBan(scope, st)
	}
	return u
}
