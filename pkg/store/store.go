// Package store provides persistence for moderated users and the
// moderation audit log, backed by SQLite or by memory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/NicolasHaas/portalmod/pkg/model"
)

const dbTimeLayout = "2006-01-02 15:04:05"

const userColumns = "id, name, email, role, community_status, community_expires_at, app_status, app_expires_at, requires_review, version, created_at"

// Store provides SQLite-backed access to users and actions.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (or creates) a SQLite database and runs migrations.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	// one writer at a time; the pragmas below are per connection
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	// WAL so modctl can read while the server writes
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set busy_timeout: %w", err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id                   TEXT    PRIMARY KEY,
		name                 TEXT    NOT NULL CHECK(length(name) > 0),
		email                TEXT    NOT NULL UNIQUE,
		role                 INTEGER NOT NULL DEFAULT 1 CHECK(role >= 1 AND role <= 4),
		community_status     INTEGER NOT NULL DEFAULT 0,
		community_expires_at TEXT,
		app_status           INTEGER NOT NULL DEFAULT 0,
		app_expires_at       TEXT,
		requires_review      INTEGER NOT NULL DEFAULT 0,
		version              INTEGER NOT NULL DEFAULT 1,
		created_at           TEXT    NOT NULL DEFAULT (datetime('now'))
	);

	CREATE TABLE IF NOT EXISTS actions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT    NOT NULL,
		actor_id   TEXT    NOT NULL DEFAULT '',
		actor_role INTEGER NOT NULL DEFAULT 0,
		target_id  TEXT    NOT NULL,
		scope      INTEGER NOT NULL DEFAULT 0,
		duration   TEXT    NOT NULL DEFAULT '',
		new_role   INTEGER NOT NULL DEFAULT 0,
		reason     TEXT    NOT NULL DEFAULT '',
		created_at TEXT    NOT NULL DEFAULT (datetime('now'))
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version    int
		statements []string
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_actions_target ON actions(target_id, id)",
				"CREATE INDEX IF NOT EXISTS idx_users_review ON users(requires_review)",
			},
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("store: migrate v%d: %w", m.version, err)
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("store: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("store: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *Store) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("store: read schema version: %w", err)
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("store: update schema version: %w", err)
	}
	return nil
}

func formatDBTime(t time.Time) string {
	return t.UTC().Format(dbTimeLayout)
}

func parseDBTime(value string) (time.Time, error) {
	return time.ParseInLocation(dbTimeLayout, value, time.UTC)
}

func formatDBTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := formatDBTime(*t)
	return &v
}

func parseDBTimePtr(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	t, err := parseDBTime(value.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.UserRecord, error) {
	var (
		u                       model.UserRecord
		role, commStat, appStat int
		review                  int
		commExp, appExp         sql.NullString
		createdAt               string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &commStat, &commExp, &appStat, &appExp, &review, &u.Version, &createdAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.RequiresReview = review != 0

	var err error
	if u.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}
	u.CommunityBan.Status = model.BanStatus(commStat)
	if u.CommunityBan.ExpiresAt, err = parseDBTimePtr(commExp); err != nil {
		return nil, err
	}
	u.AppBan.Status = model.BanStatus(appStat)
	if u.AppBan.ExpiresAt, err = parseDBTimePtr(appExp); err != nil {
		return nil, err
	}
	return &u, nil
}

// ---- Users ----

// CreateUser validates and inserts a new user.
func (s *Store) CreateUser(ctx context.Context, u model.UserRecord) (*model.UserRecord, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Version = 1
	u.CreatedAt = s.now().UTC().Truncate(time.Second)

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users ("+userColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		u.ID, u.Name, u.Email, int(u.Role),
		int(u.CommunityBan.Status), formatDBTimePtr(u.CommunityBan.ExpiresAt),
		int(u.AppBan.Status), formatDBTimePtr(u.AppBan.ExpiresAt),
		boolInt(u.RequiresReview), u.Version, formatDBTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: create user %s: %w", u.ID, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return s.GetUser(ctx, u.ID)
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.UserRecord, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: get user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// ReplaceUser overwrites a user if its version matches.
func (s *Store) ReplaceUser(ctx context.Context, u model.UserRecord) (*model.UserRecord, error) {
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("store: replace user: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, role = ?,
			community_status = ?, community_expires_at = ?,
			app_status = ?, app_expires_at = ?,
			requires_review = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		u.Name, u.Email, int(u.Role),
		int(u.CommunityBan.Status), formatDBTimePtr(u.CommunityBan.ExpiresAt),
		int(u.AppBan.Status), formatDBTimePtr(u.AppBan.ExpiresAt),
		boolInt(u.RequiresReview), u.ID, u.Version)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("store: replace user %s: %w", u.Email, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("store: replace user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: replace user: %w", err)
	}

	if n == 0 {
		var version int64
		err := tx.QueryRowContext(ctx, "SELECT version FROM users WHERE id = ?", u.ID).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: replace user %s: %w", u.ID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("store: replace user: %w", err)
		}
		return nil, fmt.Errorf("store: replace user %s (have v%d, got v%d): %w", u.ID, version, u.Version, ErrVersionConflict)
	}

	stored, err := scanUser(tx.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", u.ID))
	if err != nil {
		return nil, fmt.Errorf("store: replace user: reload: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return stored, nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.UserRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	users := []model.UserRecord{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ---- Audit log ----

// AppendAction records a moderation action.
func (s *Store) AppendAction(ctx context.Context, a *model.Action) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Second)
	var duration string
	if a.Duration.Valid() {
		duration = a.Duration.String()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO actions (kind, actor_id, actor_role, target_id, scope, duration, new_role, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		string(a.Kind), a.ActorID, int(a.ActorRole), a.TargetID, int(a.Scope), duration, int(a.NewRole), a.Reason, formatDBTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("store: append action: %w", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

// ListActions returns the actions recorded against targetID.
func (s *Store) ListActions(ctx context.Context, targetID string) ([]model.Action, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, kind, actor_id, actor_role, target_id, scope, duration, new_role, reason, created_at FROM actions WHERE target_id = ? ORDER BY id",
		targetID)
	if err != nil {
		return nil, fmt.Errorf("store: list actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []model.Action
	for rows.Next() {
		var (
			a                         model.Action
			kind, duration, created   string
			actorRole, scope, newRole int
		)
		if err := rows.Scan(&a.ID, &kind, &a.ActorID, &actorRole, &a.TargetID, &scope, &duration, &newRole, &a.Reason, &created); err != nil {
			return nil, fmt.Errorf("store: scan action: %w", err)
		}
		a.Kind = model.ActionKind(kind)
		a.ActorRole = model.Role(actorRole)
		a.Scope = model.BanScope(scope)
		a.NewRole = model.Role(newRole)
		if duration != "" {
			if a.Duration, err = model.ParseDuration(duration); err != nil {
				return nil, fmt.Errorf("store: scan action: %w", err)
			}
		}
		if a.CreatedAt, err = parseDBTime(created); err != nil {
			return nil, fmt.Errorf("store: scan action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
