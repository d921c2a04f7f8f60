package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/store"
)

// UserYAML represents a user in YAML import/export.
type UserYAML struct {
	ID             string         `yaml:"id,omitempty"`
	Name           string         `yaml:"name"`
	Email          string         `yaml:"email"`
	Role           string         `yaml:"role"`
	CommunityBan   model.BanState `yaml:"community_ban,omitempty"`
	AppBan         model.BanState `yaml:"app_ban,omitempty"`
	RequiresReview bool           `yaml:"requires_review,omitempty"`
	CreatedAt      string         `yaml:"created_at,omitempty"`
}

// UsersFile is the top-level YAML for user import/export.
type UsersFile struct {
	Users []UserYAML `yaml:"users"`
}

// LoadUsersFromYAML reads a users YAML file and creates the users in the store.
func LoadUsersFromYAML(ctx context.Context, path string, st store.UserStore) (int, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path from operator config
	if err != nil {
		return 0, fmt.Errorf("read users file: %w", err)
	}
	return ImportUsersYAML(ctx, data, st)
}

// ImportUsersYAML parses YAML data and creates the users it lists. Users
// whose ID or email already exists are skipped. It returns how many users
// were created.
func ImportUsersYAML(ctx context.Context, data []byte, st store.UserStore) (int, error) {
	var file UsersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse users file: %w", err)
	}

	created := 0
	for i, u := range file.Users {
		role := model.RoleStudent
		if u.Role != "" {
			var ok bool
			if role, ok = model.LookupRole(u.Role); !ok {
				return created, fmt.Errorf("users[%d] %s: %w: %q", i, u.Email, model.ErrInvalidRole, u.Role)
			}
		}
		_, err := st.CreateUser(ctx, model.UserRecord{
			ID:             u.ID,
			Name:           u.Name,
			Email:          u.Email,
			Role:           role,
			CommunityBan:   u.CommunityBan,
			AppBan:         u.AppBan,
			RequiresReview: u.RequiresReview,
		})
		if errors.Is(err, store.ErrDuplicate) {
			slog.Debug("user already exists, skipping", "email", u.Email)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("users[%d]: %w", i, err)
		}
		created++
	}

	slog.Info("imported users from YAML", "created", created, "listed", len(file.Users))
	return created, nil
}

// ExportUsersYAML exports all users as YAML.
func ExportUsersYAML(ctx context.Context, st store.UserStore) ([]byte, error) {
	users, err := st.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	export := UsersFile{Users: []UserYAML{}}
	for _, u := range users {
		export.Users = append(export.Users, UserYAML{
			ID:             u.ID,
			Name:           u.Name,
			Email:          u.Email,
			Role:           u.Role.String(),
			CommunityBan:   u.CommunityBan,
			AppBan:         u.AppBan,
			RequiresReview: u.RequiresReview,
			CreatedAt:      u.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return yaml.Marshal(&export)
}
