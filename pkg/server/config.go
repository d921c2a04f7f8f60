package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
)

// EnvJWTSecret overrides Config.JWT.Secret when set.
const EnvJWTSecret = "PORTALMOD_JWT_SECRET"

// Config holds server configuration.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`    // HTTP bind address (e.g. ":8080")
	DBPath        string        `yaml:"db_path"`        // SQLite database path
	UsersFile     string        `yaml:"users_file"`     // YAML users to import on startup
	SweepInterval time.Duration `yaml:"sweep_interval"` // how often run-out bans are reverted (0 = never)

	Log       LogConfig       `yaml:"log"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Permissions replaces the default permission table when non-empty.
	Permissions map[string]PolicyYAML `yaml:"permissions,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"` // passphrase the HMAC key is derived from
	Salt   string        `yaml:"salt"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // 0 disables limiting
	Burst             int     `yaml:"burst"`
}

// PolicyYAML is one role's entry in a permission table override.
type PolicyYAML struct {
	Community     []model.Duration `yaml:"community,omitempty"`
	App           []model.Duration `yaml:"app,omitempty"`
	EscalatesTo   string           `yaml:"escalates_to,omitempty"`
	ResolveReview bool             `yaml:"resolve_review,omitempty"`
	ManageRoles   bool             `yaml:"manage_roles,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:    ":8080",
		DBPath:        "portalmod.db",
		SweepInterval: time.Minute,
		Log:           LogConfig{Level: "info", Format: "text"},
		JWT: JWTConfig{
			Salt:   "portalmod",
			Issuer: "portalmod",
			TTL:    12 * time.Hour,
		},
		RateLimit: RateLimitConfig{RequestsPerSecond: 10, Burst: 20},
	}
}

// LoadConfig reads a YAML config file over DefaultConfig, then applies the
// environment.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path from operator CLI flag
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		c.JWT.Secret = v
	}
}

// Validate reports configuration errors that would prevent serving.
func (c Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr must be set"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, fmt.Errorf("jwt.secret must be set (or %s)", EnvJWTSecret))
	}
	if c.JWT.TTL <= 0 {
		errs = append(errs, errors.New("jwt.ttl must be positive"))
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	if _, err := c.PermissionTable(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PermissionTable returns the configured table, or the default one when no
// override is present.
func (c Config) PermissionTable() (rbac.PermissionTable, error) {
	if len(c.Permissions) == 0 {
		return rbac.DefaultTable(), nil
	}
	table := rbac.PermissionTable{}
	for name, p := range c.Permissions {
		role, ok := model.LookupRole(name)
		if !ok {
			return nil, fmt.Errorf("permissions: %w: %q", model.ErrInvalidRole, name)
		}
		policy := rbac.RolePolicy{
			Durations:        map[model.BanScope][]model.Duration{},
			CanResolveReview: p.ResolveReview,
			CanManageRoles:   p.ManageRoles,
		}
		if len(p.Community) > 0 {
			policy.Durations[model.ScopeCommunity] = p.Community
		}
		if len(p.App) > 0 {
			policy.Durations[model.ScopeApp] = p.App
		}
		if p.EscalatesTo != "" {
			to, ok := model.LookupRole(p.EscalatesTo)
			if !ok {
				return nil, fmt.Errorf("permissions: %s: escalates_to: %w: %q", name, model.ErrInvalidRole, p.EscalatesTo)
			}
			policy.CanEscalate = true
			policy.EscalatesTo = to
		}
		table[role] = policy
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("permissions: %w", err)
	}
	return table, nil
}
