package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/portalmod/pkg/model"
	"github.com/NicolasHaas/portalmod/pkg/rbac"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")

	path := writeFile(t, "portalmod.yaml", `
listen_addr: ":9090"
db_path: /var/lib/portalmod/mod.db
sweep_interval: 30s
log:
  level: debug
  format: json
jwt:
  secret: from-file
  ttl: 1h
rate_limit:
  requests_per_second: 2.5
  burst: 5
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.ListenAddr)
	require.Equal(t, "/var/lib/portalmod/mod.db", cfg.DBPath)
	require.Equal(t, 30*time.Second, cfg.SweepInterval)
	require.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
	require.Equal(t, "from-file", cfg.JWT.Secret)
	require.Equal(t, time.Hour, cfg.JWT.TTL)
	require.Equal(t, "portalmod", cfg.JWT.Issuer, "unset fields keep defaults")
	require.Equal(t, RateLimitConfig{RequestsPerSecond: 2.5, Burst: 5}, cfg.RateLimit)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigEnvOverridesSecret(t *testing.T) {
	t.Setenv(EnvJWTSecret, "from-env")
	path := writeFile(t, "portalmod.yaml", "jwt:\n  secret: from-file\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWT.Secret)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.JWT.Secret)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadConfig(writeFile(t, "bad.yaml", "listen_addr: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate(), "default config has no secret")

	cfg.JWT.Secret = "s3cret"
	require.NoError(t, cfg.Validate())

	cfg.JWT.TTL = 0
	cfg.ListenAddr = ""
	require.Error(t, cfg.Validate())
}

func TestPermissionTableOverride(t *testing.T) {
	t.Setenv(EnvJWTSecret, "")
	path := writeFile(t, "portalmod.yaml", `
permissions:
  moderator:
    community: [1d, 3d]
    escalates_to: admin
  admin:
    community: [1d, permanent]
    app: [permanent]
    resolve_review: true
    manage_roles: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	table, err := cfg.PermissionTable()
	require.NoError(t, err)

	require.Equal(t, []model.Duration{model.Days(1), model.Days(3)}, table.Durations(model.RoleModerator, model.ScopeCommunity))
	require.False(t, table.AllowsScope(model.RoleModerator, model.ScopeApp))
	to, ok := table.EscalatesTo(model.RoleModerator)
	require.True(t, ok)
	require.Equal(t, model.RoleAdmin, to)
	require.True(t, table.AllowsDuration(model.RoleAdmin, model.ScopeApp, model.Permanent))
	require.Empty(t, table.Scopes(model.RoleStaff), "roles left out of the override have no rights")
	require.True(t, table.Policy(model.RoleAdmin).CanManageRoles)
}

func TestPermissionTableDefault(t *testing.T) {
	table, err := DefaultConfig().PermissionTable()
	require.NoError(t, err)
	require.Equal(t, rbac.DefaultTable().Scopes(model.RoleStaff), table.Scopes(model.RoleStaff))
}

func TestPermissionTableRejects(t *testing.T) {
	tcases := map[string]map[string]PolicyYAML{
		"unknown_role":       {"wizard": {}},
		"unknown_escalation": {"moderator": {EscalatesTo: "wizard"}},
		"escalate_downwards": {"staff": {EscalatesTo: "moderator"}},
		"admin_escalates":    {"admin": {EscalatesTo: "admin"}},
	}
	for name, perms := range tcases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.JWT.Secret = "x"
			cfg.Permissions = perms
			_, err := cfg.PermissionTable()
			require.Error(t, err)
			require.Error(t, cfg.Validate())
		})
	}
}
