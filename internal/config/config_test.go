// ABOUTME: Tests for configuration loading
// ABOUTME: Covers env expansion, duration parsing and validation errors

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
server:
  http_addr: ":8090"
database:
  path: /tmp/podium.db
auth:
  jwt_secret: test-secret
`

func TestLoad_Minimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/podium.db", cfg.Database.Path)
	assert.Equal(t, DefaultSessionTTL, cfg.Sessions.IdleTTL)
	assert.False(t, cfg.Matrix.Enabled)
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("PODIUM_TEST_SECRET", "from-env")
	t.Setenv("PODIUM_TEST_ADMIN", "@root:example.org")

	cfg, err := Load(writeConfig(t, `
server:
  http_addr: ":8090"
database:
  path: /tmp/podium.db
auth:
  jwt_secret: "${PODIUM_TEST_SECRET}"
  main_admins:
    - "${PODIUM_TEST_ADMIN}"
`))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, []string{"@root:example.org"}, cfg.Auth.MainAdmins)
}

func TestLoad_UnsetEnvVarFailsValidation(t *testing.T) {
	_, err := Load(writeConfig(t, `
server:
  http_addr: ":8090"
database:
  path: /tmp/podium.db
auth:
  jwt_secret: "${PODIUM_DEFINITELY_UNSET_VAR}"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestLoad_ParsesIdleTTL(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
sessions:
  idle_ttl: 90s
`))
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, cfg.Sessions.IdleTTL)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, minimalConfig+`
sessions:
  idle_ttl: ninety seconds
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "idle_ttl")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing http addr",
			mutate:  func(c *Config) { c.Server.HTTPAddr = "" },
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path",
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Auth.JWTSecret = "" },
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "matrix enabled without homeserver",
			mutate:  func(c *Config) { c.Matrix.Enabled = true },
			wantErr: "matrix.homeserver",
		},
		{
			name: "matrix enabled without user id",
			mutate: func(c *Config) {
				c.Matrix.Enabled = true
				c.Matrix.Homeserver = "https://matrix.example.org"
			},
			wantErr: "matrix.user_id",
		},
		{
			name: "matrix enabled without access token",
			mutate: func(c *Config) {
				c.Matrix.Enabled = true
				c.Matrix.Homeserver = "https://matrix.example.org"
				c.Matrix.UserID = "@bot:example.org"
			},
			wantErr: "matrix.access_token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Server:   ServerConfig{HTTPAddr: ":8090"},
				Database: DatabaseConfig{Path: "/tmp/podium.db"},
				Auth:     AuthConfig{JWTSecret: "secret"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
