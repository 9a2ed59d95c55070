package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"insights-backend/internal/session"
	"insights-backend/lib/configutil"

	"github.com/stretchr/testify/require"
)

func TestReadConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json5"), []byte(`{
		// committed defaults
		session: { username: "scraper@example.com", failure_cooldown_minutes: -1 },
		ingest: { max_concurrent: 4, retry_attempts: 5 },
		serve: { refresh_schedule: "@every 6h", organizations: ["acme"] },
	}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.local.json5"), []byte(`{
		session: { password: "hunter2" },
	}`), 0o644))

	config, err := configutil.ReadConfig[Config](filepath.Join(dir, "config.json5"))
	require.NoError(t, err)
	config = config.withDefaults()

	require.Equal(t, "insights.db", config.Database.File)
	require.Equal(t, ".insights/cookies.json", config.Session.CookieFile)
	require.Equal(t, "127.0.0.1:8080", config.Serve.Addr)
	require.Equal(t, []string{"acme"}, config.Serve.Organizations)

	manager := config.Session.manager()
	require.Equal(t, session.Credentials{Username: "scraper@example.com", Password: "hunter2"}, manager.Credentials)
	require.Zero(t, manager.FailureCooldown)

	service := config.Ingest.service()
	require.Equal(t, 4, service.MaxConcurrent)
	require.Equal(t, 5, service.Retry.MaxAttempts)
}

func TestSessionConfigDefaults(t *testing.T) {
	defaults := session.DefaultConfig()
	require.Equal(t, defaults.FailureCooldown, SessionConfig{}.manager().FailureCooldown)

	config := SessionConfig{VerificationTimeoutSeconds: 90, FailureCooldownMinutes: 5}.manager()
	require.Equal(t, 90*time.Second, config.VerificationTimeout)
	require.Equal(t, 5*time.Minute, config.FailureCooldown)
	require.Equal(t, defaults.StepTimeout, config.StepTimeout)
}
