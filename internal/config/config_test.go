package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "/login.php", cfg.Site.LoginPath)
	assert.Equal(t, []string{"/login.php", "/register.php"}, cfg.Site.PublicPaths)
	assert.Equal(t, 120*time.Hour, cfg.Security.SessionTTL)
	assert.Equal(t, 60*time.Minute, cfg.Security.ResetTokenTTL)
	assert.Equal(t, 5, cfg.Share.RateLimit)
	assert.Equal(t, time.Hour, cfg.Share.RateWindow)
	assert.Equal(t, 24, cfg.Share.TokenBytes)
	require.NoError(t, cfg.validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CELLARHUB_SHARE_RATELIMIT", "7")
	t.Setenv("CELLARHUB_SECURITY_FLOWTIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Share.RateLimit)
	assert.Equal(t, 3*time.Second, cfg.Security.FlowTimeout)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CELLARHUB_SHARE_RATELIMIT=9\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("CELLARHUB_SHARE_RATELIMIT")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Share.RateLimit)
}

func TestValidateRejectsShortShareTokens(t *testing.T) {
	cfg := Defaults()
	cfg.Share.TokenBytes = 16
	assert.Error(t, cfg.validate())

	cfg = Defaults()
	cfg.Site.LoginPath = "login.php"
	assert.Error(t, cfg.validate())
}
