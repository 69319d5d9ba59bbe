package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadExplicitFile(t *testing.T) {
	path := writeFile(t, `
relay:
  addr: 0.0.0.0:9000
  secret: a-long-enough-secret
  write_timeout: 2s
client:
  backoff_initial: 100ms
  backoff_max: 1s
undo_depth: 50
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.Relay.Addr)
	assert.Equal(t, "geckode.db", cfg.Relay.DBPath, "unset keys keep defaults")
	assert.Equal(t, 2*time.Second, cfg.Relay.WriteTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Client.BackoffInitial)
	assert.Equal(t, 50, cfg.UndoDepth)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "relay:\n  adr: 1.2.3.4:1\n"))
	assert.ErrorContains(t, err, "adr")
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("GECKODE_RELAY_ADDR", "127.0.0.1:7000")
	t.Setenv("GECKODE_UNDO_DEPTH", "7")
	t.Setenv("GECKODE_ACTOR", "alice")

	cfg, err := Load(writeFile(t, "relay:\n  addr: 127.0.0.1:6000\n"))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", cfg.Relay.Addr)
	assert.Equal(t, 7, cfg.UndoDepth)
	assert.Equal(t, "alice", cfg.Client.Actor)
}

func TestEnvBadNumber(t *testing.T) {
	t.Setenv("GECKODE_UNDO_DEPTH", "lots")
	_, err := Load(writeFile(t, ""))
	assert.ErrorContains(t, err, "GECKODE_UNDO_DEPTH")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Relay.Addr = "not an address"
	cfg.Relay.Secret = "short"
	cfg.UndoDepth = 0
	cfg.LogLevel = "loud"
	cfg.Client.BackoffMax = time.Millisecond

	err := cfg.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ElementsMatch(t, []string{
		"relay.addr failed hostname_port",
		"relay.secret failed min=16",
		"client.backoff_max failed gtefield=BackoffInitial",
		"undo_depth failed min=1",
		"log_level failed oneof=debug info warn error",
	}, verr.Problems)
}
