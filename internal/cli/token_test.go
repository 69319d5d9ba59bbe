package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geckode/internal/relay"
)

func TestTokenIssuesVerifiableToken(t *testing.T) {
	stdout, _, err := execute(t, "token", "--secret", "s3cret", "--subject", "alice", "--channel", "level-1")
	require.NoError(t, err)
	token := strings.TrimSpace(stdout)

	grant, err := relay.NewJWTAuthorizer([]byte("s3cret")).Authorize(context.Background(), "level-1", token)
	require.NoError(t, err)
	assert.Equal(t, "alice", grant.Subject)
	assert.Equal(t, relay.PermEdit, grant.Permission)

	_, err = relay.NewJWTAuthorizer([]byte("s3cret")).Authorize(context.Background(), "level-2", token)
	assert.ErrorIs(t, err, relay.ErrUnauthorized)
}

func TestTokenSecretFromConfig(t *testing.T) {
	t.Setenv("GECKODE_RELAY_SECRET", "")
	cfg := writeConfig(t, "relay:\n  secret: config-signing-secret\n")

	stdout, _, err := execute(t, "token", "--config", cfg, "--subject", "bob", "--channel", "*", "--perm", "view", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TokenResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "view", resp.Data.Permission)
	assert.Equal(t, "24h0m0s", resp.Data.ExpiresIn)

	grant, err := relay.NewJWTAuthorizer([]byte("config-signing-secret")).Authorize(context.Background(), "anything", resp.Data.Token)
	require.NoError(t, err)
	assert.True(t, grant.ReadOnly())
}

func TestTokenErrors(t *testing.T) {
	t.Setenv("GECKODE_RELAY_SECRET", "")
	cfg := writeConfig(t, "")

	_, _, err := execute(t, "token", "--config", cfg, "--subject", "alice", "--channel", "level-1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no signing secret")

	_, _, err = execute(t, "token", "--secret", "s", "--subject", "alice", "--channel", "level-1", "--perm", "admin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `unknown permission "admin"`)
}
