package relay

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestJWTAuthorizer(t *testing.T) {
	auth := NewJWTAuthorizer(testSecret)
	ctx := context.Background()

	edit, err := IssueToken(testSecret, "alice", []string{"proj-1"}, PermEdit, time.Hour)
	require.NoError(t, err)
	view, err := IssueToken(testSecret, "bob", []string{"*"}, PermView, 0)
	require.NoError(t, err)
	forged, err := IssueToken([]byte("other"), "mallory", []string{"*"}, PermEdit, 0)
	require.NoError(t, err)

	expiredClaims := Claims{
		Channels:   []string{"proj-1"},
		Permission: PermEdit,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "carol",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(testSecret)
	require.NoError(t, err)

	grant, err := auth.Authorize(ctx, "proj-1", edit)
	require.NoError(t, err)
	assert.Equal(t, Grant{Subject: "alice", Permission: PermEdit}, grant)
	assert.False(t, grant.ReadOnly())

	grant, err = auth.Authorize(ctx, "anything", view)
	require.NoError(t, err)
	assert.True(t, grant.ReadOnly())

	tests := []struct {
		name, channel, token string
	}{
		{"missing token", "proj-1", ""},
		{"other channel", "proj-2", edit},
		{"wrong secret", "proj-1", forged},
		{"expired", "proj-1", expired},
		{"garbage", "proj-1", "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authorize(ctx, tt.channel, tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestIssueTokenRejectsUnknownPermission(t *testing.T) {
	_, err := IssueToken(testSecret, "alice", []string{"*"}, Permission("admin"), 0)
	assert.Error(t, err)
}

func TestAllowAll(t *testing.T) {
	g, err := AllowAll{}.Authorize(context.Background(), "p", "alice")
	require.NoError(t, err)
	assert.Equal(t, PermEdit, g.Permission)

	g, err = AllowAll{Permission: PermView}.Authorize(context.Background(), "p", "bob")
	require.NoError(t, err)
	assert.True(t, g.ReadOnly())
}
