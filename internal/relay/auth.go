package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned when a token does not grant the channel.
var ErrUnauthorized = errors.New("unauthorized")

// Permission is what a member may do in a channel.
type Permission string

const (
	PermEdit Permission = "edit"
	PermView Permission = "view"
)

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	return p == PermEdit || p == PermView
}

// Grant is the outcome of a successful authorization.
type Grant struct {
	Subject    string
	Permission Permission
}

// ReadOnly reports whether the member may only watch.
func (g Grant) ReadOnly() bool {
	return g.Permission != PermEdit
}

// Authorizer decides whether a token may join a channel.
type Authorizer interface {
	Authorize(ctx context.Context, channel, token string) (Grant, error)
}

// AllowAll grants every request the same permission. For local use and
// tests.
type AllowAll struct {
	Permission Permission
}

// Authorize implements Authorizer.
func (a AllowAll) Authorize(_ context.Context, _ string, token string) (Grant, error) {
	perm := a.Permission
	if perm == "" {
		perm = PermEdit
	}
	return Grant{Subject: token, Permission: perm}, nil
}

// Claims is the JWT payload the relay accepts. Channels lists the channel
// ids the bearer may join; "*" allows all.
type Claims struct {
	Channels   []string   `json:"channels"`
	Permission Permission `json:"perm"`
	jwt.RegisteredClaims
}

// JWTAuthorizer verifies HS256 tokens signed with a shared secret.
type JWTAuthorizer struct {
	secret []byte
}

// NewJWTAuthorizer creates an authorizer for secret.
func NewJWTAuthorizer(secret []byte) *JWTAuthorizer {
	return &JWTAuthorizer{secret: secret}
}

// Authorize implements Authorizer.
func (a *JWTAuthorizer) Authorize(_ context.Context, channel, token string) (Grant, error) {
	if token == "" {
		return Grant{}, fmt.Errorf("%w: missing token", ErrUnauthorized)
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !claims.Permission.Valid() {
		return Grant{}, fmt.Errorf("%w: unknown permission %q", ErrUnauthorized, claims.Permission)
	}
	if !slices.Contains(claims.Channels, "*") && !slices.Contains(claims.Channels, channel) {
		return Grant{}, fmt.Errorf("%w: channel %s not granted", ErrUnauthorized, channel)
	}
	return Grant{Subject: claims.Subject, Permission: claims.Permission}, nil
}

// IssueToken signs a token for subject. ttl <= 0 means no expiry.
func IssueToken(secret []byte, subject string, channels []string, perm Permission, ttl time.Duration) (string, error) {
	if !perm.Valid() {
		return "", fmt.Errorf("issue token: unknown permission %q", perm)
	}
	now := time.Now()
	claims := Claims{
		Channels:   channels,
		Permission: perm,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return signed, nil
}
