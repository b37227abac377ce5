package identity

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the options the core consumes. Implementations are expected
// to be immutable and fully populated before any component is constructed.
type Config interface {
	GetSigningSecret() string
	GetTokenLifetime() int
	GetTokenIdleTimeout() int
	GetIssuer() string
	GetDefaultUsername() string
	GetDefaultPassword() string
	GetDefaultGroup() string
	GetStoreBackend() string
	GetStoreFilePath() string
	GetStoreDSN() string
	GetContextKey() string
	GetTokenLookup() string
	GetAuthScheme() string
}

// TokenValidator verifies a raw token and returns its claims
type TokenValidator interface {
	Validate(raw string) (*SessionClaims, error)
}

// GroupLookup is the optional store capability the authorization gate uses
// to re-check a subject's live membership when the token's cached groups
// fail an authorization test. A gate built without it never falls back.
type GroupLookup interface {
	UserGroups(ctx context.Context, username string) ([]string, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
