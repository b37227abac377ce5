package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func signTestToken(t *testing.T, service identity.TokenService, subject string, groups []string) string {
	t.Helper()

	claims := &identity.SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "authz-test",
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Username: subject,
		Groups:   groups,
	}

	raw, err := service.SignClaims(claims)
	require.NoError(t, err)
	return raw
}

func TestAuthorizeAny(t *testing.T) {
	ctx := context.Background()
	service := identity.NewTokenService([]byte("authz-secret"), "authz-test", nil)
	authorizer := identity.NewAuthorizer(service)

	t.Run("any valid token passes", func(t *testing.T) {
		raw := signTestToken(t, service, "alice", nil)

		claims, err := authorizer.AuthorizeAny(ctx, raw)

		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject())
	})

	t.Run("invalid token is denied", func(t *testing.T) {
		claims, err := authorizer.AuthorizeAny(ctx, "garbage")

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrForbidden)
	})
}

func TestAuthorizeUser(t *testing.T) {
	ctx := context.Background()
	service := identity.NewTokenService([]byte("authz-secret"), "authz-test", nil)
	authorizer := identity.NewAuthorizer(service)

	t.Run("subject on the allow list passes", func(t *testing.T) {
		raw := signTestToken(t, service, "alice", []string{"ops"})

		claims, err := authorizer.AuthorizeUser(ctx, raw, []string{"bob", "alice"})

		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject())
	})

	t.Run("subject off the allow list is denied", func(t *testing.T) {
		raw := signTestToken(t, service, "mallory", []string{"ops"})

		claims, err := authorizer.AuthorizeUser(ctx, raw, []string{"alice"})

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrForbidden)
	})

	t.Run("bad token is denied with the same outcome", func(t *testing.T) {
		_, badToken := authorizer.AuthorizeUser(ctx, "garbage", []string{"alice"})
		raw := signTestToken(t, service, "mallory", nil)
		_, wrongUser := authorizer.AuthorizeUser(ctx, raw, []string{"alice"})

		assert.ErrorIs(t, badToken, identity.ErrForbidden)
		assert.Equal(t, badToken.Error(), wrongUser.Error())
	})
}

func TestAuthorizeGroups(t *testing.T) {
	ctx := context.Background()
	service := identity.NewTokenService([]byte("authz-secret"), "authz-test", nil)

	t.Run("cached group intersection passes", func(t *testing.T) {
		authorizer := identity.NewAuthorizer(service)
		raw := signTestToken(t, service, "alice", []string{"ops", "dev"})

		claims, err := authorizer.AuthorizeGroups(ctx, raw, []string{"admin", "ops"})

		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject())
	})

	t.Run("token without a groups claim is denied outright", func(t *testing.T) {
		lookup := &MockGroupLookup{}
		authorizer := identity.NewAuthorizer(service, identity.WithGroupLookup(lookup))
		raw := signTestToken(t, service, "alice", nil)

		claims, err := authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrForbidden)
		// no fallback for foreign tokens
		lookup.AssertNotCalled(t, "UserGroups", mock.Anything, mock.Anything)
	})

	t.Run("stale claims fall back to the live lookup", func(t *testing.T) {
		lookup := &MockGroupLookup{}
		lookup.On("UserGroups", mock.Anything, "alice").Return([]string{"ops"}, nil).Once()

		authorizer := identity.NewAuthorizer(service, identity.WithGroupLookup(lookup))
		// issued before alice joined ops
		raw := signTestToken(t, service, "alice", []string{})

		claims, err := authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})

		require.NoError(t, err)
		assert.Equal(t, "alice", claims.Subject())
		lookup.AssertExpectations(t)
	})

	t.Run("fallback miss is denied", func(t *testing.T) {
		lookup := &MockGroupLookup{}
		lookup.On("UserGroups", mock.Anything, "alice").Return([]string{"dev"}, nil).Once()

		authorizer := identity.NewAuthorizer(service, identity.WithGroupLookup(lookup))
		raw := signTestToken(t, service, "alice", []string{"dev"})

		claims, err := authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrForbidden)
		lookup.AssertExpectations(t)
	})

	t.Run("fallback lookup error is denied, not surfaced", func(t *testing.T) {
		lookup := &MockGroupLookup{}
		lookup.On("UserGroups", mock.Anything, "alice").Return(nil, identity.ErrUserNotFound).Once()

		authorizer := identity.NewAuthorizer(service, identity.WithGroupLookup(lookup))
		raw := signTestToken(t, service, "alice", []string{})

		claims, err := authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})

		assert.Nil(t, claims)
		assert.ErrorIs(t, err, identity.ErrForbidden)
	})

	t.Run("no lookup configured means the snapshot decides", func(t *testing.T) {
		authorizer := identity.NewAuthorizer(service)
		raw := signTestToken(t, service, "alice", []string{"dev"})

		_, err := authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})

		assert.ErrorIs(t, err, identity.ErrForbidden)
	})

	t.Run("expired token is denied", func(t *testing.T) {
		authorizer := identity.NewAuthorizer(service)
		claims := &identity.SessionClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "authz-test",
				Subject:   "alice",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
			Groups: []string{"ops"},
		}
		raw, err := service.SignClaims(claims)
		require.NoError(t, err)

		_, err = authorizer.AuthorizeGroups(ctx, raw, []string{"ops"})
		assert.ErrorIs(t, err, identity.ErrForbidden)
	})
}
