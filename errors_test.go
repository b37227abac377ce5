package identity_test

import (
	"fmt"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestErrorPredicates(t *testing.T) {
	t.Run("IsTokenExpiredError", func(t *testing.T) {
		assert.True(t, identity.IsTokenExpiredError(identity.ErrTokenExpired))
		assert.True(t, identity.IsTokenExpiredError(fmt.Errorf("wrapped: %w", identity.ErrTokenExpired)))
		assert.False(t, identity.IsTokenExpiredError(identity.ErrTokenMalformed))
		assert.False(t, identity.IsTokenExpiredError(nil))
	})

	t.Run("IsMalformedError", func(t *testing.T) {
		assert.True(t, identity.IsMalformedError(identity.ErrTokenMalformed))
		assert.False(t, identity.IsMalformedError(identity.ErrTokenExpired))
		assert.False(t, identity.IsMalformedError(nil))
	})

	t.Run("IsNotFoundError", func(t *testing.T) {
		assert.True(t, identity.IsNotFoundError(identity.ErrUserNotFound))
		assert.True(t, identity.IsNotFoundError(identity.ErrGroupNotFound))
		assert.False(t, identity.IsNotFoundError(identity.ErrForbidden))
		assert.False(t, identity.IsNotFoundError(nil))
	})
}

func TestUniformOutcomes(t *testing.T) {
	// the two probe-resistant outcomes carry no distinguishing detail
	assert.Equal(t, "the credentials provided are invalid", identity.ErrInvalidCredentials.Message)
	assert.Equal(t, "access denied", identity.ErrForbidden.Message)
}
