package identity

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds     = "identity_invalid_credentials"
	TextCodeUserNotFound     = "identity_user_not_found"
	TextCodeGroupNotFound    = "identity_group_not_found"
	TextCodeTokenExpired     = "identity_token_expired"
	TextCodeTokenMalformed   = "identity_token_malformed"
	TextCodeRenewalExpired   = "identity_renewal_expired"
	TextCodeForbidden        = "identity_forbidden"
	TextCodeEmptyPassword    = "identity_empty_password"
	TextCodeStoreUnavailable = "identity_store_unavailable"
)

// ErrInvalidCredentials is the single outcome for any failed authentication.
// Unknown usernames and password mismatches are indistinguishable on purpose.
var ErrInvalidCredentials = errors.New("the credentials provided are invalid", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound is returned when an operation targets a user that does not exist.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrGroupNotFound is returned when an operation targets a group that does not exist.
var ErrGroupNotFound = errors.New("group not found", errors.CategoryNotFound).
	WithTextCode(TextCodeGroupNotFound).
	WithCode(errors.CodeNotFound)

// ErrTokenExpired is returned when a token's expiry instant has passed.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed covers bad signatures and undecodable tokens alike.
var ErrTokenMalformed = errors.New("token is malformed or has an invalid signature", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrRenewalExpired is returned when a token is presented for renewal after
// its renewal deadline. The signature may still be perfectly valid.
var ErrRenewalExpired = errors.New("token is beyond its renewal deadline", errors.CategoryAuth).
	WithTextCode(TextCodeRenewalExpired).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is the uniform authorization denial. Callers never learn
// whether the token was bad, expired, or simply lacked group membership.
var ErrForbidden = errors.New("access denied", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrNoEmptyPassword rejects empty passwords before they reach the hasher.
var ErrNoEmptyPassword = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(errors.CodeBadRequest)

// ErrStoreUnavailable wraps persistence failures the caller cannot act on.
var ErrStoreUnavailable = errors.New("credential store unavailable", errors.CategoryInternal).
	WithTextCode(TextCodeStoreUnavailable).
	WithCode(errors.CodeInternal)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenExpired {
		return true
	}

	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for undecodable or badly signed tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}

	var rich *errors.Error
	if errors.As(err, &rich) && rich.TextCode == TextCodeTokenMalformed {
		return true
	}

	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsNotFoundError reports whether err is one of the store's not-found outcomes.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsNotFound(err)
}

func wrapStoreError(err error, msg string) error {
	return errors.Wrap(err, ErrStoreUnavailable.Category, msg).
		WithTextCode(ErrStoreUnavailable.TextCode)
}
