package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenService signs and verifies session claims. It holds no state beyond
// the signing secret; tokens are never stored server-side.
type TokenService interface {
	TokenValidator
	SignClaims(claims *SessionClaims) (string, error)
	ValidateAllowExpired(raw string) (*SessionClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingSecret []byte
	issuer        string
	logger        Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(signingSecret []byte, issuer string, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		signingSecret: signingSecret,
		issuer:        issuer,
		logger:        logger,
	}
}

// SignClaims signs session claims using the configured signing secret.
func (ts *TokenServiceImpl) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingSecret)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Validate parses and validates a token string, returning structured claims
func (ts *TokenServiceImpl) Validate(raw string) (*SessionClaims, error) {
	return ts.parse(raw, false)
}

// ValidateAllowExpired verifies the signature but skips the expiry check.
// Only the renewal path may use this; the renewal deadline is enforced there.
func (ts *TokenServiceImpl) ValidateAllowExpired(raw string) (*SessionClaims, error) {
	return ts.parse(raw, true)
}

func (ts *TokenServiceImpl) parse(raw string, ignoreExpiration bool) (*SessionClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if ts.issuer != "" && !ignoreExpiration {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if ignoreExpiration {
		parserOptions = append(parserOptions, jwt.WithoutClaimsValidation())
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingSecret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode)
	}

	if claims, ok := token.Claims.(*SessionClaims); ok && token.Valid {
		return claims, nil
	}

	ts.logger.Error("TokenService validate could not decode claims")
	return nil, ErrTokenMalformed
}

var _ TokenService = (*TokenServiceImpl)(nil)
