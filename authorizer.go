package identity

import (
	"context"
)

// Authorizer is the allow/deny gate for bearer tokens. Both decision modes
// require a signature-verified, non-expired token and fail closed: any
// decode problem or failed test surfaces the same Forbidden outcome, while
// the actual cause only reaches the logs.
type Authorizer struct {
	validator TokenValidator
	groups    GroupLookup
	logger    Logger
}

type AuthorizerOption func(*Authorizer)

// WithGroupLookup enables the stale-claims fallback: when the token's
// cached groups fail the test, the subject's live membership is fetched
// once and retested. Without it the gate only ever sees the snapshot.
func WithGroupLookup(lookup GroupLookup) AuthorizerOption {
	return func(a *Authorizer) {
		a.groups = lookup
	}
}

func WithAuthorizerLogger(l Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = l
	}
}

// NewAuthorizer returns a new Authorizer
func NewAuthorizer(validator TokenValidator, opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		validator: validator,
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// AuthorizeAny permits any request carrying a verifiable, non-expired
// token. It applies no subject or group test.
func (a *Authorizer) AuthorizeAny(ctx context.Context, raw string) (*SessionClaims, error) {
	claims, err := a.validator.Validate(raw)
	if err != nil {
		return nil, a.deny("token validation failed", "error", err)
	}
	return claims, nil
}

// AuthorizeUser permits the request iff the token's subject is on the
// allow-list.
func (a *Authorizer) AuthorizeUser(ctx context.Context, raw string, allowedUsers []string) (*SessionClaims, error) {
	claims, err := a.validator.Validate(raw)
	if err != nil {
		return nil, a.deny("token validation failed", "error", err)
	}

	subject := claims.Subject()
	for _, allowed := range allowedUsers {
		if subject == allowed {
			return claims, nil
		}
	}

	return nil, a.deny("subject not in allow list", "subject", subject)
}

// AuthorizeGroups permits the request iff the token's groups intersect the
// allow-list. A token without a groups claim is denied outright. When the
// cached snapshot misses and a group lookup is available, the subject's
// current membership is fetched once and the intersection retested, so a
// membership granted after issuance works without re-authentication.
func (a *Authorizer) AuthorizeGroups(ctx context.Context, raw string, allowedGroups []string) (*SessionClaims, error) {
	claims, err := a.validator.Validate(raw)
	if err != nil {
		return nil, a.deny("token validation failed", "error", err)
	}

	if !claims.HasGroups() {
		return nil, a.deny("token carries no groups claim", "subject", claims.Subject())
	}

	if intersects(claims.GroupNames(), allowedGroups) {
		return claims, nil
	}

	if a.groups != nil {
		current, err := a.groups.UserGroups(ctx, claims.Subject())
		if err != nil {
			return nil, a.deny("group fallback lookup failed", "subject", claims.Subject(), "error", err)
		}
		if intersects(current, allowedGroups) {
			return claims, nil
		}
	}

	return nil, a.deny("insufficient group membership", "subject", claims.Subject())
}

// deny logs the real cause and returns the uniform outcome.
func (a *Authorizer) deny(reason string, args ...any) error {
	a.logger.Debug("Authorization denied: "+reason, args...)
	return ErrForbidden
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
