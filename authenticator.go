package identity

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Authenticator issues and renews session tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*LoginResult, error)
	Renew(ctx context.Context, raw string) (*LoginResult, error)
}

// LoginResult is what a successful login or renewal hands back to the
// transport: the signed token plus the snapshot it was built from.
type LoginResult struct {
	Token     string    `json:"token"`
	User      *User     `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
	RenewBy   time.Time `json:"renew_by"`
}

// Auther orchestrates authentication against the credential store and the
// token lifecycle: issue at login, re-issue during the renewal window.
type Auther struct {
	store        Store
	tokenService TokenService
	lifetime     time.Duration
	idleTimeout  time.Duration
	issuer       string
	logger       Logger
	now          func() time.Time
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(store Store, cfg Config) *Auther {
	tokenService := NewTokenService(
		[]byte(cfg.GetSigningSecret()),
		cfg.GetIssuer(),
		defLogger{},
	)

	return &Auther{
		store:        store,
		tokenService: tokenService,
		lifetime:     time.Duration(cfg.GetTokenLifetime()) * time.Second,
		idleTimeout:  time.Duration(cfg.GetTokenIdleTimeout()) * time.Second,
		issuer:       cfg.GetIssuer(),
		logger:       defLogger{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	return s
}

// WithTokenService overrides the codec, e.g. to share one instance with an
// Authorizer.
func (s *Auther) WithTokenService(ts TokenService) *Auther {
	s.tokenService = ts
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login authenticates the credentials and issues a fresh token. Every
// failure mode collapses into the one invalid-credentials outcome so the
// response cannot be used to probe for usernames.
func (s *Auther) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ok, err := s.store.AuthenticateUser(ctx, username, password)
	if err != nil {
		s.logger.Error("Login store error", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to verify credentials")
	}

	if !ok {
		s.logger.Debug("Login rejected", "username", username)
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		s.logger.Error("Login snapshot error", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user snapshot")
	}

	return s.issue(user)
}

// Renew exchanges a token inside its renewal window for a fresh one. The
// signature must verify but the token may already be expired; the claims
// are rebuilt from current store state, never from the old token.
func (s *Auther) Renew(ctx context.Context, raw string) (*LoginResult, error) {
	claims, err := s.tokenService.ValidateAllowExpired(raw)
	if err != nil {
		s.logger.Debug("Renew token rejected", "error", err)
		return nil, err
	}

	deadline := claims.RenewalDeadline()
	if deadline.IsZero() || s.now().After(deadline) {
		return nil, ErrRenewalExpired
	}

	user, err := s.store.GetUser(ctx, claims.Subject())
	if err != nil {
		if IsNotFoundError(err) {
			// subject deleted since issuance
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("Renew snapshot error", "error", err)
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user snapshot")
	}

	return s.issue(user)
}

func (s *Auther) issue(user *User) (*LoginResult, error) {
	now := s.now()
	expiresAt := now.Add(s.lifetime)
	renewBy := expiresAt.Add(s.idleTimeout)

	groups := user.Groups
	if groups == nil {
		groups = []string{}
	}

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username:  user.Username,
		Groups:    groups,
		RenewBy:   jwt.NewNumericDate(renewBy),
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	}

	token, err := s.tokenService.SignClaims(claims)
	if err != nil {
		s.logger.Error("Failed to sign session claims", "error", err)
		return nil, err
	}

	return &LoginResult{
		Token:     token,
		User:      user,
		ExpiresAt: expiresAt,
		RenewBy:   renewBy,
	}, nil
}

var _ Authenticator = (*Auther)(nil)
