package identity

import (
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

// Store backend selectors.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options is the concrete configuration value. Validate it once, before any
// component is constructed; components only see the read-only Config surface.
type Options struct {
	// SigningSecret signs every session token. Mandatory, no default.
	SigningSecret string

	// TokenLifetime is the token validity window in seconds.
	TokenLifetime int

	// TokenIdleTimeout is how long past expiry a token may still be
	// renewed, in seconds.
	TokenIdleTimeout int

	Issuer string

	// Bootstrap defaults, applied only to an empty store.
	DefaultUsername string
	DefaultPassword string
	DefaultGroup    string

	// StoreBackend selects the persistence engine: "file" or "sqlite".
	StoreBackend  string
	StoreFilePath string
	StoreDSN      string

	// Transport token lookup, in the "source:name" form the middleware
	// understands.
	ContextKey  string
	TokenLookup string
	AuthScheme  string
}

// WithDefaults returns a copy with the optional fields populated. The
// signing secret is deliberately left alone: it has no default.
func (o Options) WithDefaults() Options {
	if o.TokenLifetime == 0 {
		o.TokenLifetime = 3600
	}
	if o.TokenIdleTimeout == 0 {
		o.TokenIdleTimeout = 1209600
	}
	if o.Issuer == "" {
		o.Issuer = "go-identity"
	}
	if o.StoreBackend == "" {
		o.StoreBackend = BackendFile
	}
	if o.ContextKey == "" {
		o.ContextKey = "user"
	}
	if o.TokenLookup == "" {
		o.TokenLookup = "header:Authorization"
	}
	if o.AuthScheme == "" {
		o.AuthScheme = "Bearer"
	}
	return o
}

// Validate will run validation rules
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.SigningSecret, validation.Required),
		validation.Field(&o.TokenLifetime, validation.Required, validation.Min(1)),
		validation.Field(&o.TokenIdleTimeout, validation.Min(0)),
		validation.Field(&o.StoreBackend, validation.Required, validation.In(BackendFile, BackendSQLite)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid identity configuration")
	}

	switch o.StoreBackend {
	case BackendFile:
		if o.StoreFilePath == "" {
			return errors.New("store file path is required for the file backend", errors.CategoryValidation)
		}
	case BackendSQLite:
		if o.StoreDSN == "" {
			return errors.New("store DSN is required for the sqlite backend", errors.CategoryValidation)
		}
	}

	return nil
}

func (o Options) GetSigningSecret() string { return o.SigningSecret }
func (o Options) GetTokenLifetime() int { return o.TokenLifetime }
func (o Options) GetTokenIdleTimeout() int { return o.TokenIdleTimeout }
func (o Options) GetIssuer() string { return o.Issuer }
func (o Options) GetDefaultUsername() string { return o.DefaultUsername }
func (o Options) GetDefaultPassword() string { return o.DefaultPassword }
func (o Options) GetDefaultGroup() string { return o.DefaultGroup }
func (o Options) GetStoreBackend() string { return o.StoreBackend }
func (o Options) GetStoreFilePath() string { return o.StoreFilePath }
func (o Options) GetStoreDSN() string { return o.StoreDSN }
func (o Options) GetContextKey() string { return o.ContextKey }
func (o Options) GetTokenLookup() string { return o.TokenLookup }
func (o Options) GetAuthScheme() string { return o.AuthScheme }

var _ Config = Options{}
