package identity

import (
	"context"
	"database/sql"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Store is the credential store contract. Both backends satisfy it
// identically; callers never see which engine is behind it.
//
// Boolean results follow the create/delete conventions of the contract:
// AddUser and AddGroup return false, not an error, when the name is taken;
// DeleteUser and DeleteGroup return false when the target is absent;
// membership operations are idempotent and report success for no-op
// repeats, but fail with a not-found error when the user does not exist.
//
// Every mutation persists durably before returning, and appears atomic to
// concurrent readers: the file backend rewrites the whole document through
// a rename, the relational backend uses transactions.
type Store interface {
	GroupLookup

	Initialize(ctx context.Context) error
	Close() error

	AuthenticateUser(ctx context.Context, username, password string) (bool, error)

	GetUser(ctx context.Context, username string) (*User, error)
	GetUsers(ctx context.Context) ([]*User, error)
	AddUser(ctx context.Context, username, password string) (bool, error)
	DeleteUser(ctx context.Context, username string) (bool, error)
	RenameUser(ctx context.Context, oldName, newName string) error

	SetUserPassword(ctx context.Context, username, password string) error
	SetUserEmail(ctx context.Context, username, email string) error
	SetUserFirstName(ctx context.Context, username, firstName string) error
	SetUserLastName(ctx context.Context, username, lastName string) error
	SetUserGroups(ctx context.Context, username string, groups []string) error

	Groups(ctx context.Context) ([]*Group, error)
	AddGroup(ctx context.Context, name string) (bool, error)
	DeleteGroup(ctx context.Context, name string) (bool, error)

	AddUserToGroup(ctx context.Context, username, group string) (bool, error)
	RemoveUserFromGroup(ctx context.Context, username, group string) (bool, error)
}

// NewStore builds the backend the configuration selects. The choice is made
// once, here; there is no runtime switching.
func NewStore(cfg Config) (Store, error) {
	switch cfg.GetStoreBackend() {
	case BackendFile:
		return NewFileStore(cfg.GetStoreFilePath()), nil
	case BackendSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.GetStoreDSN())
		if err != nil {
			return nil, wrapStoreError(err, "failed to open sqlite database")
		}
		db := bun.NewDB(sqldb, sqlitedialect.New())
		return NewBunStore(db), nil
	default:
		return nil, errors.New("unknown store backend", errors.CategoryValidation).
			WithMetadata(map[string]any{"backend": cfg.GetStoreBackend()})
	}
}
