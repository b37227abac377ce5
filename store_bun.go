package identity

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// BunStore is the relational credential store: three tables, with the join
// table unique on (username, group_name). Multi-row mutations run inside a
// single transaction so they appear atomic to readers.
type BunStore struct {
	db     *bun.DB
	users  repository.Repository[*User]
	hasher PasswordAuthenticator
	logger Logger
}

type BunStoreOption func(*BunStore)

func WithBunStoreLogger(l Logger) BunStoreOption {
	return func(s *BunStore) {
		s.logger = l
	}
}

func WithBunStoreHasher(h PasswordAuthenticator) BunStoreOption {
	return func(s *BunStore) {
		s.hasher = h
	}
}

// NewBunStore creates a bun-backed Store. Call Initialize before use.
func NewBunStore(db *bun.DB, opts ...BunStoreOption) *BunStore {
	users := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	s := &BunStore{
		db:     db,
		users:  users,
		hasher: DefaultPasswordAuthenticator(),
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// Initialize creates the schema when missing. Safe to call multiple times.
func (s *BunStore) Initialize(ctx context.Context) error {
	models := []any{
		(*User)(nil),
		(*Group)(nil),
		(*GroupMembership)(nil),
	}

	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return wrapStoreError(err, "failed to create store tables")
		}
	}

	_, err := s.db.NewCreateIndex().
		Model((*GroupMembership)(nil)).
		Index("uq_user_groups_membership").
		Unique().
		IfNotExists().
		Column("username", "group_name").
		Exec(ctx)
	if err != nil {
		return wrapStoreError(err, "failed to create membership index")
	}

	return nil
}

func (s *BunStore) Close() error {
	return s.db.Close()
}

func (s *BunStore) AuthenticateUser(ctx context.Context, username, password string) (bool, error) {
	user, err := s.users.GetByIdentifier(ctx, username)
	if err != nil {
		// Same outcome for a missing user as for a bad password.
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, wrapStoreError(err, "failed to look up user during authentication")
	}

	if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		return false, nil
	}

	return true, nil
}

func (s *BunStore) GetUser(ctx context.Context, username string) (*User, error) {
	user, err := s.users.GetByIdentifier(ctx, username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, wrapStoreError(err, "failed to look up user")
	}

	groups, err := s.membershipNames(ctx, s.db, username)
	if err != nil {
		return nil, err
	}
	user.Groups = groups

	return user, nil
}

func (s *BunStore) GetUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	if err := s.db.NewSelect().Model(&users).Order("username ASC").Scan(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to list users")
	}

	var memberships []*GroupMembership
	if err := s.db.NewSelect().Model(&memberships).Order("group_name ASC").Scan(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to list memberships")
	}

	byUser := map[string][]string{}
	for _, m := range memberships {
		byUser[m.Username] = append(byUser[m.Username], m.GroupName)
	}

	for _, u := range users {
		groups := byUser[u.Username]
		if groups == nil {
			groups = []string{}
		}
		u.Groups = groups
	}

	return users, nil
}

func (s *BunStore) AddUser(ctx context.Context, username, password string) (bool, error) {
	_, err := s.users.GetByIdentifier(ctx, username)
	if err == nil {
		return false, nil
	}
	if !repository.IsRecordNotFound(err) {
		return false, wrapStoreError(err, "failed to check for existing user")
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return false, err
	}

	record := &User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, record); err != nil {
		return false, wrapStoreError(err, "failed to persist user")
	}

	return true, nil
}

func (s *BunStore) DeleteUser(ctx context.Context, username string) (bool, error) {
	deleted := false
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*User)(nil)).
			Where("username = ?", username).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		deleted = true

		_, err = tx.NewDelete().
			Model((*GroupMembership)(nil)).
			Where("username = ?", username).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, wrapStoreError(err, "failed to delete user")
	}

	return deleted, nil
}

func (s *BunStore) RenameUser(ctx context.Context, oldName, newName string) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		taken, err := tx.NewSelect().
			Model((*User)(nil)).
			Where("username = ?", newName).
			Exists(ctx)
		if err != nil {
			return wrapStoreError(err, "failed to check target username")
		}
		if taken {
			return errors.New("username already exists", errors.CategoryConflict).
				WithCode(errors.CodeConflict).
				WithMetadata(map[string]any{"username": newName})
		}

		res, err := tx.NewUpdate().
			Model((*User)(nil)).
			Set("username = ?", newName).
			Set("updated_at = ?", time.Now()).
			Where("username = ?", oldName).
			Exec(ctx)
		if err != nil {
			return wrapStoreError(err, "failed to rename user")
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrUserNotFound
		}

		_, err = tx.NewUpdate().
			Model((*GroupMembership)(nil)).
			Set("username = ?", newName).
			Where("username = ?", oldName).
			Exec(ctx)
		if err != nil {
			return wrapStoreError(err, "failed to move memberships")
		}
		return nil
	})

	return err
}

func (s *BunStore) SetUserPassword(ctx context.Context, username, password string) error {
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return err
	}
	return s.setUserColumn(ctx, username, "password_hash", hash)
}

func (s *BunStore) SetUserEmail(ctx context.Context, username, email string) error {
	return s.setUserColumn(ctx, username, "email", email)
}

func (s *BunStore) SetUserFirstName(ctx context.Context, username, firstName string) error {
	return s.setUserColumn(ctx, username, "first_name", firstName)
}

func (s *BunStore) SetUserLastName(ctx context.Context, username, lastName string) error {
	return s.setUserColumn(ctx, username, "last_name", lastName)
}

// setUserColumn updates one profile column. A missing user is a silent
// no-op: setters only fail on storage errors.
func (s *BunStore) setUserColumn(ctx context.Context, username, column, value string) error {
	_, err := s.db.NewUpdate().
		Model((*User)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now()).
		Where("username = ?", username).
		Exec(ctx)
	if err != nil {
		return wrapStoreError(err, "failed to update user")
	}
	return nil
}

func (s *BunStore) SetUserGroups(ctx context.Context, username string, groups []string) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*User)(nil)).
			Where("username = ?", username).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return nil
		}

		if _, err := tx.NewDelete().
			Model((*GroupMembership)(nil)).
			Where("username = ?", username).
			Exec(ctx); err != nil {
			return err
		}

		for _, group := range dedupe(groups) {
			membership := &GroupMembership{
				ID:        uuid.New(),
				Username:  username,
				GroupName: group,
			}
			if _, err := tx.NewInsert().Model(membership).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return wrapStoreError(err, "failed to replace user groups")
	}

	return nil
}

func (s *BunStore) Groups(ctx context.Context) ([]*Group, error) {
	var groups []*Group
	if err := s.db.NewSelect().Model(&groups).Order("name ASC").Scan(ctx); err != nil {
		return nil, wrapStoreError(err, "failed to list groups")
	}
	return groups, nil
}

func (s *BunStore) AddGroup(ctx context.Context, name string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*Group)(nil)).
		Where("name = ?", name).
		Exists(ctx)
	if err != nil {
		return false, wrapStoreError(err, "failed to check for existing group")
	}
	if exists {
		return false, nil
	}

	record := &Group{
		ID:   uuid.New(),
		Name: name,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return false, wrapStoreError(err, "failed to persist group")
	}

	return true, nil
}

// DeleteGroup removes the group row and its membership rows in the same
// transaction so no dangling reference survives.
func (s *BunStore) DeleteGroup(ctx context.Context, name string) (bool, error) {
	deleted := false
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*Group)(nil)).
			Where("name = ?", name).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		deleted = true

		_, err = tx.NewDelete().
			Model((*GroupMembership)(nil)).
			Where("group_name = ?", name).
			Exec(ctx)
		return err
	})
	if err != nil {
		return false, wrapStoreError(err, "failed to delete group")
	}

	return deleted, nil
}

func (s *BunStore) AddUserToGroup(ctx context.Context, username, group string) (bool, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return false, err
	}

	membership := &GroupMembership{
		ID:        uuid.New(),
		Username:  username,
		GroupName: group,
	}
	// the unique index makes a repeat insert a no-op
	if _, err := s.db.NewInsert().Model(membership).Ignore().Exec(ctx); err != nil {
		return false, wrapStoreError(err, "failed to persist membership")
	}

	return true, nil
}

func (s *BunStore) RemoveUserFromGroup(ctx context.Context, username, group string) (bool, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return false, err
	}

	_, err := s.db.NewDelete().
		Model((*GroupMembership)(nil)).
		Where("username = ?", username).
		Where("group_name = ?", group).
		Exec(ctx)
	if err != nil {
		return false, wrapStoreError(err, "failed to remove membership")
	}

	return true, nil
}

func (s *BunStore) UserGroups(ctx context.Context, username string) ([]string, error) {
	if err := s.requireUser(ctx, username); err != nil {
		return nil, err
	}
	return s.membershipNames(ctx, s.db, username)
}

func (s *BunStore) requireUser(ctx context.Context, username string) error {
	exists, err := s.db.NewSelect().
		Model((*User)(nil)).
		Where("username = ?", username).
		Exists(ctx)
	if err != nil {
		return wrapStoreError(err, "failed to look up user")
	}
	if !exists {
		return ErrUserNotFound
	}
	return nil
}

func (s *BunStore) membershipNames(ctx context.Context, db bun.IDB, username string) ([]string, error) {
	var memberships []*GroupMembership
	err := db.NewSelect().
		Model(&memberships).
		Where("username = ?", username).
		Scan(ctx)
	if err != nil {
		return nil, wrapStoreError(err, "failed to load memberships")
	}

	names := make([]string, 0, len(memberships))
	for _, m := range memberships {
		names = append(names, m.GroupName)
	}
	sort.Strings(names)

	return names, nil
}

var _ Store = (*BunStore)(nil)
