package identity_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFileStore(t *testing.T) (*identity.FileStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "identity.json")
	store := identity.NewFileStore(path, identity.WithFileStoreHasher(plainHasher{}))
	require.NoError(t, store.Initialize(context.Background()))

	return store, path
}

func TestFileStoreInitialize(t *testing.T) {
	ctx := context.Background()

	t.Run("creates the document when the file is missing", func(t *testing.T) {
		_, path := setupFileStore(t)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)

		var doc map[string]any
		require.NoError(t, json.Unmarshal(raw, &doc))
		assert.Contains(t, doc, "users")
		assert.Contains(t, doc, "groups")
	})

	t.Run("loads an existing document", func(t *testing.T) {
		store, path := setupFileStore(t)

		ok, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, store.Close())

		reopened := identity.NewFileStore(path, identity.WithFileStoreHasher(plainHasher{}))
		require.NoError(t, reopened.Initialize(ctx))

		user, err := reopened.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("rejects a corrupt document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "identity.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

		store := identity.NewFileStore(path)
		assert.Error(t, store.Initialize(ctx))
	})

	t.Run("operations fail before Initialize", func(t *testing.T) {
		store := identity.NewFileStore(filepath.Join(t.TempDir(), "identity.json"))

		_, err := store.GetUsers(ctx)
		assert.Error(t, err)
	})
}

func TestFileStoreUsers(t *testing.T) {
	ctx := context.Background()

	t.Run("add and fetch", func(t *testing.T) {
		store, _ := setupFileStore(t)

		ok, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)
		assert.True(t, ok)

		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.NotNil(t, user.Groups)
		assert.Empty(t, user.Groups)

		users, err := store.GetUsers(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("duplicate add keeps the original password", func(t *testing.T) {
		store, _ := setupFileStore(t)

		ok, err := store.AddUser(ctx, "alice", "original")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = store.AddUser(ctx, "alice", "usurper")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.AuthenticateUser(ctx, "alice", "original")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.AuthenticateUser(ctx, "alice", "usurper")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty password is rejected", func(t *testing.T) {
		store, _ := setupFileStore(t)

		_, err := store.AddUser(ctx, "alice", "")
		assert.ErrorIs(t, err, identity.ErrNoEmptyPassword)

		_, err = store.GetUser(ctx, "alice")
		assert.Error(t, err)
	})

	t.Run("unknown user lookup", func(t *testing.T) {
		store, _ := setupFileStore(t)

		user, err := store.GetUser(ctx, "ghost")
		assert.Nil(t, user)
		assert.True(t, identity.IsNotFoundError(err))
	})

	t.Run("delete reports presence", func(t *testing.T) {
		store, _ := setupFileStore(t)

		_, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)

		ok, err := store.DeleteUser(ctx, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.DeleteUser(ctx, "alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestFileStoreAuthenticate(t *testing.T) {
	ctx := context.Background()
	store, _ := setupFileStore(t)

	_, err := store.AddUser(ctx, "alice", "secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"valid credentials", "alice", "secret", true},
		{"wrong password", "alice", "nope", false},
		{"unknown user", "ghost", "secret", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := store.AuthenticateUser(ctx, tt.username, tt.password)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestFileStoreRenameUser(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the record and keeps memberships", func(t *testing.T) {
		store, _ := setupFileStore(t)

		_, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)
		_, err = store.AddGroup(ctx, "ops")
		require.NoError(t, err)
		_, err = store.AddUserToGroup(ctx, "alice", "ops")
		require.NoError(t, err)

		require.NoError(t, store.RenameUser(ctx, "alice", "alicia"))

		_, err = store.GetUser(ctx, "alice")
		assert.True(t, identity.IsNotFoundError(err))

		user, err := store.GetUser(ctx, "alicia")
		require.NoError(t, err)
		assert.Contains(t, user.Groups, "ops")

		ok, err := store.AuthenticateUser(ctx, "alicia", "secret")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("missing source fails", func(t *testing.T) {
		store, _ := setupFileStore(t)

		err := store.RenameUser(ctx, "ghost", "anything")
		assert.True(t, identity.IsNotFoundError(err))
	})

	t.Run("taken target fails and nothing changes", func(t *testing.T) {
		store, _ := setupFileStore(t)

		_, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)
		_, err = store.AddUser(ctx, "bob", "secret")
		require.NoError(t, err)

		err = store.RenameUser(ctx, "alice", "bob")
		assert.Error(t, err)

		_, err = store.GetUser(ctx, "alice")
		assert.NoError(t, err)
	})
}

func TestFileStoreSetters(t *testing.T) {
	ctx := context.Background()
	store, _ := setupFileStore(t)

	_, err := store.AddUser(ctx, "alice", "secret")
	require.NoError(t, err)

	t.Run("update profile fields", func(t *testing.T) {
		require.NoError(t, store.SetUserEmail(ctx, "alice", "alice@example.com"))
		require.NoError(t, store.SetUserFirstName(ctx, "alice", "Alice"))
		require.NoError(t, store.SetUserLastName(ctx, "alice", "Doe"))

		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", user.Email)
		assert.Equal(t, "Alice", user.FirstName)
		assert.Equal(t, "Doe", user.LastName)
		assert.NotNil(t, user.UpdatedAt)
	})

	t.Run("change password", func(t *testing.T) {
		require.NoError(t, store.SetUserPassword(ctx, "alice", "rotated"))

		ok, err := store.AuthenticateUser(ctx, "alice", "rotated")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.AuthenticateUser(ctx, "alice", "secret")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("replace groups wholesale with dedupe", func(t *testing.T) {
		require.NoError(t, store.SetUserGroups(ctx, "alice", []string{"ops", "dev", "ops"}))

		groups, err := store.UserGroups(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"ops", "dev"}, groups)
	})

	t.Run("setters ignore missing users", func(t *testing.T) {
		assert.NoError(t, store.SetUserEmail(ctx, "ghost", "ghost@example.com"))
		assert.NoError(t, store.SetUserGroups(ctx, "ghost", []string{"ops"}))
	})
}

func TestFileStoreGroups(t *testing.T) {
	ctx := context.Background()

	t.Run("add list delete", func(t *testing.T) {
		store, _ := setupFileStore(t)

		ok, err := store.AddGroup(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.AddGroup(ctx, "ops")
		require.NoError(t, err)
		assert.False(t, ok)

		groups, err := store.Groups(ctx)
		require.NoError(t, err)
		require.Len(t, groups, 1)
		assert.Equal(t, "ops", groups[0].Name)

		ok, err = store.DeleteGroup(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.DeleteGroup(ctx, "ops")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("delete strips memberships", func(t *testing.T) {
		store, _ := setupFileStore(t)

		_, err := store.AddUser(ctx, "alice", "secret")
		require.NoError(t, err)
		_, err = store.AddGroup(ctx, "ops")
		require.NoError(t, err)
		_, err = store.AddUserToGroup(ctx, "alice", "ops")
		require.NoError(t, err)

		ok, err := store.DeleteGroup(ctx, "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		groups, err := store.UserGroups(ctx, "alice")
		require.NoError(t, err)
		assert.Empty(t, groups)
	})
}

func TestFileStoreMembership(t *testing.T) {
	ctx := context.Background()
	store, _ := setupFileStore(t)

	_, err := store.AddUser(ctx, "alice", "secret")
	require.NoError(t, err)

	t.Run("add is idempotent", func(t *testing.T) {
		ok, err := store.AddUserToGroup(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.AddUserToGroup(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		groups, err := store.UserGroups(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"ops"}, groups)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		ok, err := store.RemoveUserFromGroup(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.RemoveUserFromGroup(ctx, "alice", "ops")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown user fails", func(t *testing.T) {
		_, err := store.AddUserToGroup(ctx, "ghost", "ops")
		assert.True(t, identity.IsNotFoundError(err))

		_, err = store.RemoveUserFromGroup(ctx, "ghost", "ops")
		assert.True(t, identity.IsNotFoundError(err))
	})
}

func TestFileStorePersistence(t *testing.T) {
	ctx := context.Background()
	store, path := setupFileStore(t)

	_, err := store.AddUser(ctx, "alice", "secret")
	require.NoError(t, err)

	t.Run("no temp file left behind", func(t *testing.T) {
		_, err := os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("hash never round trips through the API", func(t *testing.T) {
		user, err := store.GetUser(ctx, "alice")
		require.NoError(t, err)

		raw, err := json.Marshal(user)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "plain$secret")
	})
}
