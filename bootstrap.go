package identity

import (
	"context"

	"github.com/goliatone/go-errors"
)

// EnsureDefaultUser seeds an empty store with the configured default user,
// group, and membership. A store that already holds any user is left alone,
// so re-running it is a no-op. The three steps are individually idempotent
// rather than transactional: a partial run heals on the next start.
func EnsureDefaultUser(ctx context.Context, store Store, cfg Config) error {
	username := cfg.GetDefaultUsername()
	if username == "" {
		return nil
	}

	users, err := store.GetUsers(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to inspect store during bootstrap")
	}
	if len(users) > 0 {
		return nil
	}

	if _, err := store.AddUser(ctx, username, cfg.GetDefaultPassword()); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create default user")
	}

	group := cfg.GetDefaultGroup()
	if group == "" {
		return nil
	}

	if _, err := store.AddGroup(ctx, group); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create default group")
	}

	if _, err := store.AddUserToGroup(ctx, username, group); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to add default user to default group")
	}

	return nil
}
