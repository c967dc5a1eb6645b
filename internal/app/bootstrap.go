package app

import (
	"context"
	"errors"

	"taskdesk/internal/domain"
	"taskdesk/internal/engine"
	"taskdesk/internal/repo"
)

// ErrAlreadyBootstrapped is returned when Bootstrap runs against a
// workspace that already has accounts.
var ErrAlreadyBootstrapped = errors.New("workspace already has users")

// Bootstrap creates the first account in an empty workspace. Role
// checks are skipped only for this one insert; every later account is
// created by an admin through the engine. The first account is always
// an admin so the workspace stays administrable.
func Bootstrap(ctx context.Context, e engine.Engine, opts engine.UserCreateOptions) (domain.User, error) {
	n, err := e.Repo.CountUsers(ctx)
	if err != nil {
		return domain.User{}, err
	}
	if n > 0 {
		return domain.User{}, ErrAlreadyBootstrapped
	}
	opts.Role = domain.RoleAdmin
	return e.BootstrapUser(ctx, opts)
}

// ResolveActor maps a CLI --actor value (username or user id) to the
// account it names.
func ResolveActor(ctx context.Context, r repo.Repo, actor string) (domain.User, error) {
	if actor == "" {
		return domain.User{}, errors.New("--actor is required")
	}
	u, err := r.GetUserByUsername(ctx, actor)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	return r.GetUser(ctx, actor)
}
