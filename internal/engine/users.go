package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/internal/access"
	"taskdesk/internal/domain"
	"taskdesk/internal/repo"
)

// ErrInvalidCredentials is returned for a bad username/password pair.
// The same error covers both unknown usernames and wrong passwords.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserCreateOptions are parameters for creating an account.
type UserCreateOptions struct {
	Username    string
	Email       string
	DisplayName string
	Password    string
	Role        string
}

func (e Engine) validateNewUser(opts UserCreateOptions) error {
	if strings.TrimSpace(opts.Username) == "" {
		return ValidationError{Field: "username", Reason: "must not be empty"}
	}
	if !strings.Contains(opts.Email, "@") {
		return ValidationError{Field: "email", Reason: "must be an email address"}
	}
	if len(opts.Password) < 8 {
		return ValidationError{Field: "password", Reason: "must be at least 8 characters"}
	}
	if !domain.ValidRole(opts.Role) {
		return ValidationError{Field: "role", Reason: "unknown value " + opts.Role}
	}
	return nil
}

func (e Engine) insertUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	now := e.nowRFC3339()
	u := domain.User{
		ID:           uuid.New().String(),
		Username:     strings.TrimSpace(opts.Username),
		Email:        strings.TrimSpace(opts.Email),
		DisplayName:  opts.DisplayName,
		Role:         opts.Role,
		Status:       domain.UserActive,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Username
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Register creates a self-service account. Self-registration always
// yields an active employee; elevated roles are granted by admins.
func (e Engine) Register(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	opts.Role = domain.RoleEmployee
	if err := e.validateNewUser(opts); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, opts)
}

// CreateUser creates an account with an explicit role. Admin only.
func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions, actorID string) (domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.User{}, access.ForbiddenError{Action: "create users"}
	}
	if opts.Role == "" {
		opts.Role = domain.RoleEmployee
	}
	if err := e.validateNewUser(opts); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, opts)
}

// BootstrapUser creates an account without an acting admin. Callers
// must guarantee the workspace is empty first; the CLI bootstrap path
// is the only one that does.
func (e Engine) BootstrapUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	if err := e.validateNewUser(opts); err != nil {
		return domain.User{}, err
	}
	return e.insertUser(ctx, opts)
}

// Authenticate verifies a username/password pair. Suspended or inactive
// accounts cannot sign in even with valid credentials.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if u.Status != domain.UserActive {
		return domain.User{}, access.ForbiddenError{Action: "sign in with a " + u.Status + " account"}
	}
	return u, nil
}

// GetUser returns a user record. Any active actor may look up users;
// this is needed to render assignee names.
func (e Engine) GetUser(ctx context.Context, id, actorID string) (domain.User, error) {
	if _, err := e.actor(ctx, actorID); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, id)
}

// ListUsers returns all accounts. Admin and manager only.
func (e Engine) ListUsers(ctx context.Context, actorID string) ([]domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == domain.RoleEmployee {
		return nil, access.ForbiddenError{Action: "list users"}
	}
	return e.Repo.ListUsers(ctx)
}

// SetUserRole changes an account's role. Admin only; an admin cannot
// demote themselves, which keeps at least one admin around.
func (e Engine) SetUserRole(ctx context.Context, id, role, actorID string) (domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.User{}, access.ForbiddenError{Action: "change roles"}
	}
	if !domain.ValidRole(role) {
		return domain.User{}, ValidationError{Field: "role", Reason: "unknown value " + role}
	}
	if id == actor.ID && role != domain.RoleAdmin {
		return domain.User{}, ValidationError{Field: "role", Reason: "cannot demote your own admin account"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserRole(ctx, tx, id, role, e.nowRFC3339()); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, id)
}

// SetUserStatus activates, deactivates or suspends an account. Admin
// only. Existing task assignments are untouched; a non-active assignee
// just stops being a valid target for new assignments.
func (e Engine) SetUserStatus(ctx context.Context, id, status, actorID string) (domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if actor.Role != domain.RoleAdmin {
		return domain.User{}, access.ForbiddenError{Action: "change account status"}
	}
	if !domain.ValidUserStatus(status) {
		return domain.User{}, ValidationError{Field: "status", Reason: "unknown value " + status}
	}
	if id == actor.ID && status != domain.UserActive {
		return domain.User{}, ValidationError{Field: "status", Reason: "cannot deactivate your own account"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserStatus(ctx, tx, id, status, e.nowRFC3339()); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, id)
}

// UpdateProfile lets a user change their own display name.
func (e Engine) UpdateProfile(ctx context.Context, displayName, actorID string) (domain.User, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(displayName) == "" {
		return domain.User{}, ValidationError{Field: "display_name", Reason: "must not be empty"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateUserProfile(ctx, tx, actor.ID, displayName, e.nowRFC3339()); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return e.Repo.GetUser(ctx, actor.ID)
}

// CreateAPIKey mints a key for the actor. The plaintext is returned
// once; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, name, actorID string) (string, domain.APIKey, error) {
	actor, err := e.actor(ctx, actorID)
	if err != nil {
		return "", domain.APIKey{}, err
	}
	plaintext := "td_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
	key := domain.APIKey{
		ID:        uuid.New().String(),
		UserID:    actor.ID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plaintext),
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return plaintext, key, nil
}

// ListAPIKeys returns the actor's keys (hashes only).
func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	if _, err := e.actor(ctx, actorID); err != nil {
		return nil, err
	}
	return e.Repo.ListAPIKeys(ctx, actorID)
}

// DeleteAPIKey revokes one of the actor's own keys.
func (e Engine) DeleteAPIKey(ctx context.Context, id, actorID string) error {
	if _, err := e.actor(ctx, actorID); err != nil {
		return err
	}
	return e.Repo.DeleteAPIKey(ctx, id, actorID)
}

// ResolveAPIKey maps a presented key to its owner.
func (e Engine) ResolveAPIKey(ctx context.Context, plaintext string) (domain.User, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(plaintext))
	if err != nil {
		return domain.User{}, err
	}
	return e.actor(ctx, key.UserID)
}
