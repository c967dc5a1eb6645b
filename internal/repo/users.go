package repo

import (
	"context"
	"database/sql"

	"taskdesk/internal/domain"
)

const userColumns = `id,username,email,display_name,role,status,password_hash,created_at,updated_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	err := scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.Role, &u.Status,
		&u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

// InsertUser stores a user, reporting ConflictError when the username or
// email is already taken. The pre-checks run in the same transaction as
// the insert so concurrent registrations cannot slip between them.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username=?`, u.Username).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ConflictError{Field: "username"}
	}
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email=?`, u.Email).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return ConflictError{Field: "email"}
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.DisplayName, u.Role, u.Status, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username=?`, username)
	return scanUser(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// UpdateUserRole changes a user's role. Role changes go through the
// engine, which restricts them to admins.
func (r Repo) UpdateUserRole(ctx context.Context, tx *sql.Tx, id, role, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET role=?, updated_at=? WHERE id=?`, role, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserStatus changes an account status (active/inactive/suspended).
func (r Repo) UpdateUserStatus(ctx context.Context, tx *sql.Tx, id, status, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET status=?, updated_at=? WHERE id=?`, status, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateUserProfile updates self-service profile fields.
func (r Repo) UpdateUserProfile(ctx context.Context, tx *sql.Tx, id, displayName, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET display_name=?, updated_at=? WHERE id=?`, displayName, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
