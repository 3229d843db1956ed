package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"expenses/internal/core"
)

const userColumns = "id, email, password_hash, name, created_at"

func scanUser(row rowScanner) (core.User, error) {
	var (
		u    core.User
		name sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.CreatedAt); err != nil {
		return core.User{}, err
	}
	if name.Valid {
		u.Name = &name.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// CreateUser inserts a user. A taken email yields core.ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, u core.User) error {
	_, err := r.db.ExecContext(ctx,
		r.q(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.PasswordHash, u.Name, u.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, core.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by normalised email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return r.getUser(ctx, "email", email)
}

// GetUserByID looks a user up by id.
func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	return r.getUser(ctx, "id", id)
}

func (r *Repository) getUser(ctx context.Context, column, value string) (core.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		r.q(`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`),
		value,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, core.ErrNotFound
		}
		return core.User{}, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}
