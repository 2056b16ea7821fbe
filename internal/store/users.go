package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	verrors "github.com/vitrina-search/vitrina/internal/errors"
)

// User is an account row. PasswordHash never leaves the service.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateUser inserts a new account. A duplicate email comes back as a
// validation error so the handler can answer 400 instead of 500.
func (s *Store) CreateUser(ctx context.Context, u User) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, email, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, password_hash, created_at`,
		u.ID, u.Email, u.Name, u.PasswordHash)

	out, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, verrors.ValidationError("email already registered", err)
		}
		return nil, dbError("failed to create user", err)
	}
	return out, nil
}

// UserByEmail fetches an account for login.
func (s *Store) UserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE email = $1`, email)

	out, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, verrors.NotFoundError("user not found")
	}
	if err != nil {
		return nil, dbError("failed to read user", err)
	}
	return out, nil
}

// UserByID fetches an account by its identifier.
func (s *Store) UserByID(ctx context.Context, userID string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, password_hash, created_at
		FROM users WHERE id = $1`, userID)

	out, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, verrors.NotFoundError("user not found")
	}
	if err != nil {
		return nil, dbError("failed to read user", err)
	}
	return out, nil
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
