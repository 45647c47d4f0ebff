package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/loyalty-api/internal/auth"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
)

// User is an account row as stored.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Points       int64
	CreatedAt    time.Time
}

// UsersRepo manages account rows and their point balances.
type UsersRepo struct {
	Pool *pgxpool.Pool
}

// UserPoints returns the current loyalty balance for a user.
func (r UsersRepo) UserPoints(ctx context.Context, userID uuid.UUID) (int64, error) {
	var points int64
	err := r.Pool.QueryRow(ctx,
		`SELECT loyalty_points FROM users WHERE id = $1 AND tenant_id = $2`,
		userID, tenantSlug(ctx)).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrUserNotFound
		}
		return 0, err
	}
	return points, nil
}

// UserByEmail returns the account registered with the given email.
func (r UsersRepo) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := r.Pool.QueryRow(ctx,
		`SELECT id, email, password_hash, loyalty_points, created_at
		 FROM users WHERE email = $1 AND tenant_id = $2`,
		email, tenantSlug(ctx)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Points, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, loyalty.ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

// AccountByEmail adapts the user row to the auth handler's credential view.
func (r UsersRepo) AccountByEmail(ctx context.Context, email string) (auth.Account, error) {
	u, err := r.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, loyalty.ErrUserNotFound) {
			return auth.Account{}, auth.ErrAccountNotFound
		}
		return auth.Account{}, err
	}
	return auth.Account{ID: u.ID.String(), PasswordHash: u.PasswordHash}, nil
}

// CreateUser inserts a new account with an initial point balance.
func (r UsersRepo) CreateUser(ctx context.Context, email, passwordHash string, points int64) (User, error) {
	u := User{ID: uuid.New(), Email: email, PasswordHash: passwordHash, Points: points}
	err := r.Pool.QueryRow(ctx,
		`INSERT INTO users (id, tenant_id, email, password_hash, loyalty_points)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		u.ID, tenantSlug(ctx), email, passwordHash, points).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("create user %s: %w", email, uniqueViolation(err, "email already registered"))
	}
	return u, nil
}
