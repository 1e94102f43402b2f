package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dualcast/backend/internal/models"
)

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an auth repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

// CreateUser inserts a new user.
func (r *Repository) CreateUser(ctx context.Context, email, passwordHash, fullName string) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, full_name, created_at, updated_at`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email, passwordHash, fullName).
		Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail returns a user by email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, created_at, updated_at
		FROM users WHERE email = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, email).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByID returns a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const q = `SELECT id, email, password_hash, full_name, created_at, updated_at
		FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SaveRefreshToken inserts a refresh token record.
func (r *Repository) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (token_hash, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, q, token.TokenHash, token.UserID, token.ExpiresAt, token.CreatedAt)
	return err
}

// ConsumeRefreshToken atomically removes and returns the record for tokenHash.
// The DELETE ... RETURNING hands the row to exactly one concurrent caller; all
// others see ErrNotFound. Never split into a lookup followed by a delete.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const q = `DELETE FROM refresh_tokens WHERE token_hash = $1
		RETURNING token_hash, user_id, expires_at, created_at`
	var t models.RefreshToken
	err := r.pool.QueryRow(ctx, q, tokenHash).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteRefreshToken removes a token record if present. No-op when absent.
func (r *Repository) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return err
}

// DeleteUserRefreshTokens removes every token for the user.
func (r *Repository) DeleteUserRefreshTokens(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return err
}

// TrimUserRefreshTokens keeps the newest keep tokens for the user and removes
// the rest, bounding sessions per principal.
func (r *Repository) TrimUserRefreshTokens(ctx context.Context, userID uuid.UUID, keep int) error {
	const q = `DELETE FROM refresh_tokens WHERE user_id = $1 AND token_hash NOT IN (
		SELECT token_hash FROM refresh_tokens WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2)`
	_, err := r.pool.Exec(ctx, q, userID, keep)
	return err
}

// DeleteExpiredRefreshTokens evicts tokens past their TTL.
func (r *Repository) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
