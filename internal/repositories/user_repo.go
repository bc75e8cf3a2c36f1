package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"servicehub/internal/common"
	"servicehub/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepository persists user records. Lookups return the public projection
// unless the WithSecrets variant is used.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDWithSecrets(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmailWithSecrets(ctx context.Context, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	MarkEmailVerified(ctx context.Context, id uuid.UUID) error

	SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	SwapRefreshToken(ctx context.Context, id uuid.UUID, current, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
	ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

const userColumns = `id, name, email, role, is_admin, location, contact_number, profile_image, bio, is_active, is_email_verified, created_at, updated_at`

const userSecretColumns = userColumns + `, password_hash, refresh_token, refresh_token_expires_at`

type userRepo struct {
	db Database
}

func NewUserRepo(db Database) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, is_admin, location, contact_number, profile_image, bio, is_active, is_email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.IsAdmin, user.Location,
		user.ContactNumber, user.ProfileImage, user.Bio, user.IsActive, user.IsEmailVerified,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return &common.ConflictError{Field: "email", Message: "an account with this email already exists"}
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id), false)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRow(ctx, query, email), false)
}

func (r *userRepo) GetByIDWithSecrets(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userSecretColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id), true)
}

func (r *userRepo) GetByEmailWithSecrets(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userSecretColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRow(ctx, query, email), true)
}

// UpdatePassword stores a new hash and drops the refresh token in the same statement.
func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, refresh_token = NULL, refresh_token_expires_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, passwordHash)
}

// SetActive soft-deletes or restores a user. Deactivation also revokes the refresh token.
func (r *userRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE users
		SET is_active = $2,
		    refresh_token = CASE WHEN $2 THEN refresh_token ELSE NULL END,
		    refresh_token_expires_at = CASE WHEN $2 THEN refresh_token_expires_at ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, active)
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET is_email_verified = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

// SetRefreshToken overwrites the persisted refresh token hash, invalidating any prior one.
func (r *userRepo) SetRefreshToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	query := `UPDATE users SET refresh_token = $2, refresh_token_expires_at = $3 WHERE id = $1`
	return r.execOne(ctx, query, id, token, expiresAt)
}

// SwapRefreshToken replaces the refresh token hash only if the stored value
// still equals current. It reports false when another rotation or a revocation won.
func (r *userRepo) SwapRefreshToken(ctx context.Context, id uuid.UUID, current, next string, expiresAt time.Time) (bool, error) {
	query := `
		UPDATE users
		SET refresh_token = $3, refresh_token_expires_at = $4
		WHERE id = $1 AND refresh_token = $2 AND is_active
	`
	tag, err := r.db.Exec(ctx, query, id, current, next, expiresAt)
	if err != nil {
		return false, fmt.Errorf("swap refresh token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepo) ClearRefreshToken(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET refresh_token = NULL, refresh_token_expires_at = NULL WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *userRepo) ClearExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET refresh_token = NULL, refresh_token_expires_at = NULL
		WHERE refresh_token IS NOT NULL AND refresh_token_expires_at < $1
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("clear expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *userRepo) execOne(ctx context.Context, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.NewNotFoundError("user")
	}
	return nil
}

func scanUser(row pgx.Row, withSecrets bool) (*models.User, error) {
	user := &models.User{}
	dest := []interface{}{
		&user.ID, &user.Name, &user.Email, &user.Role, &user.IsAdmin, &user.Location,
		&user.ContactNumber, &user.ProfileImage, &user.Bio, &user.IsActive, &user.IsEmailVerified,
		&user.CreatedAt, &user.UpdatedAt,
	}
	if withSecrets {
		dest = append(dest, &user.PasswordHash, &user.RefreshToken, &user.RefreshTokenExpiresAt)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.NewNotFoundError("user")
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}
