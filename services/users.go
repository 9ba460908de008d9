package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `id, email, name, role, is_active, password_hash, COALESCE(totp_secret, ''),
	totp_enabled, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.IsActive, &u.PasswordHash, &u.TOTPSecret,
		&u.TOTPEnabled, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *UserStore) Create(ctx context.Context, email, passwordHash, name string) (models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, name)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns,
		strings.ToLower(strings.TrimSpace(email)), passwordHash, strings.TrimSpace(name)))
	if err != nil {
		return models.User{}, conflictAs(utils.FromDBError(err, "User not found"), "Email already registered")
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (s *UserStore) GetByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *UserStore) UpdateName(ctx context.Context, id, name string) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1
		RETURNING `+userColumns, id, strings.TrimSpace(name)))
}

func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	return err
}

// SetTOTP stores the encrypted secret. An empty secret clears it.
func (s *UserStore) SetTOTP(ctx context.Context, id, encryptedSecret string, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET totp_secret = NULLIF($2, ''), totp_enabled = $3, updated_at = NOW()
		WHERE id = $1`, id, encryptedSecret, enabled)
	return err
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	return err
}

func (s *UserStore) List(ctx context.Context, q models.PageQuery) ([]models.User, int, error) {
	offset := q.Normalize()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`, q.Limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

// AdminUpdate changes role and/or activation state.
func (s *UserStore) AdminUpdate(ctx context.Context, id string, role *string, isActive *bool) (models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users
		SET role = COALESCE($2, role), is_active = COALESCE($3, is_active), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, role, isActive))
}

// ============================================================================
// SESSIONS
// ============================================================================

// Refresh tokens are stored as their SHA-256 hex digest.

type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, userID, refreshToken string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, refresh_token, expires_at) VALUES ($1, $2, $3)`,
		userID, utils.HashRefreshToken(refreshToken), expiresAt)
	return err
}

// Rotate swaps an unexpired refresh token for a new one and returns its user.
func (s *SessionStore) Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (string, error) {
	var userID string
	err := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET refresh_token = $2, expires_at = $3
		WHERE refresh_token = $1 AND expires_at > NOW()
		RETURNING user_id`, utils.HashRefreshToken(oldToken), utils.HashRefreshToken(newToken), expiresAt).Scan(&userID)
	return userID, err
}

func (s *SessionStore) Delete(ctx context.Context, refreshToken string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, utils.HashRefreshToken(refreshToken))
	return err
}

func (s *SessionStore) DeleteForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// PurgeExpired removes expired sessions and reports how many were deleted.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
