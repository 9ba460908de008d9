package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hade267/doan-VND-sub000/models"
	"github.com/hade267/doan-VND-sub000/utils"
)

var (
	errInvalidCredentials = utils.Unauthorized("Invalid email or password")
	errAccountDisabled    = utils.Forbidden("Account is disabled")
	errInvalidTOTP        = utils.Unauthorized("Invalid two-factor code")
	errTOTPUnavailable    = utils.BadRequest("Two-factor authentication is not available on this server")
)

type UserRepository interface {
	Create(ctx context.Context, email, passwordHash, name string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id string) (models.User, error)
	UpdateName(ctx context.Context, id, name string) (models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetTOTP(ctx context.Context, id, encryptedSecret string, enabled bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, q models.PageQuery) ([]models.User, int, error)
	AdminUpdate(ctx context.Context, id string, role *string, isActive *bool) (models.User, error)
}

type SessionRepository interface {
	Create(ctx context.Context, userID, refreshToken string, expiresAt time.Time) error
	Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (string, error)
	Delete(ctx context.Context, refreshToken string) error
	DeleteForUser(ctx context.Context, userID string) error
}

type AuthService struct {
	users         UserRepository
	sessions      SessionRepository
	tokens        *utils.TokenManager
	refreshTTL    time.Duration
	encryptionKey string
	logger        *slog.Logger
}

func NewAuthService(users UserRepository, sessions SessionRepository, tokens *utils.TokenManager,
	refreshTTL time.Duration, encryptionKey string, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:         users,
		sessions:      sessions,
		tokens:        tokens,
		refreshTTL:    refreshTTL,
		encryptionKey: encryptionKey,
		logger:        logger,
	}
}

func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (models.AuthResponse, error) {
	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return models.AuthResponse{}, utils.Internal(err)
	}

	user, err := s.users.Create(ctx, req.Email, hash, req.Name)
	if err != nil {
		return models.AuthResponse{}, err
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "email", user.Email)
	return s.issue(ctx, user)
}

func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (models.AuthResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.InfoContext(ctx, "login failed", "email", req.Email)
		return models.AuthResponse{}, errInvalidCredentials
	}
	if err != nil {
		return models.AuthResponse{}, utils.Internal(err)
	}

	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		s.logger.InfoContext(ctx, "login failed", "email", req.Email)
		return models.AuthResponse{}, errInvalidCredentials
	}
	if !user.IsActive {
		return models.AuthResponse{}, errAccountDisabled
	}

	if user.TOTPEnabled {
		if req.TOTPCode == "" {
			return models.AuthResponse{}, &utils.AppError{
				Status:  http.StatusUnauthorized,
				Message: "Two-factor code required",
				Extra:   map[string]interface{}{"requires_2fa": true},
			}
		}
		ok, err := s.checkTOTP(user, req.TOTPCode)
		if err != nil {
			return models.AuthResponse{}, err
		}
		if !ok {
			return models.AuthResponse{}, errInvalidTOTP
		}
	}

	return s.issue(ctx, user)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (models.AuthResponse, error) {
	newToken := utils.GenerateRefreshToken()
	userID, err := s.sessions.Rotate(ctx, refreshToken, newToken, time.Now().Add(s.refreshTTL))
	if errors.Is(err, sql.ErrNoRows) {
		return models.AuthResponse{}, utils.Unauthorized("Invalid or expired refresh token")
	}
	if err != nil {
		return models.AuthResponse{}, utils.Internal(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.AuthResponse{}, utils.FromDBError(err, "User not found")
	}
	if !user.IsActive {
		_ = s.sessions.Delete(ctx, newToken)
		return models.AuthResponse{}, errAccountDisabled
	}

	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return models.AuthResponse{}, utils.Internal(err)
	}
	return models.AuthResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: newToken,
		ExpiresIn:    int(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, refreshToken); err != nil {
		return utils.Internal(err)
	}
	return nil
}

func (s *AuthService) issue(ctx context.Context, user models.User) (models.AuthResponse, error) {
	access, err := s.tokens.GenerateAccessToken(user.ID, user.Email, user.Role)
	if err != nil {
		return models.AuthResponse{}, utils.Internal(fmt.Errorf("sign access token: %w", err))
	}

	refresh := utils.GenerateRefreshToken()
	if err := s.sessions.Create(ctx, user.ID, refresh, time.Now().Add(s.refreshTTL)); err != nil {
		return models.AuthResponse{}, utils.Internal(fmt.Errorf("create session: %w", err))
	}

	return models.AuthResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int(s.tokens.TTL().Seconds()),
	}, nil
}

func (s *AuthService) checkTOTP(user models.User, code string) (bool, error) {
	if s.encryptionKey == "" || user.TOTPSecret == "" {
		return false, errTOTPUnavailable
	}
	secret, err := utils.Decrypt(s.encryptionKey, user.TOTPSecret)
	if err != nil {
		return false, utils.Internal(fmt.Errorf("decrypt totp secret: %w", err))
	}
	return utils.VerifyTOTP(string(secret), code), nil
}

// ============================================================================
// PROFILE
// ============================================================================

func (s *AuthService) Profile(ctx context.Context, userID string) (models.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	return u, utils.FromDBError(err, "User not found")
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (models.User, error) {
	u, err := s.users.UpdateName(ctx, userID, req.Name)
	return u, utils.FromDBError(err, "User not found")
}

func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.CurrentPassword, user.PasswordHash) {
		return utils.ValidationError(map[string]string{"current_password": "is incorrect"})
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return utils.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return utils.Internal(err)
	}
	// other devices must sign in again
	if err := s.sessions.DeleteForUser(ctx, userID); err != nil {
		return utils.Internal(err)
	}
	return nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, userID string, req models.DeleteAccountRequest) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.ValidationError(map[string]string{"password": "is incorrect"})
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return utils.Internal(err)
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", userID)
	return nil
}

// ============================================================================
// 2FA
// ============================================================================

// SetupTOTP stores a new, not yet enabled, secret.
func (s *AuthService) SetupTOTP(ctx context.Context, userID string) (models.TOTPSetupResponse, error) {
	if s.encryptionKey == "" {
		return models.TOTPSetupResponse{}, errTOTPUnavailable
	}
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return models.TOTPSetupResponse{}, err
	}
	if user.TOTPEnabled {
		return models.TOTPSetupResponse{}, utils.Conflict("Two-factor authentication is already enabled")
	}

	secret, url, err := utils.GenerateTOTPSecret(user.Email)
	if err != nil {
		return models.TOTPSetupResponse{}, utils.Internal(err)
	}
	sealed, err := utils.Encrypt(s.encryptionKey, []byte(secret))
	if err != nil {
		return models.TOTPSetupResponse{}, utils.Internal(err)
	}
	if err := s.users.SetTOTP(ctx, userID, sealed, false); err != nil {
		return models.TOTPSetupResponse{}, utils.Internal(err)
	}
	return models.TOTPSetupResponse{Secret: secret, URL: url}, nil
}

func (s *AuthService) VerifyTOTP(ctx context.Context, userID, code string) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return utils.BadRequest("Two-factor setup has not been started")
	}
	ok, err := s.checkTOTP(user, code)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidTOTP
	}
	if err := s.users.SetTOTP(ctx, userID, user.TOTPSecret, true); err != nil {
		return utils.Internal(err)
	}
	return nil
}

func (s *AuthService) DisableTOTP(ctx context.Context, userID string, req models.DisableTOTPRequest) error {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TOTPEnabled {
		return utils.BadRequest("Two-factor authentication is not enabled")
	}
	if !utils.CheckPassword(req.Password, user.PasswordHash) {
		return utils.ValidationError(map[string]string{"password": "is incorrect"})
	}
	ok, err := s.checkTOTP(user, req.Code)
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidTOTP
	}
	if err := s.users.SetTOTP(ctx, userID, "", false); err != nil {
		return utils.Internal(err)
	}
	return nil
}

// ============================================================================
// ADMIN
// ============================================================================

func (s *AuthService) ListUsers(ctx context.Context, q models.PageQuery) (models.Page[models.User], error) {
	users, total, err := s.users.List(ctx, q)
	if err != nil {
		return models.Page[models.User]{}, utils.Internal(err)
	}
	q.Normalize()
	return models.Page[models.User]{Data: users, Pagination: models.NewPagination(q, total)}, nil
}

// AdminUpdateUser changes another user's role or activation. Admins cannot
// demote or deactivate themselves.
func (s *AuthService) AdminUpdateUser(ctx context.Context, adminID, targetID string, req models.AdminUpdateUserRequest) (models.User, error) {
	if req.Role == nil && req.IsActive == nil {
		return models.User{}, utils.BadRequest("Nothing to update")
	}
	if adminID == targetID {
		if req.Role != nil && *req.Role != models.RoleAdmin {
			return models.User{}, utils.BadRequest("You cannot remove your own admin role")
		}
		if req.IsActive != nil && !*req.IsActive {
			return models.User{}, utils.BadRequest("You cannot deactivate your own account")
		}
	}

	user, err := s.users.AdminUpdate(ctx, targetID, req.Role, req.IsActive)
	if err != nil {
		return models.User{}, utils.FromDBError(err, "User not found")
	}
	if !user.IsActive {
		if err := s.sessions.DeleteForUser(ctx, targetID); err != nil {
			s.logger.WarnContext(ctx, "session cleanup failed", "user_id", targetID, "error", err)
		}
	}
	s.logger.InfoContext(ctx, "user updated by admin", "user_id", targetID, "admin_id", adminID)
	return user, nil
}
