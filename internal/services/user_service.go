package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	onboardTokenBytes = 32
)

// OnboardToken is a one-time credential handed to a user out of band so
// they can choose a password.
type OnboardToken struct {
	Token     string
	ExpiresAt time.Time
	Lifetime  time.Duration
}

// UserService covers the user lifecycle: admin-driven creation and reset,
// registration with a one-time token, password login and deletion.
type UserService struct {
	db     *gorm.DB
	dirs   *DirectoryService
	tokens *TokenService
	cfg    config.TokenConfig
	now    func() time.Time
}

func NewUserService(db *gorm.DB, dirs *DirectoryService, tokens *TokenService, cfg config.TokenConfig) *UserService {
	return &UserService{
		db:     db,
		dirs:   dirs,
		tokens: tokens,
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("Failed loading user", err)
	}
	return &user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, "username = ?", strings.TrimSpace(username)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, internalError("Failed loading user", err)
	}
	return &user, nil
}

func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username ASC").Find(&users).Error; err != nil {
		return nil, internalError("Failed listing users", err)
	}
	return users, nil
}

// Create adds a user without a password together with their root directory.
// If the root cannot be created the user row is removed again.
func (s *UserService) Create(ctx context.Context, username string, role models.UserRole) (*models.User, *OnboardToken, error) {
	username = strings.TrimSpace(username)
	if !models.IsValidUsername(username) {
		return nil, nil, ErrInvalidUsername
	}
	if role == "" {
		role = models.UserRoleUser
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, nil, internalError("Failed checking existing user", err)
	}
	if count > 0 {
		return nil, nil, ErrUserAlreadyExists
	}

	token, hash, err := s.newOnboardToken(s.cfg.CreateLifetime)
	if err != nil {
		return nil, nil, err
	}

	user := &models.User{
		Username:            username,
		Role:                role,
		ResetTokenHash:      &hash,
		ResetTokenExpiresAt: &token.ExpiresAt,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, nil, internalError("Failed creating user", err)
	}

	if _, err := s.dirs.CreateRoot(ctx, user); err != nil {
		logger.Error("user_root_creation_failed", err, map[string]interface{}{
			"user_id":  user.ID,
			"username": username,
		})
		if delErr := s.db.WithContext(context.WithoutCancel(ctx)).Delete(&models.User{}, "id = ?", user.ID).Error; delErr != nil {
			logger.Error("user_creation_compensation_failed", delErr, map[string]interface{}{
				"user_id": user.ID,
			})
		}
		return nil, nil, &AppError{
			Kind:    ErrUserCreationFailed.Kind,
			Code:    ErrUserCreationFailed.Code,
			Message: ErrUserCreationFailed.Message,
			Err:     err,
		}
	}

	logger.Info("user_created", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
		"role":     string(user.Role),
	})
	return user, token, nil
}

type Usage struct {
	Directories int64 `json:"directories"`
	Files       int64 `json:"files"`
	Bytes       int64 `json:"bytes"`
}

// Usage totals the user's tree, bin included. The root is not counted as a
// directory.
func (s *UserService) Usage(ctx context.Context, user *models.User) (*Usage, error) {
	root, err := s.dirs.RootOf(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	subtree, err := collectSubtree(ctx, s.db, root)
	if err != nil {
		return nil, err
	}

	usage := &Usage{Directories: int64(len(subtree) - 1)}
	row := s.db.WithContext(ctx).Model(&models.File{}).
		Select("COUNT(*), COALESCE(SUM(size), 0)").
		Where("directory_id IN ?", directoryIDs(subtree)).
		Row()
	if err := row.Scan(&usage.Files, &usage.Bytes); err != nil {
		return nil, internalError("Failed computing usage", err)
	}
	return usage, nil
}

// Bootstrap creates the first administrator when the users table is empty.
// It returns a nil token when users already exist.
func (s *UserService) Bootstrap(ctx context.Context, username string) (*models.User, *OnboardToken, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return nil, nil, internalError("Failed counting users", err)
	}
	if count > 0 {
		return nil, nil, nil
	}
	return s.Create(ctx, username, models.UserRoleAdmin)
}

// Reset issues a new onboarding token and signs the user out everywhere.
// The user must register again before logging in.
func (s *UserService) Reset(ctx context.Context, username string) (*OnboardToken, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	token, hash, err := s.newOnboardToken(s.cfg.ResetLifetime)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"reset_required":         true,
		"reset_token_hash":       hash,
		"reset_token_expires_at": token.ExpiresAt,
	}).Error; err != nil {
		return nil, internalError("Failed resetting user", err)
	}
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID, "user_reset", map[string]interface{}{
		"username": user.Username,
	})
	return token, nil
}

// Register completes onboarding: the one-time token is verified and
// consumed, and the chosen password is stored.
func (s *UserService) Register(ctx context.Context, username, token, password string) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.ResetTokenHash == nil || !utils.CheckPassword(token, *user.ResetTokenHash) {
		return nil, ErrInvalidToken
	}
	if user.ResetTokenExpiresAt == nil || !s.now().Before(*user.ResetTokenExpiresAt) {
		return nil, ErrExpiredToken
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, internalError("Failed hashing password", err)
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"password_hash":          hash,
		"reset_required":         false,
		"reset_token_hash":       nil,
		"reset_token_expires_at": nil,
	}).Error; err != nil {
		return nil, internalError("Failed saving password", err)
	}
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID, "user_registered", map[string]interface{}{
		"username": user.Username,
	})
	return s.Get(ctx, user.ID)
}

// Authenticate verifies a username and password pair.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logger.Warn("login_failed_user_not_found", map[string]interface{}{
				"username": username,
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsRegistered() || !utils.CheckPassword(password, *user.PasswordHash) {
		logger.WarnWithUser(user.ID, "login_failed_invalid_password", nil)
		return nil, ErrInvalidCredentials
	}
	if user.ResetRequired {
		return nil, ErrPasswordResetPending
	}

	return user, nil
}

// ChangePassword replaces the password and signs the user out of every
// device.
func (s *UserService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	current, err := s.Get(ctx, user.ID)
	if err != nil {
		return err
	}
	if !current.IsRegistered() || !utils.CheckPassword(oldPassword, *current.PasswordHash) {
		return ErrWrongPassword
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return internalError("Failed hashing password", err)
	}
	if err := s.db.WithContext(ctx).Model(current).Update("password_hash", hash).Error; err != nil {
		return internalError("Failed updating password", err)
	}
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}

	logger.InfoWithUser(user.ID, "user_password_changed", nil)
	return nil
}

// Delete removes the user's tree, storage container, sessions and the user
// row itself.
func (s *UserService) Delete(ctx context.Context, user *models.User) error {
	if err := s.dirs.DeleteRoot(ctx, user); err != nil {
		return err
	}
	if err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", user.ID).Error; err != nil {
		return internalError("Failed deleting user", err)
	}

	logger.Info("user_deleted", map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return nil
}

func (s *UserService) newOnboardToken(lifetime time.Duration) (*OnboardToken, string, error) {
	raw, err := utils.GenerateSecureToken(onboardTokenBytes)
	if err != nil {
		return nil, "", internalError("Failed generating token", err)
	}
	hash, err := utils.HashPassword(raw)
	if err != nil {
		return nil, "", internalError("Failed hashing token", err)
	}
	return &OnboardToken{
		Token:     raw,
		ExpiresAt: s.now().UTC().Add(lifetime),
		Lifetime:  lifetime,
	}, hash, nil
}
