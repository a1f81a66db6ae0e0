package services

import (
	"context"
	"errors"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"gorm.io/gorm"
)

const refreshTokenBytes = 64

type DeviceMeta struct {
	UserAgent string
	DeviceID  string
	IP        string
}

type TokenPair struct {
	AccessToken  string    `json:"token"`
	RefreshToken string    `json:"refreshToken"`
	IssuedAt     time.Time `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

// TokenService issues access JWTs and manages refresh tokens. Refresh tokens
// are returned once in plaintext and stored only as a SHA-256 digest.
type TokenService struct {
	db              *gorm.DB
	txm             TxManager
	refreshLifetime time.Duration
	now             func() time.Time
}

func NewTokenService(db *gorm.DB, refreshLifetime time.Duration) *TokenService {
	return &TokenService{
		db:              db,
		txm:             NewGormTxManager(db),
		refreshLifetime: refreshLifetime,
		now:             time.Now,
	}
}

// Issue signs an access token and creates a refresh token for the device.
// A previous refresh token of the same device is replaced.
func (s *TokenService) Issue(ctx context.Context, user *models.User, meta DeviceMeta) (*TokenPair, error) {
	var pair *TokenPair
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if meta.DeviceID != "" {
			if err := tx.Where("user_id = ? AND device_id = ?", user.ID, meta.DeviceID).
				Delete(&models.RefreshToken{}).Error; err != nil {
				return internalError("Failed replacing refresh token", err)
			}
		}
		var err error
		pair, err = s.issueTx(tx, user, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (s *TokenService) issueTx(tx *gorm.DB, user *models.User, meta DeviceMeta) (*TokenPair, error) {
	access, err := utils.GenerateToken(user)
	if err != nil {
		return nil, internalError("Failed generating access token", err)
	}

	raw, err := utils.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return nil, internalError("Failed generating refresh token", err)
	}

	now := s.now().UTC()
	record := &models.RefreshToken{
		TokenHash: utils.HashToken(raw),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.refreshLifetime),
		UserAgent: meta.UserAgent,
		DeviceID:  meta.DeviceID,
		IP:        meta.IP,
	}
	if err := tx.Create(record).Error; err != nil {
		return nil, internalError("Failed saving refresh token", err)
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: raw,
		IssuedAt:     now,
		ExpiresAt:    now.Add(utils.AccessTokenLifetime()),
	}, nil
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is issued with the same device metadata.
func (s *TokenService) Refresh(ctx context.Context, raw string) (*TokenPair, *models.User, error) {
	if raw == "" {
		return nil, nil, ErrInvalidToken
	}

	var (
		pair *TokenPair
		user models.User
	)
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		var record models.RefreshToken
		if err := tx.First(&record, "token_hash = ?", utils.HashToken(raw)).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return internalError("Failed loading refresh token", err)
		}

		if err := tx.Delete(&models.RefreshToken{}, "token_hash = ?", record.TokenHash).Error; err != nil {
			return internalError("Failed consuming refresh token", err)
		}
		if record.IsExpired(s.now()) {
			return ErrExpiredToken
		}

		if err := tx.First(&user, "id = ?", record.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidToken
			}
			return internalError("Failed loading user", err)
		}

		var err error
		pair, err = s.issueTx(tx, &user, DeviceMeta{
			UserAgent: record.UserAgent,
			DeviceID:  record.DeviceID,
			IP:        record.IP,
		})
		return err
	})
	if err != nil {
		// An expired token is still removed.
		if errors.Is(err, ErrExpiredToken) {
			_ = s.db.WithContext(ctx).Delete(&models.RefreshToken{}, "token_hash = ?", utils.HashToken(raw)).Error
		}
		return nil, nil, err
	}

	return pair, &user, nil
}

// RevokeDevice removes the user's refresh tokens for one device.
func (s *TokenService) RevokeDevice(ctx context.Context, user *models.User, deviceID string) error {
	return s.revoke(s.db.WithContext(ctx).Where("user_id = ? AND device_id = ?", user.ID, deviceID))
}

// RevokeToken removes a single refresh token of the user, if it exists.
func (s *TokenService) RevokeToken(ctx context.Context, user *models.User, raw string) error {
	return s.revoke(s.db.WithContext(ctx).Where("user_id = ? AND token_hash = ?", user.ID, utils.HashToken(raw)))
}

// RevokeAll removes every refresh token of the user.
func (s *TokenService) RevokeAll(ctx context.Context, userID string) error {
	return s.revoke(s.db.WithContext(ctx).Where("user_id = ?", userID))
}

func (s *TokenService) revoke(scope *gorm.DB) error {
	if err := scope.Delete(&models.RefreshToken{}).Error; err != nil {
		return internalError("Failed revoking refresh tokens", err)
	}
	return nil
}

// SweepExpired deletes expired refresh tokens and returns how many went.
func (s *TokenService) SweepExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.now().UTC()).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, internalError("Failed sweeping refresh tokens", result.Error)
	}
	return result.RowsAffected, nil
}

// StartSweeper runs SweepExpired every interval until ctx is cancelled.
func (s *TokenService) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := s.SweepExpired(ctx)
				if err != nil {
					logger.Error("refresh_token_sweep_failed", err, nil)
					continue
				}
				if removed > 0 {
					logger.Info("refresh_tokens_swept", map[string]interface{}{
						"removed": removed,
					})
				}
			}
		}
	}()
}
