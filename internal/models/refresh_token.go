package models

import "time"

// RefreshToken is a long-lived session credential bound to one device.
// Only the SHA-256 digest of the token is persisted.
type RefreshToken struct {
	TokenHash string    `json:"-" gorm:"type:char(64);primaryKey"`
	UserID    string    `json:"userId" gorm:"type:char(32);not null;index"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	UserAgent string    `json:"userAgent" gorm:"type:text"`
	DeviceID  string    `json:"deviceId" gorm:"type:varchar(128);index"`
	IP        string    `json:"ip" gorm:"type:varchar(64)"`
	CreatedAt time.Time `json:"createdAt"`
}

func (RefreshToken) TableName() string {
	return "refresh_tokens"
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
