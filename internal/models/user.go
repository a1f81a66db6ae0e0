package models

import "time"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Username            string     `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	Email               *string    `json:"email,omitempty" gorm:"type:varchar(255)"`
	PasswordHash        *string    `json:"-" gorm:"type:text"`
	Role                UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`
	ResetRequired       bool       `json:"resetRequired" gorm:"not null;default:false"`
	ResetTokenHash      *string    `json:"-" gorm:"type:text"`
	ResetTokenExpiresAt *time.Time `json:"-"`
}

// IsRegistered reports whether the user has finished registration by
// choosing a password.
func (u *User) IsRegistered() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}
