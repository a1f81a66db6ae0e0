package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel carries the opaque 32-hex-character identifier shared by users,
// directories and files.
type BaseModel struct {
	ID        string    `json:"id" gorm:"type:char(32);primaryKey"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = NewID()
	}
	return nil
}

// NewID returns a random UUIDv4 without dashes.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsValidID reports whether id has the shape produced by NewID.
func IsValidID(id string) bool {
	if len(id) != 32 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
