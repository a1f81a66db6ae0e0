package models

import "time"

// Directory is a node of a user's virtual tree. A root has no parent and
// carries the owner; every other directory has a parent and no owner.
type Directory struct {
	BaseModel
	Name      string     `json:"name" gorm:"type:varchar(255);not null"`
	ParentID  *string    `json:"parentId,omitempty" gorm:"type:char(32);index"`
	OwnerID   *string    `json:"ownerId,omitempty" gorm:"type:char(32);uniqueIndex"`
	DeletedAt *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

func (d *Directory) IsRoot() bool {
	return d.ParentID == nil
}

func (d *Directory) IsBinned() bool {
	return d.DeletedAt != nil
}

// File is the metadata of a stored blob. The bytes live in flat object
// storage keyed by the owning root's name and the file ID.
type File struct {
	BaseModel
	DirectoryID string     `json:"directoryId" gorm:"type:char(32);not null;index"`
	Name        string     `json:"name" gorm:"type:varchar(255);not null;index"`
	Extension   string     `json:"extension" gorm:"type:varchar(15);not null;default:''"`
	MimeType    string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	Size        int64      `json:"size" gorm:"not null;default:0"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" gorm:"index"`
}

func (f *File) IsBinned() bool {
	return f.DeletedAt != nil
}

// FullName is the name with its extension, as presented in downloads.
func (f *File) FullName() string {
	if f.Extension == "" {
		return f.Name
	}
	return f.Name + "." + f.Extension
}
