package services

import (
	"context"

	"github.com/darusc/Fileknight/internal/models"
	"gorm.io/gorm"
)

// AccessService enforces the ownership model: a user may touch a node only
// when the root of the node's tree belongs to them. Nothing is cached, so a
// move is reflected on the next check.
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

func (a *AccessService) AssertDirectoryAccess(ctx context.Context, dir *models.Directory, user *models.User) error {
	_, err := a.checkDirectory(ctx, dir, user)
	return err
}

func (a *AccessService) AssertFileAccess(ctx context.Context, file *models.File, user *models.User) error {
	_, err := a.checkFile(ctx, file, user)
	return err
}

// checkDirectory asserts ownership and reports whether dir is effectively
// binned, so callers walk the ancestry once.
func (a *AccessService) checkDirectory(ctx context.Context, dir *models.Directory, user *models.User) (bool, error) {
	root, binned, err := resolveRoot(ctx, a.DB, dir)
	if err != nil {
		return false, err
	}
	if user == nil || root.OwnerID == nil || *root.OwnerID != user.ID {
		return false, ErrFolderAccessDenied.WithDetails(map[string]string{"folderId": dir.ID})
	}
	return binned, nil
}

func (a *AccessService) checkFile(ctx context.Context, file *models.File, user *models.User) (bool, error) {
	dir, err := findDirectory(ctx, a.DB, file.DirectoryID)
	if err != nil {
		return false, internalError("File references a missing folder", err)
	}
	root, binned, err := resolveRoot(ctx, a.DB, dir)
	if err != nil {
		return false, err
	}
	if user == nil || root.OwnerID == nil || *root.OwnerID != user.ID {
		return false, ErrFileAccessDenied.WithDetails(map[string]string{"fileId": file.ID})
	}
	return binned || file.IsBinned(), nil
}

// LiveDirectory loads a directory the user owns that is not in the bin.
func (a *AccessService) LiveDirectory(ctx context.Context, id string, user *models.User) (*models.Directory, error) {
	dir, err := findDirectory(ctx, a.DB, id)
	if err != nil {
		return nil, err
	}
	binned, err := a.checkDirectory(ctx, dir, user)
	if err != nil {
		return nil, err
	}
	if binned {
		return nil, folderNotFound(dir.ID)
	}
	return dir, nil
}

// LiveFile loads a file the user owns that is not in the bin.
func (a *AccessService) LiveFile(ctx context.Context, id string, user *models.User) (*models.File, error) {
	file, err := findFile(ctx, a.DB, id)
	if err != nil {
		return nil, err
	}
	binned, err := a.checkFile(ctx, file, user)
	if err != nil {
		return nil, err
	}
	if binned {
		return nil, fileNotFound(file.ID)
	}
	return file, nil
}
