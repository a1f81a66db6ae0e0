package services

import (
	"context"
	"errors"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"gorm.io/gorm"
)

type DirectoryContent struct {
	Directory   *models.Directory
	Directories []models.Directory
	Files       []models.File
}

// DirectoryService owns the virtual tree. Directories have no physical
// counterpart except each user's root, which maps to a storage container.
type DirectoryService struct {
	db    *gorm.DB
	txm   TxManager
	store storage.ObjectStore
	files *FileService
}

func NewDirectoryService(db *gorm.DB, store storage.ObjectStore, files *FileService) *DirectoryService {
	return &DirectoryService{
		db:    db,
		txm:   NewGormTxManager(db),
		store: store,
		files: files,
	}
}

func (s *DirectoryService) Get(ctx context.Context, id string) (*models.Directory, error) {
	return findDirectory(ctx, s.db, id)
}

// RootOf returns the user's root directory.
func (s *DirectoryService) RootOf(ctx context.Context, userID string) (*models.Directory, error) {
	var root models.Directory
	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND parent_id IS NULL", userID).
		First(&root).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, internalError("Failed loading root folder", err)
	}
	return &root, nil
}

// Root walks up from dir to its root. The boolean reports whether dir is
// effectively in the bin.
func (s *DirectoryService) Root(ctx context.Context, dir *models.Directory) (*models.Directory, bool, error) {
	return resolveRoot(ctx, s.db, dir)
}

// CreateRoot creates the user's root directory and storage container. It is
// idempotent: an existing root is returned unchanged, with its container
// recreated if it went missing.
func (s *DirectoryService) CreateRoot(ctx context.Context, user *models.User) (*models.Directory, error) {
	var root *models.Directory
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		var existing models.Directory
		err := tx.Where("owner_id = ? AND parent_id IS NULL", user.ID).First(&existing).Error
		switch {
		case err == nil:
			root = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			ownerID := user.ID
			root = &models.Directory{Name: user.Username, OwnerID: &ownerID}
			if err := tx.Create(root).Error; err != nil {
				return internalError("Failed creating root folder", err)
			}
		default:
			return internalError("Failed loading root folder", err)
		}

		if err := s.store.EnsureContainer(ctx, root.Name); err != nil {
			return storageError("Failed creating storage container", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoWithUser(user.ID, "root_directory_ready", map[string]interface{}{
		"root_id":   root.ID,
		"container": root.Name,
	})
	return root, nil
}

// Create adds a child directory under parent. No physical I/O happens.
func (s *DirectoryService) Create(ctx context.Context, parent *models.Directory, name string) (*models.Directory, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	_, binned, err := resolveRoot(ctx, s.db, parent)
	if err != nil {
		return nil, err
	}
	if binned {
		return nil, folderNotFound(parent.ID)
	}

	parentID := parent.ID
	dir := &models.Directory{Name: name, ParentID: &parentID}
	if err := s.db.WithContext(ctx).Create(dir).Error; err != nil {
		return nil, internalError("Failed creating folder", err)
	}
	return dir, nil
}

// Update renames and/or re-parents dir. Roots cannot be changed, a
// directory cannot move under itself, and moves never cross owners.
func (s *DirectoryService) Update(ctx context.Context, dir *models.Directory, newParent *models.Directory, newName *string) (*models.Directory, error) {
	if newParent == nil && newName == nil {
		return dir, nil
	}
	if dir.IsRoot() {
		return nil, ErrRootImmutable
	}

	updates := map[string]interface{}{}

	if newName != nil {
		name, err := normalizeName(*newName)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}

	if newParent != nil && (dir.ParentID == nil || *dir.ParentID != newParent.ID) {
		currentRoot, _, err := resolveRoot(ctx, s.db, dir)
		if err != nil {
			return nil, err
		}
		targetRoot, binned, err := resolveRoot(ctx, s.db, newParent)
		if err != nil {
			return nil, err
		}
		if targetRoot.ID != currentRoot.ID {
			return nil, ErrFolderAccessDenied.WithDetails(map[string]string{"folderId": newParent.ID})
		}
		if binned {
			return nil, folderNotFound(newParent.ID)
		}

		cycle, err := isAncestorOrSelf(ctx, s.db, dir.ID, newParent)
		if err != nil {
			return nil, err
		}
		if cycle {
			return nil, ErrInvalidMove
		}
		updates["parent_id"] = newParent.ID
	}

	if len(updates) == 0 {
		return dir, nil
	}
	if err := s.db.WithContext(ctx).Model(dir).Updates(updates).Error; err != nil {
		return nil, internalError("Failed updating folder", err)
	}
	return findDirectory(ctx, s.db, dir.ID)
}

// Content lists the live children of dir, sorted by name.
func (s *DirectoryService) Content(ctx context.Context, dir *models.Directory) (*DirectoryContent, error) {
	content := &DirectoryContent{Directory: dir}

	if err := s.db.WithContext(ctx).
		Where("parent_id = ? AND deleted_at IS NULL", dir.ID).
		Order("name ASC").
		Find(&content.Directories).Error; err != nil {
		return nil, internalError("Failed listing folders", err)
	}

	if err := s.db.WithContext(ctx).
		Where("directory_id = ? AND deleted_at IS NULL", dir.ID).
		Order("name ASC").
		Find(&content.Files).Error; err != nil {
		return nil, internalError("Failed listing files", err)
	}

	return content, nil
}

// Delete permanently removes dir with every descendant directory and file.
// All rows go in one transaction, so a failure leaves the subtree fully in
// place and the operation can be retried. Objects are removed after commit.
func (s *DirectoryService) Delete(ctx context.Context, dir *models.Directory) error {
	if dir.IsRoot() {
		return ErrRootImmutable
	}
	var removed []storedObject
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		root, _, err := resolveRoot(ctx, tx, dir)
		if err != nil {
			return err
		}
		removed, err = s.deleteTx(ctx, tx, root.Name, dir)
		return err
	})
	if err != nil {
		return err
	}
	s.files.removeObjects(ctx, removed)
	return nil
}

// deleteTx deletes the rows of dir's subtree and returns the objects of the
// deleted files for removal once tx commits.
func (s *DirectoryService) deleteTx(ctx context.Context, tx *gorm.DB, container string, dir *models.Directory) ([]storedObject, error) {
	subtree, err := collectSubtree(ctx, tx, dir)
	if err != nil {
		return nil, err
	}

	var files []models.File
	if err := tx.Where("directory_id IN ?", directoryIDs(subtree)).Find(&files).Error; err != nil {
		return nil, internalError("Failed listing files", err)
	}
	removed := make([]storedObject, 0, len(files))
	for i := range files {
		obj, err := s.files.deleteTx(tx, container, &files[i])
		if err != nil {
			return nil, err
		}
		removed = append(removed, obj)
	}

	for i := len(subtree) - 1; i >= 0; i-- {
		if err := tx.Delete(&models.Directory{}, "id = ?", subtree[i].ID).Error; err != nil {
			return nil, internalError("Failed deleting folder", err)
		}
	}

	logger.Info("directory_deleted", map[string]interface{}{
		"directory_id": dir.ID,
		"directories":  len(subtree),
		"files":        len(files),
	})
	return removed, nil
}

// DeleteRoot removes the user's whole tree together with the storage
// container. A user without a root is a no-op.
func (s *DirectoryService) DeleteRoot(ctx context.Context, user *models.User) error {
	root, err := s.RootOf(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return nil
		}
		return err
	}

	err = s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		_, err := s.deleteTx(ctx, tx, root.Name, root)
		return err
	})
	if err != nil {
		return err
	}

	// The container holds every object of the tree.
	if err := s.store.RemoveContainer(ctx, root.Name); err != nil {
		logger.ErrorWithUser(user.ID, "container_orphaned", err, map[string]interface{}{
			"container": root.Name,
		})
	}

	logger.InfoWithUser(user.ID, "root_directory_deleted", map[string]interface{}{
		"root_id":   root.ID,
		"container": root.Name,
	})
	return nil
}

// SoftDelete marks dir as binned. Descendants keep their own state and are
// hidden through the ancestor.
func (s *DirectoryService) SoftDelete(ctx context.Context, dir *models.Directory) error {
	if dir.IsRoot() {
		return ErrRootImmutable
	}
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(dir).Update("deleted_at", now).Error; err != nil {
		return internalError("Failed moving folder to bin", err)
	}
	dir.DeletedAt = &now
	return nil
}

// ResolveForUser maps an optional parent ID to a directory: nil means the
// user's root.
func (s *DirectoryService) ResolveForUser(ctx context.Context, parentID *string, user *models.User) (*models.Directory, error) {
	if parentID == nil || *parentID == "" {
		return s.RootOf(ctx, user.ID)
	}
	return s.Get(ctx, *parentID)
}
