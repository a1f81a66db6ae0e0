package services

import (
	"context"
	"errors"
	"sort"

	"github.com/darusc/Fileknight/internal/metrics"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/pkg/logger"
	"gorm.io/gorm"
)

type BinContent struct {
	Directories []models.Directory
	Files       []models.File
}

// BinService handles soft-deleted items. Only the item that was moved to the
// bin carries the mark; its descendants are hidden through it.
type BinService struct {
	db      *gorm.DB
	txm     TxManager
	dirs    *DirectoryService
	files   *FileService
	metrics *metrics.Metrics
}

func NewBinService(db *gorm.DB, dirs *DirectoryService, files *FileService, m *metrics.Metrics) *BinService {
	return &BinService{
		db:      db,
		txm:     NewGormTxManager(db),
		dirs:    dirs,
		files:   files,
		metrics: m,
	}
}

// MoveFile puts a live file in the bin.
func (s *BinService) MoveFile(ctx context.Context, file *models.File) error {
	if err := s.files.SoftDelete(ctx, file); err != nil {
		return err
	}
	s.metrics.BinOp("move", "file", 1)
	return nil
}

// MoveDirectory puts a live directory, and with it its subtree, in the bin.
func (s *BinService) MoveDirectory(ctx context.Context, dir *models.Directory) error {
	if err := s.dirs.SoftDelete(ctx, dir); err != nil {
		return err
	}
	s.metrics.BinOp("move", "directory", 1)
	return nil
}

// List returns the user's directly binned items, most recent first.
func (s *BinService) List(ctx context.Context, user *models.User) (*BinContent, error) {
	return s.list(ctx, s.db.WithContext(ctx), user)
}

func (s *BinService) list(ctx context.Context, db *gorm.DB, user *models.User) (*BinContent, error) {
	root, err := s.rootOf(ctx, db, user)
	if err != nil {
		return nil, err
	}
	tree, err := collectSubtree(ctx, db, root)
	if err != nil {
		return nil, err
	}
	ids := directoryIDs(tree)

	content := &BinContent{}
	for _, dir := range tree {
		if dir.IsBinned() {
			content.Directories = append(content.Directories, dir)
		}
	}
	sort.SliceStable(content.Directories, func(i, j int) bool {
		a, b := content.Directories[i], content.Directories[j]
		if !a.DeletedAt.Equal(*b.DeletedAt) {
			return a.DeletedAt.After(*b.DeletedAt)
		}
		return a.Name < b.Name
	})

	if err := db.
		Where("directory_id IN ? AND deleted_at IS NOT NULL", ids).
		Order("deleted_at DESC").
		Order("name ASC").
		Find(&content.Files).Error; err != nil {
		return nil, internalError("Failed listing bin", err)
	}

	return content, nil
}

func (s *BinService) rootOf(ctx context.Context, db *gorm.DB, user *models.User) (*models.Directory, error) {
	var root models.Directory
	if err := db.Where("owner_id = ? AND parent_id IS NULL", user.ID).First(&root).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, internalError("Failed loading root folder", err)
	}
	return &root, nil
}

// Restore clears the bin mark on every target. Either all targets are
// restored or none.
func (s *BinService) Restore(ctx context.Context, user *models.User, fileIDs, folderIDs []string) error {
	if len(fileIDs) == 0 && len(folderIDs) == 0 {
		return ErrNoRestoreTargets
	}

	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		files, dirs, err := s.loadTargets(ctx, tx, user, fileIDs, folderIDs)
		if err != nil {
			return err
		}
		for _, file := range files {
			if err := tx.Model(file).Update("deleted_at", nil).Error; err != nil {
				return internalError("Failed restoring file", err)
			}
		}
		for _, dir := range dirs {
			if err := tx.Model(dir).Update("deleted_at", nil).Error; err != nil {
				return internalError("Failed restoring folder", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.BinOp("restore", "file", len(fileIDs))
	s.metrics.BinOp("restore", "directory", len(folderIDs))
	logger.InfoWithUser(user.ID, "bin_restored", map[string]interface{}{
		"files":   len(fileIDs),
		"folders": len(folderIDs),
	})
	return nil
}

// Purge permanently deletes the targets, directories first. Files already
// removed with a purged directory's subtree are skipped.
func (s *BinService) Purge(ctx context.Context, user *models.User, fileIDs, folderIDs []string) error {
	if len(fileIDs) == 0 && len(folderIDs) == 0 {
		return ErrNoDeleteTargets
	}

	var removed []storedObject
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		files, dirs, err := s.loadTargets(ctx, tx, user, fileIDs, folderIDs)
		if err != nil {
			return err
		}
		removed, err = s.purgeTx(ctx, tx, user, files, dirs)
		return err
	})
	if err != nil {
		return err
	}
	s.files.removeObjects(ctx, removed)

	s.metrics.BinOp("purge", "file", len(fileIDs))
	s.metrics.BinOp("purge", "directory", len(folderIDs))
	logger.InfoWithUser(user.ID, "bin_purged", map[string]interface{}{
		"files":   len(fileIDs),
		"folders": len(folderIDs),
	})
	return nil
}

// EmptyAll purges every binned item of the user.
func (s *BinService) EmptyAll(ctx context.Context, user *models.User) error {
	var purgedFiles, purgedDirs int
	var removed []storedObject

	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		content, err := s.list(ctx, tx, user)
		if err != nil {
			return err
		}

		files := make([]*models.File, len(content.Files))
		for i := range content.Files {
			files[i] = &content.Files[i]
		}
		dirs := make([]*models.Directory, len(content.Directories))
		for i := range content.Directories {
			dirs[i] = &content.Directories[i]
		}

		purgedFiles, purgedDirs = len(files), len(dirs)
		removed, err = s.purgeTx(ctx, tx, user, files, dirs)
		return err
	})
	if err != nil {
		return err
	}
	s.files.removeObjects(ctx, removed)

	s.metrics.BinOp("purge", "file", purgedFiles)
	s.metrics.BinOp("purge", "directory", purgedDirs)
	logger.InfoWithUser(user.ID, "bin_emptied", map[string]interface{}{
		"files":   purgedFiles,
		"folders": purgedDirs,
	})
	return nil
}

// purgeTx deletes the rows of the targets and returns the objects to remove
// once tx commits.
func (s *BinService) purgeTx(ctx context.Context, tx *gorm.DB, user *models.User, files []*models.File, dirs []*models.Directory) ([]storedObject, error) {
	root, err := s.rootOf(ctx, tx, user)
	if err != nil {
		return nil, err
	}

	var removed []storedObject
	for _, dir := range dirs {
		if exists, err := rowExists(tx, &models.Directory{}, dir.ID); err != nil {
			return nil, err
		} else if !exists {
			continue
		}
		objects, err := s.dirs.deleteTx(ctx, tx, root.Name, dir)
		if err != nil {
			return nil, err
		}
		removed = append(removed, objects...)
	}

	for _, file := range files {
		if exists, err := rowExists(tx, &models.File{}, file.ID); err != nil {
			return nil, err
		} else if !exists {
			continue
		}
		obj, err := s.files.deleteTx(tx, root.Name, file)
		if err != nil {
			return nil, err
		}
		removed = append(removed, obj)
	}
	return removed, nil
}

// loadTargets resolves every ID and checks ownership and bin state before
// anything is changed.
func (s *BinService) loadTargets(ctx context.Context, tx *gorm.DB, user *models.User, fileIDs, folderIDs []string) ([]*models.File, []*models.Directory, error) {
	guard := &AccessService{DB: tx}

	files := make([]*models.File, 0, len(fileIDs))
	for _, id := range fileIDs {
		file, err := findFile(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		if _, err := guard.checkFile(ctx, file, user); err != nil {
			return nil, nil, err
		}
		if !file.IsBinned() {
			return nil, nil, ErrNotInBin
		}
		files = append(files, file)
	}

	dirs := make([]*models.Directory, 0, len(folderIDs))
	for _, id := range folderIDs {
		dir, err := findDirectory(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		if _, err := guard.checkDirectory(ctx, dir, user); err != nil {
			return nil, nil, err
		}
		if !dir.IsBinned() {
			return nil, nil, ErrNotInBin
		}
		dirs = append(dirs, dir)
	}

	return files, dirs, nil
}

func rowExists(tx *gorm.DB, model interface{}, id string) (bool, error) {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, internalError("Failed checking item", err)
	}
	return count > 0, nil
}
