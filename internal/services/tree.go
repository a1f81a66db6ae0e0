package services

import (
	"context"
	"errors"
	"strings"

	"github.com/darusc/Fileknight/internal/models"
	"gorm.io/gorm"
)

// maxTreeDepth bounds ancestor walks so corrupted parent links cannot loop.
const maxTreeDepth = 4096

// resolveRoot walks parent links from dir up to its root. The second result
// reports whether dir or any ancestor is in the bin.
func resolveRoot(ctx context.Context, db *gorm.DB, dir *models.Directory) (*models.Directory, bool, error) {
	binned := dir.IsBinned()
	current := dir

	for depth := 0; current.ParentID != nil; depth++ {
		if depth > maxTreeDepth {
			return nil, false, internalError("Directory tree is corrupted", errors.New("ancestor chain exceeds maximum depth"))
		}

		var parent models.Directory
		if err := db.WithContext(ctx).First(&parent, "id = ?", *current.ParentID).Error; err != nil {
			return nil, false, internalError("Failed resolving parent directory", err)
		}
		if parent.IsBinned() {
			binned = true
		}
		current = &parent
	}

	return current, binned, nil
}

// isAncestorOrSelf reports whether candidate lies on the path from node up
// to its root.
func isAncestorOrSelf(ctx context.Context, db *gorm.DB, candidateID string, node *models.Directory) (bool, error) {
	current := node
	for depth := 0; ; depth++ {
		if current.ID == candidateID {
			return true, nil
		}
		if current.ParentID == nil {
			return false, nil
		}
		if depth > maxTreeDepth {
			return false, internalError("Directory tree is corrupted", errors.New("ancestor chain exceeds maximum depth"))
		}

		var parent models.Directory
		if err := db.WithContext(ctx).First(&parent, "id = ?", *current.ParentID).Error; err != nil {
			return false, internalError("Failed resolving parent directory", err)
		}
		current = &parent
	}
}

// collectSubtree returns dir and all of its descendants in breadth-first
// order, binned or not. Reversing the result yields a deepest-first order.
func collectSubtree(ctx context.Context, db *gorm.DB, dir *models.Directory) ([]models.Directory, error) {
	all := []models.Directory{*dir}
	frontier := []string{dir.ID}

	for depth := 0; len(frontier) > 0; depth++ {
		if depth > maxTreeDepth {
			return nil, internalError("Directory tree is corrupted", errors.New("subtree exceeds maximum depth"))
		}

		var children []models.Directory
		if err := db.WithContext(ctx).
			Where("parent_id IN ?", frontier).
			Order("name ASC").
			Find(&children).Error; err != nil {
			return nil, internalError("Failed listing subdirectories", err)
		}

		frontier = frontier[:0:0]
		for _, child := range children {
			all = append(all, child)
			frontier = append(frontier, child.ID)
		}
	}

	return all, nil
}

func directoryIDs(dirs []models.Directory) []string {
	ids := make([]string, len(dirs))
	for i := range dirs {
		ids[i] = dirs[i].ID
	}
	return ids
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrNameRequired
	}
	if !models.IsValidNodeName(name) {
		return "", ErrNameInvalid
	}
	return name, nil
}

func folderNotFound(id string) *AppError {
	return ErrFolderNotFound.WithDetails(map[string]string{"folderId": id})
}

func fileNotFound(id string) *AppError {
	return ErrFileNotFound.WithDetails(map[string]string{"fileId": id})
}

func findDirectory(ctx context.Context, db *gorm.DB, id string) (*models.Directory, error) {
	if !models.IsValidID(id) {
		return nil, folderNotFound(id)
	}
	var dir models.Directory
	if err := db.WithContext(ctx).First(&dir, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, folderNotFound(id)
		}
		return nil, internalError("Failed loading folder", err)
	}
	return &dir, nil
}

func findFile(ctx context.Context, db *gorm.DB, id string) (*models.File, error) {
	if !models.IsValidID(id) {
		return nil, fileNotFound(id)
	}
	var file models.File
	if err := db.WithContext(ctx).First(&file, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fileNotFound(id)
		}
		return nil, internalError("Failed loading file", err)
	}
	return &file, nil
}
