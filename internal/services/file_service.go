package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/gabriel-vasile/mimetype"
	"gorm.io/gorm"
)

const (
	sniffLimit         = 3072
	maxExtensionLength = 15
)

type UploadInput struct {
	Reader       io.Reader
	OriginalName string
	// Name overrides the display name derived from OriginalName.
	Name string
	Size int64
}

// FileService manages file metadata and keeps it in lockstep with the
// physical objects.
type FileService struct {
	db    *gorm.DB
	txm   TxManager
	store storage.ObjectStore
	locks *keyedMutex
}

func NewFileService(db *gorm.DB, store storage.ObjectStore) *FileService {
	return &FileService{
		db:    db,
		txm:   NewGormTxManager(db),
		store: store,
		locks: newKeyedMutex(),
	}
}

func (s *FileService) Get(ctx context.Context, id string) (*models.File, error) {
	return findFile(ctx, s.db, id)
}

// Container returns the storage container holding the file's bytes and
// whether the file is effectively in the bin.
func (s *FileService) Container(ctx context.Context, file *models.File) (string, bool, error) {
	return s.container(ctx, nil, file)
}

func (s *FileService) container(ctx context.Context, tx *gorm.DB, file *models.File) (string, bool, error) {
	db := useTx(ctx, s.db, tx)
	dir, err := findDirectory(ctx, db, file.DirectoryID)
	if err != nil {
		if errors.Is(err, ErrFolderNotFound) {
			return "", false, internalError("File references a missing folder", err)
		}
		return "", false, err
	}
	root, binned, err := resolveRoot(ctx, db, dir)
	if err != nil {
		return "", false, err
	}
	return root.Name, binned || file.IsBinned(), nil
}

// Upload stores a new file in dir. The row and the object are created
// together: a storage failure rolls back the row, and a failed commit removes
// the object that was written.
func (s *FileService) Upload(ctx context.Context, dir *models.Directory, in UploadInput) (*models.File, error) {
	head := make([]byte, sniffLimit)
	n, err := io.ReadFull(in.Reader, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, storageError("Failed reading upload", err)
	}
	head = head[:n]
	detected := mimetype.Detect(head)
	body := io.MultiReader(bytes.NewReader(head), in.Reader)

	name, ext := splitUploadName(in.OriginalName)
	if strings.TrimSpace(in.Name) != "" {
		name = in.Name
	}
	if name, err = normalizeName(name); err != nil {
		return nil, err
	}
	if ext == "" {
		ext = strings.TrimPrefix(detected.Extension(), ".")
	}
	mimeType := detected.String()
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	root, binned, err := resolveRoot(ctx, s.db, dir)
	if err != nil {
		return nil, err
	}
	if binned {
		return nil, folderNotFound(dir.ID)
	}

	unlock := s.locks.Lock(dir.ID)
	defer unlock()

	var (
		file    *models.File
		written bool
	)
	err = s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		finalName, err := nextAvailableName(ctx, tx, dir.ID, name)
		if err != nil {
			return err
		}

		file = &models.File{
			DirectoryID: dir.ID,
			Name:        finalName,
			Extension:   ext,
			MimeType:    mimeType,
			Size:        max(in.Size, 0),
		}
		if err := tx.Create(file).Error; err != nil {
			return internalError("Failed saving file", err)
		}

		size, err := s.store.Put(ctx, root.Name, file.ID, body, in.Size, file.MimeType)
		if err != nil {
			return storageError("Failed storing file contents", err)
		}
		written = true

		if size != file.Size {
			file.Size = size
			if err := tx.Model(file).Update("size", size).Error; err != nil {
				return internalError("Failed saving file size", err)
			}
		}
		return nil
	})
	if err != nil {
		if written {
			if rmErr := s.store.Remove(context.WithoutCancel(ctx), root.Name, file.ID); rmErr != nil {
				logger.Error("upload_compensation_failed", rmErr, map[string]interface{}{
					"container": root.Name,
					"file_id":   file.ID,
				})
			}
		}
		return nil, err
	}

	logger.Info("file_uploaded", map[string]interface{}{
		"file_id":      file.ID,
		"directory_id": dir.ID,
		"size":         file.Size,
		"mime_type":    file.MimeType,
	})
	return file, nil
}

// Update renames and/or moves a file. Only metadata changes.
func (s *FileService) Update(ctx context.Context, file *models.File, newDir *models.Directory, newName *string) (*models.File, error) {
	updates := map[string]interface{}{}

	if newName != nil {
		name, err := normalizeName(*newName)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
	}

	if newDir != nil && newDir.ID != file.DirectoryID {
		current, err := findDirectory(ctx, s.db, file.DirectoryID)
		if err != nil {
			return nil, err
		}
		currentRoot, _, err := resolveRoot(ctx, s.db, current)
		if err != nil {
			return nil, err
		}
		targetRoot, binned, err := resolveRoot(ctx, s.db, newDir)
		if err != nil {
			return nil, err
		}
		if targetRoot.ID != currentRoot.ID {
			return nil, ErrFolderAccessDenied.WithDetails(map[string]string{"folderId": newDir.ID})
		}
		if binned {
			return nil, folderNotFound(newDir.ID)
		}
		updates["directory_id"] = newDir.ID
	}

	if len(updates) == 0 {
		return file, nil
	}
	if err := s.db.WithContext(ctx).Model(file).Updates(updates).Error; err != nil {
		return nil, internalError("Failed updating file", err)
	}
	return findFile(ctx, s.db, file.ID)
}

// Delete permanently removes the row and then the object. A failed object
// removal leaves an orphaned object behind, never a row without bytes.
func (s *FileService) Delete(ctx context.Context, file *models.File) error {
	var removed []storedObject
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		container, _, err := s.container(ctx, tx, file)
		if err != nil {
			return err
		}
		obj, err := s.deleteTx(tx, container, file)
		if err != nil {
			return err
		}
		removed = append(removed, obj)
		return nil
	})
	if err != nil {
		return err
	}
	s.removeObjects(ctx, removed)
	return nil
}

// storedObject addresses a physical object whose row is gone.
type storedObject struct {
	container string
	id        string
}

func (s *FileService) deleteTx(tx *gorm.DB, container string, file *models.File) (storedObject, error) {
	if err := tx.Delete(&models.File{}, "id = ?", file.ID).Error; err != nil {
		return storedObject{}, internalError("Failed deleting file", err)
	}
	return storedObject{container: container, id: file.ID}, nil
}

// removeObjects runs after the deleting transaction has committed. Objects
// that cannot be removed are logged as orphans.
func (s *FileService) removeObjects(ctx context.Context, objects []storedObject) {
	for _, obj := range objects {
		if err := s.store.Remove(ctx, obj.container, obj.id); err != nil {
			logger.Error("object_orphaned", err, map[string]interface{}{
				"file_id":   obj.id,
				"container": obj.container,
			})
			continue
		}
		logger.Info("file_deleted", map[string]interface{}{
			"file_id":   obj.id,
			"container": obj.container,
		})
	}
}

// Open returns the file's bytes. A missing object is reported as FileNotFound.
func (s *FileService) Open(ctx context.Context, file *models.File) (io.ReadCloser, int64, error) {
	container, _, err := s.container(ctx, nil, file)
	if err != nil {
		return nil, 0, err
	}
	rc, size, err := s.store.Open(ctx, container, file.ID)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, 0, fileNotFound(file.ID)
		}
		return nil, 0, storageError("Failed opening file contents", err)
	}
	return rc, size, nil
}

// SoftDelete marks a single file as binned.
func (s *FileService) SoftDelete(ctx context.Context, file *models.File) error {
	now := time.Now().UTC()
	if err := s.db.WithContext(ctx).Model(file).Update("deleted_at", now).Error; err != nil {
		return internalError("Failed moving file to bin", err)
	}
	file.DeletedAt = &now
	return nil
}

// splitUploadName splits a client filename into display name and extension.
// Dotfiles such as ".env" keep their full name and have no extension.
func splitUploadName(original string) (string, string) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(original), "\\", "/"))
	if base == "." || base == "/" {
		return "", ""
	}

	idx := strings.LastIndex(base, ".")
	if idx <= 0 || idx == len(base)-1 {
		return base, ""
	}

	ext := base[idx+1:]
	if len(ext) > maxExtensionLength {
		return base, ""
	}
	return base[:idx], ext
}

var suffixPattern = regexp.MustCompile(`^(.*) \((\d+)\)$`)

// nextAvailableName returns base when no sibling uses it, otherwise
// "base (n)" where n is one more than the highest suffix already present.
// Binned siblings count, so restoring them never produces duplicates.
func nextAvailableName(ctx context.Context, tx *gorm.DB, directoryID, base string) (string, error) {
	var names []string
	err := tx.WithContext(ctx).
		Model(&models.File{}).
		Where("directory_id = ?", directoryID).
		Where("name = ? OR name LIKE ? ESCAPE '\\'", base, escapeLike(base)+" (%)").
		Pluck("name", &names).Error
	if err != nil {
		return "", internalError("Failed checking file names", err)
	}

	taken := false
	highest := 0
	for _, existing := range names {
		if existing == base {
			taken = true
			continue
		}
		match := suffixPattern.FindStringSubmatch(existing)
		if match == nil || match[1] != base {
			continue
		}
		if n, err := strconv.Atoi(match[2]); err == nil && n > highest {
			highest = n
		}
	}

	if !taken {
		return base, nil
	}
	return base + " (" + strconv.Itoa(highest+1) + ")", nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}

// keyedMutex serialises work per key, here per directory, so that
// concurrent uploads cannot compute the same suffix.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
