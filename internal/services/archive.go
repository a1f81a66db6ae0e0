package services

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/darusc/Fileknight/internal/metrics"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/klauspost/compress/zip"
	"gorm.io/gorm"
)

// Download is either a single stored object (Reader set) or a temporary zip
// archive on local disk (Path set).
type Download struct {
	Reader      io.ReadCloser
	Size        int64
	Filename    string
	ContentType string

	Path      string
	Temporary bool
}

// Body returns the payload stream. For archives, closing the stream removes
// the file when removeAfter is true.
func (d *Download) Body(removeAfter bool) (io.ReadCloser, int64, error) {
	if d.Reader != nil {
		return d.Reader, d.Size, nil
	}

	f, err := os.Open(d.Path)
	if err != nil {
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	if !removeAfter {
		return f, info.Size(), nil
	}
	return &removeOnClose{File: f}, info.Size(), nil
}

// Discard releases the payload without sending it.
func (d *Download) Discard() {
	if d.Reader != nil {
		_ = d.Reader.Close()
	}
	if d.Temporary && d.Path != "" {
		_ = os.Remove(d.Path)
	}
}

type removeOnClose struct {
	*os.File
}

func (r *removeOnClose) Close() error {
	err := r.File.Close()
	if rmErr := os.Remove(r.File.Name()); rmErr != nil && err == nil && !errors.Is(rmErr, os.ErrNotExist) {
		err = rmErr
	}
	return err
}

// ArchiveService turns a selection of files and directories into a
// download.
type ArchiveService struct {
	db      *gorm.DB
	store   storage.ObjectStore
	files   *FileService
	tempDir string
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewArchiveService(db *gorm.DB, store storage.ObjectStore, files *FileService, tempDir string, m *metrics.Metrics) *ArchiveService {
	return &ArchiveService{
		db:      db,
		store:   store,
		files:   files,
		tempDir: tempDir,
		metrics: m,
		now:     time.Now,
	}
}

// BuildDownload returns the single file as-is when exactly one file and no
// directories are selected. Any other selection is bundled into a zip
// archive: files at the archive root, each directory as a subtree under its
// own name.
func (s *ArchiveService) BuildDownload(ctx context.Context, dirs []*models.Directory, files []*models.File) (*Download, error) {
	if len(dirs) == 0 && len(files) == 0 {
		return nil, ErrNoDownloadTargets
	}

	if len(dirs) == 0 && len(files) == 1 {
		file := files[0]
		rc, size, err := s.files.Open(ctx, file)
		if err != nil {
			return nil, err
		}
		s.metrics.Download("single", 1)
		return &Download{
			Reader:      rc,
			Size:        size,
			Filename:    file.FullName(),
			ContentType: file.MimeType,
		}, nil
	}

	return s.buildArchive(ctx, dirs, files)
}

func (s *ArchiveService) buildArchive(ctx context.Context, dirs []*models.Directory, files []*models.File) (*Download, error) {
	pattern := "download_" + s.now().Format("20060102_150405") + "_*.zip"
	tmp, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return nil, storageError("Failed creating archive", err)
	}

	cleanup := true
	defer func() {
		if cleanup {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	w := &archiveWriter{
		ctx:   ctx,
		zip:   zip.NewWriter(tmp),
		store: s.store,
		used:  make(map[string]struct{}),
	}

	for _, file := range files {
		container, _, err := s.files.Container(ctx, file)
		if err != nil {
			return nil, err
		}
		if err := w.addFile(container, "", file); err != nil {
			return nil, err
		}
	}

	for _, dir := range dirs {
		root, _, err := resolveRoot(ctx, s.db, dir)
		if err != nil {
			return nil, err
		}
		if err := s.addDirectory(ctx, w, root.Name, w.reserve(dir.Name), dir); err != nil {
			return nil, err
		}
	}

	if err := w.zip.Close(); err != nil {
		return nil, storageError("Failed finalising archive", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, storageError("Failed finalising archive", err)
	}
	cleanup = false

	s.metrics.Download("archive", w.entries)
	logger.Info("archive_built", map[string]interface{}{
		"path":        tmp.Name(),
		"entries":     w.entries,
		"files":       len(files),
		"directories": len(dirs),
	})

	return &Download{
		Path:        tmp.Name(),
		Filename:    "",
		ContentType: "application/zip",
		Temporary:   true,
	}, nil
}

// addDirectory writes the live content of dir below prefix, recursing into
// live subdirectories.
func (s *ArchiveService) addDirectory(ctx context.Context, w *archiveWriter, container, prefix string, dir *models.Directory) error {
	var files []models.File
	if err := s.db.WithContext(ctx).
		Where("directory_id = ? AND deleted_at IS NULL", dir.ID).
		Order("name ASC").
		Find(&files).Error; err != nil {
		return internalError("Failed listing files", err)
	}
	for i := range files {
		if err := w.addFile(container, prefix, &files[i]); err != nil {
			return err
		}
	}

	var children []models.Directory
	if err := s.db.WithContext(ctx).
		Where("parent_id = ? AND deleted_at IS NULL", dir.ID).
		Order("name ASC").
		Find(&children).Error; err != nil {
		return internalError("Failed listing folders", err)
	}
	for i := range children {
		childPrefix := w.reserve(path.Join(prefix, children[i].Name))
		if err := s.addDirectory(ctx, w, container, childPrefix, &children[i]); err != nil {
			return err
		}
	}
	return nil
}

type archiveWriter struct {
	ctx     context.Context
	zip     *zip.Writer
	store   storage.ObjectStore
	used    map[string]struct{}
	entries int
}

// reserve claims a unique archive path, inserting "(n)" before the
// extension of the last segment on collision.
func (w *archiveWriter) reserve(p string) string {
	p = strings.Trim(p, "/")
	if _, taken := w.used[p]; !taken {
		w.used[p] = struct{}{}
		return p
	}

	dir, base := path.Split(p)
	stem, ext := base, ""
	if idx := strings.LastIndex(base, "."); idx > 0 {
		stem, ext = base[:idx], base[idx:]
	}

	for n := 1; ; n++ {
		candidate := dir + stem + "(" + strconv.Itoa(n) + ")" + ext
		if _, taken := w.used[candidate]; !taken {
			w.used[candidate] = struct{}{}
			return candidate
		}
	}
}

func (w *archiveWriter) addFile(container, prefix string, file *models.File) error {
	name := w.reserve(path.Join(prefix, file.FullName()))

	rc, _, err := w.store.Open(w.ctx, container, file.ID)
	if err != nil {
		return storageError("Failed reading "+name+" for archive", err)
	}
	defer rc.Close()

	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: file.UpdatedAt,
	}
	entry, err := w.zip.CreateHeader(header)
	if err != nil {
		return storageError("Failed writing archive entry", err)
	}
	if _, err := io.Copy(entry, rc); err != nil {
		return storageError("Failed writing archive entry", err)
	}
	w.entries++
	return nil
}
