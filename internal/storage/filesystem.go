package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/darusc/Fileknight/pkg/logger"
)

// FilesystemStore keeps each container as a directory under basePath and each
// object as a single file named by its ID.
type FilesystemStore struct {
	basePath string
}

func NewFilesystemStore(basePath string) (*FilesystemStore, error) {
	if err := os.MkdirAll(basePath, 0o775); err != nil {
		return nil, fmt.Errorf("failed creating storage root %s: %w", basePath, err)
	}
	return &FilesystemStore{basePath: basePath}, nil
}

// Path returns the on-disk location of an object.
func (s *FilesystemStore) Path(container, id string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(ObjectKey(container, id)))
}

func (s *FilesystemStore) containerPath(container string) string {
	return filepath.Join(s.basePath, container)
}

func (s *FilesystemStore) EnsureContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSegment("container", container); err != nil {
		return err
	}
	if err := os.MkdirAll(s.containerPath(container), 0o775); err != nil {
		logger.Error("fs_container_create_failed", err, map[string]interface{}{
			"container": container,
		})
		return err
	}
	return nil
}

func (s *FilesystemStore) RemoveContainer(ctx context.Context, container string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSegment("container", container); err != nil {
		return err
	}
	if err := os.RemoveAll(s.containerPath(container)); err != nil {
		logger.Error("fs_container_remove_failed", err, map[string]interface{}{
			"container": container,
		})
		return err
	}
	logger.Info("fs_container_removed", map[string]interface{}{"container": container})
	return nil
}

// Put writes to a temporary file in the container and renames it into place
// so a reader never observes a partial object.
func (s *FilesystemStore) Put(ctx context.Context, container, id string, reader io.Reader, size int64, contentType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validateSegment("container", container); err != nil {
		return 0, err
	}
	if err := validateSegment("object", id); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.containerPath(container), ".upload-*")
	if err != nil {
		logger.Error("fs_put_failed", err, map[string]interface{}{
			"container": container,
			"object":    id,
		})
		return 0, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: reader})
	if err != nil {
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		return written, err
	}
	if err := tmp.Close(); err != nil {
		return written, err
	}
	if err := os.Rename(tmp.Name(), s.Path(container, id)); err != nil {
		return written, err
	}
	committed = true

	logger.Debug("fs_put_success", map[string]interface{}{
		"container":    container,
		"object":       id,
		"size":         written,
		"content_type": contentType,
	})
	return written, nil
}

func (s *FilesystemStore) Open(ctx context.Context, container, id string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if err := validateSegment("container", container); err != nil {
		return nil, 0, err
	}
	if err := validateSegment("object", id); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(s.Path(container, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, ErrObjectNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *FilesystemStore) Remove(ctx context.Context, container, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateSegment("container", container); err != nil {
		return err
	}
	if err := validateSegment("object", id); err != nil {
		return err
	}

	err := os.Remove(s.Path(container, id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("fs_remove_failed", err, map[string]interface{}{
			"container": container,
			"object":    id,
		})
		return err
	}
	return nil
}

// contextReader stops a long copy once the request context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
