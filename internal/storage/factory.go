package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/metrics"
)

// New builds the configured backend, wrapped with metrics when m is non-nil.
func New(ctx context.Context, cfg *config.Config, m *metrics.Metrics) (ObjectStore, error) {
	var (
		store ObjectStore
		err   error
	)

	switch cfg.Storage.Backend {
	case "filesystem", "":
		store, err = NewFilesystemStore(cfg.Storage.RootPath)
	case "minio", "s3":
		var minioStore *MinIOStore
		minioStore, err = NewMinIOStore(cfg.MinIO)
		if err == nil {
			err = minioStore.EnsureBucket(ctx)
		}
		store = minioStore
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}

	if m == nil {
		return store, nil
	}
	return &instrumented{next: store, backend: cfg.Storage.Backend, metrics: m}, nil
}

type instrumented struct {
	next    ObjectStore
	backend string
	metrics *metrics.Metrics
}

func (i *instrumented) EnsureContainer(ctx context.Context, container string) error {
	err := i.next.EnsureContainer(ctx, container)
	i.metrics.StorageOp(i.backend, "ensure_container", err)
	return err
}

func (i *instrumented) RemoveContainer(ctx context.Context, container string) error {
	err := i.next.RemoveContainer(ctx, container)
	i.metrics.StorageOp(i.backend, "remove_container", err)
	return err
}

func (i *instrumented) Put(ctx context.Context, container, id string, reader io.Reader, size int64, contentType string) (int64, error) {
	n, err := i.next.Put(ctx, container, id, reader, size, contentType)
	i.metrics.StorageOp(i.backend, "put", err)
	if err == nil {
		i.metrics.StorageBytes(i.backend, "in", n)
	}
	return n, err
}

func (i *instrumented) Open(ctx context.Context, container, id string) (io.ReadCloser, int64, error) {
	rc, size, err := i.next.Open(ctx, container, id)
	i.metrics.StorageOp(i.backend, "open", err)
	if err == nil {
		i.metrics.StorageBytes(i.backend, "out", size)
	}
	return rc, size, err
}

func (i *instrumented) Remove(ctx context.Context, container, id string) error {
	err := i.next.Remove(ctx, container, id)
	i.metrics.StorageOp(i.backend, "remove", err)
	return err
}
