package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore maps containers onto key prefixes inside a single bucket. It
// works against MinIO and any S3-compatible endpoint.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	var creds *credentials.Credentials
	if cfg.AccessKey == "" {
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

func (m *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	return nil
}

// EnsureContainer only validates the name; prefixes exist implicitly.
func (m *MinIOStore) EnsureContainer(ctx context.Context, container string) error {
	return validateSegment("container", container)
}

func (m *MinIOStore) RemoveContainer(ctx context.Context, container string) error {
	if err := validateSegment("container", container); err != nil {
		return err
	}

	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
			Prefix:    container + "/",
			Recursive: true,
		}) {
			if obj.Err != nil {
				logger.Error("minio_list_failed", obj.Err, map[string]interface{}{
					"container": container,
					"bucket":    m.bucket,
				})
				return
			}
			objects <- obj
		}
	}()

	var firstErr error
	for result := range m.client.RemoveObjects(ctx, m.bucket, objects, minio.RemoveObjectsOptions{}) {
		if result.Err != nil && firstErr == nil {
			firstErr = result.Err
		}
	}
	if firstErr != nil {
		logger.Error("minio_container_remove_failed", firstErr, map[string]interface{}{
			"container": container,
			"bucket":    m.bucket,
		})
		return firstErr
	}

	logger.Info("minio_container_removed", map[string]interface{}{
		"container": container,
		"bucket":    m.bucket,
	})
	return nil
}

func (m *MinIOStore) Put(ctx context.Context, container, id string, reader io.Reader, size int64, contentType string) (int64, error) {
	if err := validateSegment("object", id); err != nil {
		return 0, err
	}
	objectName := ObjectKey(container, id)

	info, err := m.client.PutObject(ctx, m.bucket, objectName, reader, putSize(size), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		logger.Error("minio_upload_failed", err, map[string]interface{}{
			"object_name":  objectName,
			"size":         size,
			"content_type": contentType,
			"bucket":       m.bucket,
		})
		return 0, err
	}

	logger.Info("minio_upload_success", map[string]interface{}{
		"object_name":  objectName,
		"size":         info.Size,
		"content_type": contentType,
		"bucket":       m.bucket,
	})
	return info.Size, nil
}

func (m *MinIOStore) Open(ctx context.Context, container, id string) (io.ReadCloser, int64, error) {
	objectName := ObjectKey(container, id)

	obj, err := m.client.GetObject(ctx, m.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		logger.Error("minio_download_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      m.bucket,
		})
		return nil, 0, err
	}

	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if isNoSuchKey(err) {
			return nil, 0, ErrObjectNotFound
		}
		logger.Error("minio_download_stat_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      m.bucket,
		})
		return nil, 0, err
	}

	return obj, stat.Size, nil
}

func (m *MinIOStore) Remove(ctx context.Context, container, id string) error {
	objectName := ObjectKey(container, id)

	err := m.client.RemoveObject(ctx, m.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		logger.Error("minio_delete_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      m.bucket,
		})
		return err
	}

	logger.Info("minio_delete_success", map[string]interface{}{
		"object_name": objectName,
		"bucket":      m.bucket,
	})
	return nil
}

// putSize maps an unknown size to -1, which makes the client stream the
// reader to EOF instead of storing an empty object.
func putSize(size int64) int64 {
	if size <= 0 {
		return -1
	}
	return size
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
