package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/metrics"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

var testSetupOnce sync.Once

type testEnv struct {
	db      *gorm.DB
	fs      *storage.FilesystemStore
	store   *faultyStore
	metrics *metrics.Metrics
	files   *FileService
	dirs    *DirectoryService
	access  *AccessService
	bin     *BinService
	archive *ArchiveService
	tokens  *TokenService
	users   *UserService
	tempDir string
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		logger.SetOutput(io.Discard, logger.LevelError)
		utils.ConfigureJWT("test-secret", 15)
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(&models.User{}, &models.Directory{}, &models.File{}, &models.RefreshToken{}); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	fs, err := storage.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed creating filesystem store: %v", err)
	}
	store := &faultyStore{ObjectStore: fs}
	m := metrics.New()
	tempDir := t.TempDir()

	files := NewFileService(db, store)
	dirs := NewDirectoryService(db, store, files)
	tokens := NewTokenService(db, time.Hour)

	return &testEnv{
		db:      db,
		fs:      fs,
		store:   store,
		metrics: m,
		files:   files,
		dirs:    dirs,
		access:  NewAccessService(db),
		bin:     NewBinService(db, dirs, files, m),
		archive: NewArchiveService(db, store, files, tempDir, m),
		tokens:  tokens,
		users: NewUserService(db, dirs, tokens, config.TokenConfig{
			RefreshLifetime: time.Hour,
			CreateLifetime:  time.Hour,
			ResetLifetime:   time.Hour,
		}),
		tempDir: tempDir,
	}
}

// faultyStore lets tests make individual storage operations fail.
type faultyStore struct {
	storage.ObjectStore
	failPut       bool
	failRemove    bool
	failContainer bool
	// failRemoveAt fails only the n-th Remove call, counting from 1.
	failRemoveAt int
	removes      int
}

var errInjected = errors.New("injected storage failure")

func (f *faultyStore) EnsureContainer(ctx context.Context, container string) error {
	if f.failContainer {
		return errInjected
	}
	return f.ObjectStore.EnsureContainer(ctx, container)
}

func (f *faultyStore) Put(ctx context.Context, container, id string, reader io.Reader, size int64, contentType string) (int64, error) {
	if f.failPut {
		return 0, errInjected
	}
	return f.ObjectStore.Put(ctx, container, id, reader, size, contentType)
}

func (f *faultyStore) Remove(ctx context.Context, container, id string) error {
	f.removes++
	if f.failRemove || f.removes == f.failRemoveAt {
		return errInjected
	}
	return f.ObjectStore.Remove(ctx, container, id)
}

func (e *testEnv) createUser(t *testing.T, username string) (*models.User, *models.Directory) {
	t.Helper()
	hash := "unused"
	user := &models.User{Username: username, PasswordHash: &hash, Role: models.UserRoleUser}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("failed creating user %s: %v", username, err)
	}
	root, err := e.dirs.CreateRoot(context.Background(), user)
	if err != nil {
		t.Fatalf("failed creating root for %s: %v", username, err)
	}
	return user, root
}

func (e *testEnv) mkdir(t *testing.T, parent *models.Directory, name string) *models.Directory {
	t.Helper()
	dir, err := e.dirs.Create(context.Background(), parent, name)
	if err != nil {
		t.Fatalf("failed creating folder %s: %v", name, err)
	}
	return dir
}

func (e *testEnv) upload(t *testing.T, dir *models.Directory, filename, content string) *models.File {
	t.Helper()
	file, err := e.files.Upload(context.Background(), dir, UploadInput{
		Reader:       strings.NewReader(content),
		OriginalName: filename,
		Size:         int64(len(content)),
	})
	if err != nil {
		t.Fatalf("failed uploading %s: %v", filename, err)
	}
	return file
}

func (e *testEnv) objectExists(t *testing.T, container, id string) bool {
	t.Helper()
	_, err := os.Stat(e.fs.Path(container, id))
	if err == nil {
		return true
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("failed checking object %s/%s: %v", container, id, err)
	}
	return false
}

// assertRowsHaveObjects checks that every file row still has its object.
func (e *testEnv) assertRowsHaveObjects(t *testing.T) {
	t.Helper()
	var files []models.File
	if err := e.db.Find(&files).Error; err != nil {
		t.Fatalf("failed listing files: %v", err)
	}
	for i := range files {
		container, _, err := e.files.Container(context.Background(), &files[i])
		if err != nil {
			t.Fatalf("failed resolving container of %s: %v", files[i].ID, err)
		}
		if !e.objectExists(t, container, files[i].ID) {
			t.Fatalf("file row %s (%s) has no object", files[i].ID, files[i].Name)
		}
	}
}

func (e *testEnv) readFile(t *testing.T, file *models.File) string {
	t.Helper()
	rc, _, err := e.files.Open(context.Background(), file)
	if err != nil {
		t.Fatalf("failed opening file %s: %v", file.ID, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		t.Fatalf("failed reading file %s: %v", file.ID, err)
	}
	return buf.String()
}

func (e *testEnv) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed counting rows: %v", err)
	}
	return n
}

func assertAppError(t *testing.T, err error, want *AppError) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s, got nil", want.Code)
	}
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}
