package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/darusc/Fileknight/internal/config"
	"github.com/darusc/Fileknight/internal/middleware"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/internal/storage"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const testBodyLimit = 1024 * 1024

type testEnv struct {
	app     *fiber.App
	db      *gorm.DB
	users   *services.UserService
	tokens  *services.TokenService
	dirs    *services.DirectoryService
	tempDir string
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	return setupTestEnvWithLimit(t, 0)
}

func setupTestEnvWithLimit(t *testing.T, loginLimit int) *testEnv {
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

	store, err := storage.NewFilesystemStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed creating filesystem store: %v", err)
	}
	tempDir := t.TempDir()

	fileService := services.NewFileService(db, store)
	directoryService := services.NewDirectoryService(db, store, fileService)
	accessService := services.NewAccessService(db)
	binService := services.NewBinService(db, directoryService, fileService, nil)
	archiveService := services.NewArchiveService(db, store, fileService, tempDir, nil)
	tokenService := services.NewTokenService(db, time.Hour)
	userService := services.NewUserService(db, directoryService, tokenService, config.TokenConfig{
		RefreshLifetime: time.Hour,
		CreateLifetime:  time.Hour,
		ResetLifetime:   time.Hour,
	})

	router := &Router{
		Auth:           NewAuthHandler(userService, tokenService),
		Users:          NewUsersHandler(userService),
		Files:          NewFilesHandler(fileService, directoryService, accessService, binService, archiveService, false),
		Bin:            NewBinHandler(binService),
		AuthMiddleware: middleware.NewAuthMiddleware(db),
		LoginRateLimit: loginLimit,
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    testBodyLimit,
		ErrorHandler: ErrorHandler,
	})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS("*"))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})
	router.Register(app)

	return &testEnv{
		app:     app,
		db:      db,
		users:   userService,
		tokens:  tokenService,
		dirs:    directoryService,
		tempDir: tempDir,
	}
}

// createTestUser creates and registers a user and returns an access token
// for them.
func (e *testEnv) createTestUser(t *testing.T, username, password string, role models.UserRole) (*models.User, string) {
	t.Helper()
	ctx := context.Background()

	_, onboard, err := e.users.Create(ctx, username, role)
	if err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}
	user, err := e.users.Register(ctx, username, onboard.Token, password)
	if err != nil {
		t.Fatalf("failed registering test user: %v", err)
	}

	token, err := utils.GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}
	return user, token
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// uploadFile posts a multipart upload and returns the created file's data.
func uploadFile(t *testing.T, app *fiber.App, token, parentID, filename, content string) map[string]any {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed creating form file: %v", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		t.Fatalf("failed writing form file: %v", err)
	}
	if parentID != "" {
		if err := w.WriteField("parentId", parentID); err != nil {
			t.Fatalf("failed writing parentId: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	headers := authHeaders(token)
	headers["Content-Type"] = w.FormDataContentType()
	resp := performRequest(t, app, http.MethodPost, "/api/files", &buf, headers)
	assertStatus(t, resp, http.StatusCreated)
	return dataMap(t, decodeJSONMap(t, resp))
}

func createFolder(t *testing.T, app *fiber.App, token string, parentID any, name string) string {
	t.Helper()

	resp := performJSONRequest(t, app, http.MethodPost, "/api/files/folders", map[string]any{
		"name":     name,
		"parentId": parentID,
	}, authHeaders(token))
	assertStatus(t, resp, http.StatusCreated)
	return dataMap(t, decodeJSONMap(t, resp))["id"].(string)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}
	return payload
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T (%+v)", body["data"], body)
	}
	return data
}

func names(t *testing.T, items any) []string {
	t.Helper()
	list, ok := items.([]any)
	if !ok {
		t.Fatalf("expected list, got %T", items)
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, item.(map[string]any)["name"].(string))
	}
	return out
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d body=%s", expected, resp.StatusCode, raw)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

func assertErrorResponse(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	assertStatus(t, resp, status)
	assertEnvelopeError(t, decodeJSONMap(t, resp), code)
}
