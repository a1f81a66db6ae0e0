package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/darusc/Fileknight/internal/middleware"
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// Fail renders err in the error envelope. Domain errors keep their code and
// message; anything else becomes a generic 500.
func Fail(c *fiber.Ctx, err error) error {
	if appErr, ok := services.AsAppError(err); ok {
		status := appErr.HTTPStatus()
		if status >= fiber.StatusInternalServerError {
			logFailure(c, appErr.Code, err)
		}
		return utils.ErrorWithDetails(c, status, appErr.Code, appErr.Message, appErr.Details)
	}

	logFailure(c, "INTERNAL_SERVER_ERROR", err)
	return utils.Error(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "An unexpected error occurred")
}

func logFailure(c *fiber.Ctx, code string, err error) {
	details := map[string]interface{}{
		"code":       code,
		"path":       c.Path(),
		"request_id": middleware.GetRequestID(c),
	}
	if userID := logger.GetUserIDFromContext(c); userID != nil {
		logger.ErrorWithUser(*userID, "request_failed", err, details)
		return
	}
	logger.Error("request_failed", err, details)
}

// ErrorHandler is the fiber fallback for errors returned by handlers and
// middleware.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		switch fiberErr.Code {
		case fiber.StatusRequestEntityTooLarge:
			return utils.Error(c, fiberErr.Code, "REQUEST_ENTITY_TOO_LARGE", "The request body is too large")
		case fiber.StatusNotFound:
			return utils.Error(c, fiberErr.Code, "ROUTE_NOT_FOUND", "No route matches the request")
		case fiber.StatusMethodNotAllowed:
			return utils.Error(c, fiberErr.Code, "METHOD_NOT_ALLOWED", "The method is not allowed for this route")
		}
		if fiberErr.Code < fiber.StatusInternalServerError {
			return utils.Error(c, fiberErr.Code, "BAD_REQUEST", fiberErr.Message)
		}
	}
	return Fail(c, err)
}

func badRequest(code, message string, details interface{}) *services.AppError {
	return &services.AppError{Kind: services.KindValidation, Code: code, Message: message, Details: details}
}

// bindJSON parses the request body into dst and runs its validation tags.
func bindJSON(c *fiber.Ctx, dst interface{}) error {
	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		body = []byte("{}")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return badRequest("INVALID_JSON", "The request body is not valid JSON", nil)
	}
	if fields := utils.ValidateStruct(dst); fields != nil {
		return badRequest("VALIDATION_FAILED", "The request is invalid", fields)
	}
	return nil
}

func requireUser(c *fiber.Ctx) (*models.User, error) {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return nil, services.ErrInvalidToken
	}
	return user, nil
}

// optionalID tells an absent JSON field apart from an explicit null.
type optionalID struct {
	Set   bool
	Value *string
}

func (o *optionalID) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	o.Value = &s
	return nil
}

type fileDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
	Extension string `json:"extension"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	DeletedAt *int64 `json:"deletedAt"`
}

type directoryDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	DeletedAt *int64 `json:"deletedAt,omitempty"`
}

type contentDTO struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Directories []directoryDTO `json:"directories"`
	Files       []fileDTO      `json:"files"`
}

type userDTO struct {
	ID            string          `json:"id"`
	Username      string          `json:"username"`
	Email         *string         `json:"email,omitempty"`
	Role          models.UserRole `json:"role"`
	Registered    bool            `json:"registered"`
	ResetRequired bool            `json:"resetRequired"`
	CreatedAt     int64           `json:"createdAt"`
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.Unix()
	return &v
}

func toFileDTO(f *models.File) fileDTO {
	return fileDTO{
		ID:        f.ID,
		Name:      f.Name,
		Size:      f.Size,
		MimeType:  f.MimeType,
		Extension: f.Extension,
		CreatedAt: f.CreatedAt.Unix(),
		UpdatedAt: f.UpdatedAt.Unix(),
		DeletedAt: unixPtr(f.DeletedAt),
	}
}

func toDirectoryDTO(d *models.Directory) directoryDTO {
	return directoryDTO{
		ID:        d.ID,
		Name:      d.Name,
		CreatedAt: d.CreatedAt.Unix(),
		UpdatedAt: d.UpdatedAt.Unix(),
		DeletedAt: unixPtr(d.DeletedAt),
	}
}

func toContentDTO(id, name string, dirs []models.Directory, files []models.File) contentDTO {
	out := contentDTO{
		ID:          id,
		Name:        name,
		Directories: make([]directoryDTO, 0, len(dirs)),
		Files:       make([]fileDTO, 0, len(files)),
	}
	for i := range dirs {
		out.Directories = append(out.Directories, toDirectoryDTO(&dirs[i]))
	}
	for i := range files {
		out.Files = append(out.Files, toFileDTO(&files[i]))
	}
	return out
}

func toUserDTO(u *models.User) userDTO {
	return userDTO{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		Registered:    u.IsRegistered(),
		ResetRequired: u.ResetRequired,
		CreatedAt:     u.CreatedAt.Unix(),
	}
}
