package services

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindAccessDenied ErrorKind = "access_denied"
	KindValidation   ErrorKind = "validation"
	KindConflict     ErrorKind = "conflict"
	KindUnauthorized ErrorKind = "unauthorized"
	KindStorageIO    ErrorKind = "storage_io"
	KindInternal     ErrorKind = "internal"
)

// AppError is a domain failure. Handlers render it unmodified: Code becomes
// the envelope's error field and Kind selects the HTTP status.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code so that wrapped copies compare equal to the sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails returns a copy of e carrying details, leaving the sentinel
// untouched. The copy still matches e under errors.Is.
func (e *AppError) WithDetails(details interface{}) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newAppError(kind ErrorKind, code, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

func validationError(code, message string) *AppError {
	return newAppError(KindValidation, code, message, nil)
}

func storageError(message string, err error) *AppError {
	return newAppError(KindStorageIO, "STORAGE_IO_ERROR", message, err)
}

func internalError(message string, err error) *AppError {
	return newAppError(KindInternal, "INTERNAL_SERVER_ERROR", message, err)
}

var (
	ErrFileNotFound         = newAppError(KindNotFound, "FILE_NOT_FOUND", "File not found", nil)
	ErrFolderNotFound       = newAppError(KindNotFound, "FOLDER_NOT_FOUND", "Folder not found", nil)
	ErrUserNotFound         = newAppError(KindNotFound, "USER_NOT_FOUND", "User not found", nil)
	ErrFileAccessDenied     = newAppError(KindAccessDenied, "FILE_ACCESS_DENIED", "You do not have access to this file", nil)
	ErrFolderAccessDenied   = newAppError(KindAccessDenied, "FOLDER_ACCESS_DENIED", "You do not have access to this folder", nil)
	ErrNameRequired         = validationError("NAME_REQUIRED", "A name is required")
	ErrNameInvalid          = validationError("NAME_INVALID", "Names cannot contain path separators")
	ErrRootImmutable        = validationError("ROOT_IMMUTABLE", "The root folder cannot be moved, renamed or deleted")
	ErrInvalidMove          = validationError("INVALID_MOVE", "A folder cannot be moved into itself or one of its descendants")
	ErrNotInBin             = validationError("ITEM_NOT_IN_BIN", "The item is not in the bin")
	ErrNoRestoreTargets     = validationError("NO_RESTORE_TARGETS", "No files or folders to restore")
	ErrNoDeleteTargets      = validationError("NO_DELETE_TARGETS", "No files or folders to delete")
	ErrNoDownloadTargets    = validationError("NO_DOWNLOAD_TARGETS", "No files or folders to download")
	ErrInvalidUsername      = validationError("INVALID_USERNAME", "Usernames are 3-64 letters, digits, dots, dashes or underscores")
	ErrPasswordTooShort     = validationError("PASSWORD_TOO_SHORT", "Passwords must be at least 8 characters")
	ErrUserAlreadyExists    = newAppError(KindConflict, "USER_ALREADY_EXISTS", "A user with this username already exists", nil)
	ErrUserCreationFailed   = newAppError(KindInternal, "USER_CREATION_FAILED", "Failed creating user", nil)
	ErrWrongPassword        = validationError("INVALID_PASSWORD", "The current password is incorrect")
	ErrInvalidCredentials   = newAppError(KindUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	ErrPasswordResetPending = newAppError(KindUnauthorized, "PASSWORD_RESET_REQUIRED", "A password reset is required before signing in", nil)
	ErrInvalidToken         = newAppError(KindUnauthorized, "INVALID_TOKEN", "The token is invalid", nil)
	ErrExpiredToken         = newAppError(KindUnauthorized, "EXPIRED_TOKEN", "The token has expired", nil)
)

// AsAppError extracts an *AppError from err, if there is one.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsKind reports whether err is an AppError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Kind == kind
}
