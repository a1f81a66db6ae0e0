package handlers

import (
	"strings"

	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const deviceIDHeader = "X-Device-Id"

type AuthHandler struct {
	Users  *services.UserService
	Tokens *services.TokenService
}

func NewAuthHandler(users *services.UserService, tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{Users: users, Tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,username"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

type sessionResponse struct {
	Token        string  `json:"token"`
	RefreshToken string  `json:"refreshToken"`
	ExpiresAt    int64   `json:"expiresAt"`
	User         userDTO `json:"user"`
}

func deviceMeta(c *fiber.Ctx) services.DeviceMeta {
	return services.DeviceMeta{
		UserAgent: c.Get(fiber.HeaderUserAgent),
		DeviceID:  strings.TrimSpace(c.Get(deviceIDHeader)),
		IP:        c.IP(),
	}
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	user, err := h.Users.Authenticate(c.UserContext(), strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		return Fail(c, err)
	}

	meta := deviceMeta(c)
	pair, err := h.Tokens.Issue(c.UserContext(), user, meta)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "user_login", map[string]interface{}{
		"ip":        meta.IP,
		"device_id": meta.DeviceID,
	})
	return utils.Success(c, fiber.StatusOK, sessionResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
		User:         toUserDTO(user),
	})
}

// Refresh rotates a refresh token: the presented token is consumed and a new
// pair is returned.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	pair, user, err := h.Tokens.Refresh(c.UserContext(), strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return Fail(c, err)
	}
	return utils.Success(c, fiber.StatusOK, sessionResponse{
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    pair.ExpiresAt.Unix(),
		User:         toUserDTO(user),
	})
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	user, err := h.Users.Register(c.UserContext(), req.Username, strings.TrimSpace(req.Token), req.Password)
	if err != nil {
		return Fail(c, err)
	}
	return utils.SuccessMessage(c, fiber.StatusOK, "Registration complete", toUserDTO(user))
}

// Logout revokes the presented refresh token, or every token of the calling
// device when none is given.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req logoutRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}

	switch deviceID := strings.TrimSpace(c.Get(deviceIDHeader)); {
	case req.RefreshToken != "":
		err = h.Tokens.RevokeToken(c.UserContext(), user, strings.TrimSpace(req.RefreshToken))
	case deviceID != "":
		err = h.Tokens.RevokeDevice(c.UserContext(), user, deviceID)
	default:
		return Fail(c, badRequest("LOGOUT_TARGET_REQUIRED", "A refresh token or device ID is required", nil))
	}
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "user_logout", nil)
	return utils.SuccessMessage(c, fiber.StatusOK, "Logged out", nil)
}

func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}
	if err := h.Tokens.RevokeAll(c.UserContext(), user.ID); err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(user.ID, "user_logout_all", nil)
	return utils.SuccessMessage(c, fiber.StatusOK, "Logged out of all devices", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}
	return utils.Success(c, fiber.StatusOK, toUserDTO(user))
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	user, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}
	if err := h.Users.ChangePassword(c.UserContext(), user, req.OldPassword, req.NewPassword); err != nil {
		return Fail(c, err)
	}
	return utils.SuccessMessage(c, fiber.StatusOK, "Password changed", nil)
}
