package handlers

import (
	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/internal/services"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type UsersHandler struct {
	Users *services.UserService
}

func NewUsersHandler(users *services.UserService) *UsersHandler {
	return &UsersHandler{Users: users}
}

type createUserRequest struct {
	Username string `json:"username" validate:"required,username"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
}

type onboardResponse struct {
	User            *userDTO `json:"user,omitempty"`
	Token           string   `json:"token"`
	ExpiresAt       int64    `json:"expiresAt"`
	LifetimeSeconds int64    `json:"lifetimeSeconds"`
}

func toOnboardResponse(user *models.User, token *services.OnboardToken) onboardResponse {
	out := onboardResponse{
		Token:           token.Token,
		ExpiresAt:       token.ExpiresAt.Unix(),
		LifetimeSeconds: int64(token.Lifetime.Seconds()),
	}
	if user != nil {
		dto := toUserDTO(user)
		out.User = &dto
	}
	return out
}

func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.Users.List(c.UserContext())
	if err != nil {
		return Fail(c, err)
	}

	out := make([]userDTO, 0, len(users))
	for i := range users {
		out = append(out, toUserDTO(&users[i]))
	}
	return utils.Success(c, fiber.StatusOK, out)
}

// Create adds a user with a pending registration. The returned token is the
// only copy and must be handed to the user.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	admin, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		return Fail(c, err)
	}
	role := models.UserRoleUser
	if req.Role != "" {
		role = models.UserRole(req.Role)
	}

	user, token, err := h.Users.Create(c.UserContext(), req.Username, role)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(admin.ID, "admin_user_created", map[string]interface{}{
		"target_user_id": user.ID,
		"username":       user.Username,
		"role":           string(role),
	})
	return utils.SuccessMessage(c, fiber.StatusCreated, "User created", toOnboardResponse(user, token))
}

func (h *UsersHandler) Reset(c *fiber.Ctx) error {
	admin, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	username := c.Params("username")
	token, err := h.Users.Reset(c.UserContext(), username)
	if err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(admin.ID, "admin_user_reset", map[string]interface{}{
		"username": username,
	})
	return utils.SuccessMessage(c, fiber.StatusOK, "User reset", toOnboardResponse(nil, token))
}

func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	admin, err := requireUser(c)
	if err != nil {
		return Fail(c, err)
	}

	id := c.Params("id")
	if id == admin.ID {
		return Fail(c, badRequest("CANNOT_DELETE_SELF", "You cannot delete your own account", nil))
	}

	user, err := h.Users.Get(c.UserContext(), id)
	if err != nil {
		return Fail(c, err)
	}
	if err := h.Users.Delete(c.UserContext(), user); err != nil {
		return Fail(c, err)
	}

	logger.InfoWithUser(admin.ID, "admin_user_deleted", map[string]interface{}{
		"target_user_id": user.ID,
		"username":       user.Username,
	})
	return utils.SuccessMessage(c, fiber.StatusOK, "User deleted", nil)
}
