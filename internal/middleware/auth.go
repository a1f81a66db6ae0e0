package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/darusc/Fileknight/internal/models"
	"github.com/darusc/Fileknight/pkg/logger"
	"github.com/darusc/Fileknight/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

const (
	currentUserKey = "currentUser"
	userIDKey      = "userID"
)

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS(allowOrigins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Device-Id",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition",
	})
}

// LoginLimiter throttles credential endpoints per client IP.
func LoginLimiter(max int) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			logger.Warn("login_rate_limited", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many attempts, try again later")
		},
	})
}

func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		logger.Warn("auth_missing_header", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "MISSING_TOKEN", "Missing authorization header")
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("auth_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return utils.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "Invalid authorization format")
	}

	claims, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		if errors.Is(err, jwt.ErrTokenExpired) {
			return utils.Error(c, fiber.StatusUnauthorized, "EXPIRED_TOKEN", "The token has expired")
		}
		return utils.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "The token is invalid")
	}

	var user models.User
	if err := a.DB.WithContext(c.UserContext()).First(&user, "id = ?", claims.UserID).Error; err != nil {
		logger.Warn("jwt_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": claims.UserID,
		})
		return utils.Error(c, fiber.StatusUnauthorized, "INVALID_TOKEN", "The token is invalid")
	}
	if user.ResetRequired {
		return utils.Error(c, fiber.StatusUnauthorized, "PASSWORD_RESET_REQUIRED", "A password reset is required before signing in")
	}

	c.Locals(currentUserKey, &user)
	c.Locals(userIDKey, user.ID)
	return c.Next()
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
	}
	if user.Role != models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "ADMIN_REQUIRED", "Admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
