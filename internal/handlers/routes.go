package handlers

import (
	"github.com/darusc/Fileknight/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type Router struct {
	Auth           *AuthHandler
	Users          *UsersHandler
	Files          *FilesHandler
	Bin            *BinHandler
	AuthMiddleware *middleware.AuthMiddleware
	LoginRateLimit int
}

// Register mounts the API under /api.
func (r *Router) Register(app *fiber.App) {
	requireAuth := r.AuthMiddleware.RequireAuth
	loginLimiter := middleware.LoginLimiter(r.LoginRateLimit)

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/login", loginLimiter, r.Auth.Login)
	authRoutes.Post("/refresh", r.Auth.Refresh)
	authRoutes.Post("/register", loginLimiter, r.Auth.Register)
	authRoutes.Post("/logout", requireAuth, r.Auth.Logout)
	authRoutes.Post("/logout-all", requireAuth, r.Auth.LogoutAll)
	authRoutes.Get("/me", requireAuth, r.Auth.Me)
	authRoutes.Put("/password", requireAuth, r.Auth.ChangePassword)

	userRoutes := api.Group("/users", requireAuth, middleware.AdminOnly)
	userRoutes.Get("/", r.Users.List)
	userRoutes.Post("/", r.Users.Create)
	userRoutes.Post("/:username/reset", r.Users.Reset)
	userRoutes.Delete("/:id", r.Users.Delete)

	fileRoutes := api.Group("/files", requireAuth)
	fileRoutes.Get("/", r.Files.List)
	fileRoutes.Post("/", r.Files.Upload)
	fileRoutes.Post("/download", r.Files.Download)
	fileRoutes.Post("/folders", r.Files.CreateFolder)
	fileRoutes.Patch("/folders/:id", r.Files.UpdateFolder)
	fileRoutes.Delete("/folders/:id", r.Files.DeleteFolder)
	fileRoutes.Patch("/:id", r.Files.UpdateFile)
	fileRoutes.Delete("/:id", r.Files.DeleteFile)

	binRoutes := api.Group("/bin", requireAuth)
	binRoutes.Get("/", r.Bin.List)
	binRoutes.Post("/restore", r.Bin.Restore)
	binRoutes.Post("/delete", r.Bin.Delete)
	binRoutes.Delete("/empty", r.Bin.Empty)
}
