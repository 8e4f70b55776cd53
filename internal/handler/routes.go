package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/SinaHo/phone-referral-auth/internal/middleware"
)

// RegisterRoutes mounts the public API on r. authenticate must resolve bearer tokens.
func RegisterRoutes(r fiber.Router, auth *AuthHandler, profiles *ProfileHandler, authenticate fiber.Handler) {
	r.Post("/user-login", auth.Login)
	r.Post("/input_verification_code", auth.VerifyCode)

	p := r.Group("/userprofiles", authenticate)
	p.Get("/", profiles.List)
	p.Post("/", middleware.RequireAuth(), profiles.Create)
	p.Get("/:id", middleware.RequireAuth(), profiles.Get)
	p.Put("/:id", middleware.RequireAuth(), profiles.Update)
	p.Patch("/:id", middleware.RequireAuth(), profiles.Patch)
	p.Delete("/:id", middleware.RequireAuth(), profiles.Delete)
}
