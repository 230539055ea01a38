package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
)

func AuthRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	auth := app.Group("/api/v1/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)
	auth.Post("/logout", protected, h.Logout)
	auth.Get("/me", protected, h.Me)
}
