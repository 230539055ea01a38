package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
)

func PublicRoutes(app *fiber.App, h *handlers.Handler) {
	app.Get("/health", h.Health)

	tutors := app.Group("/api/v1/tutors")
	tutors.Get("", h.SearchTutors)
	tutors.Get("/:tutorId", h.GetTutor)
	tutors.Get("/:tutorId/lessons", h.GetTutorLessons)
}
