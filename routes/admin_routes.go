package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/middleware"
)

func AdminRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	admin := app.Group("/api/v1/admin", protected, middleware.AdminRequired())

	admin.Get("/tutors/pending", h.PendingTutors)
	admin.Put("/tutors/:tutorId/verification", h.SetTutorVerification)

	admin.Post("/bookings/:id/resolve-dispute", h.ResolveDispute)

	admin.Get("/refunds", h.ListRefunds)
	admin.Post("/refunds/:id/retry", h.RetryRefund)

	admin.Get("/reports/bookings.xlsx", h.BookingsReport)
}
