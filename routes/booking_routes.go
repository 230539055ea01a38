package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/middleware"
)

func BookingRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	api := app.Group("/api/v1")
	api.Get("/dashboard", protected, h.Dashboard)

	booking := api.Group("/bookings", protected)
	booking.Post("/checkout", h.Checkout)
	booking.Post("", h.CreateBooking)
	booking.Post("/:id/cancel", h.CancelBooking)
	booking.Post("/:id/dispute", h.DisputeBooking)
	booking.Post("/:id/no-show", h.ReportNoShow)
	booking.Post("/:id/review", h.SubmitReview)

	tutorOnly := middleware.TutorRequired()
	booking.Post("/:id/accept", tutorOnly, h.AcceptBooking)
	booking.Post("/:id/reject", tutorOnly, h.RejectBooking)
	booking.Post("/:id/complete", tutorOnly, h.CompleteBooking)
}
