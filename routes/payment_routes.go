package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/middleware"
)

func PaymentRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	api := app.Group("/api/v1")

	api.Post("/payments/webhook", h.PaystackWebhook)

	paystack := api.Group("/paystack", protected)
	paystack.Post("/create-subaccount", middleware.TutorRequired(), h.CreateSubaccount)
	paystack.Post("/refund", middleware.AdminRequired(), h.RefundPayment)
}
