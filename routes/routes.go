package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
	"github.com/tutorhub/api/middleware"
)

// Register mounts every route group.
func Register(app *fiber.App, h *handlers.Handler, jwtSecret string) {
	protected := middleware.Protected(jwtSecret)

	PublicRoutes(app, h)
	AuthRoutes(app, h, protected)
	TutorRoutes(app, h, protected)
	BookingRoutes(app, h, protected)
	PaymentRoutes(app, h, protected)
	AdminRoutes(app, h, protected)
	RealtimeRoutes(app, h, protected)
}
