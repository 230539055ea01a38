package routes

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/tutorhub/api/handlers"
)

func RealtimeRoutes(app *fiber.App, h *handlers.Handler, protected fiber.Handler) {
	app.Get("/ws", protected, h.UpgradeRealtime, websocket.New(h.ServeWs))
}
