package handlers

import (
	"context"
	"time"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/tutorhub/api/middleware"
	ws "github.com/tutorhub/api/websocket"
)

const wsUserKey = "ws_user_id"

// UpgradeRealtime runs after Protected and stashes the caller for ServeWs,
// which only sees the upgraded connection.
func (h *Handler) UpgradeRealtime(c *fiber.Ctx) error {
	if !websocketcontrib.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	id, err := middleware.CurrentUser(c)
	if err != nil {
		return h.respondError(c, err)
	}
	c.Locals(wsUserKey, id.UserID)
	return c.Next()
}

// ServeWs keeps the connection registered until the client goes away.
// Clients only receive; anything they send is discarded.
func (h *Handler) ServeWs(c *websocketcontrib.Conn) {
	userID, ok := c.Locals(wsUserKey).(uuid.UUID)
	if !ok {
		c.Close()
		return
	}
	client := &ws.Client{UserID: userID, Conn: c}
	h.Hub.Register(client)
	defer h.Hub.Unregister(client)

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if !websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseNormalClosure) {
				h.Log.Debug().Err(err).Str("user_id", userID.String()).Msg("websocket read failed")
			}
			return
		}
	}
}

type healthReport struct {
	Status     string  `json:"status"`
	Database   string  `json:"database"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float64 `json:"mem_percent"`
}

// Health pings the database and reports host load. Only a database failure
// makes the service unhealthy.
func (h *Handler) Health(c *fiber.Ctx) error {
	report := healthReport{Status: "ok", Database: "ok"}

	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()
	sqlDB, err := h.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		h.Log.Error().Err(err).Msg("health check: database unreachable")
		report.Status, report.Database = "degraded", "unreachable"
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		report.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		report.MemPercent = vm.UsedPercent
	}

	status := fiber.StatusOK
	if report.Status != "ok" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}
