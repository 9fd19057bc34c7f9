package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"video-relay-go/models"
	"video-relay-go/services"
)

var startedAt = time.Now()

// HandleHealth handles GET /health
// @Summary Health check
// @Description Liveness plus the number of transfers holding an upstream stream
// @Tags health
// @Produce json
// @Success 200 {object} models.HealthResponse
// @Router /health [get]
func HandleHealth(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:          "ok",
		Timestamp:       time.Now().UnixMilli(),
		UptimeSeconds:   time.Since(startedAt).Round(time.Second).Seconds(),
		ActiveTransfers: services.ActiveTransfers(),
	})
}
