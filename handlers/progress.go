package handlers

import (
	"github.com/gofiber/fiber/v2"
	"video-relay-go/utils"
)

// HandleProgress handles GET /api/progress/:id
// @Summary Get transfer progress
// @Description Bytes relayed so far for the fetch whose X-Request-ID is id
// @Tags progress
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.ProgressResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request ID"
// @Failure 404 {object} models.ErrorResponse "Download not found"
// @Router /api/progress/{id} [get]
func (h *Handler) HandleProgress(c *fiber.Ctx) error {
	id := c.Params("id")
	if !utils.ValidateRequestID(id) {
		return utils.BadRequest(c, "Invalid request ID")
	}

	progress, ok := h.relay.Progress(id)
	if !ok {
		return utils.NotFound(c, "Download not found")
	}
	return c.JSON(progress)
}
