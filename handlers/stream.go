package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"video-relay-go/models"
	"video-relay-go/utils"
)

// HandleFetch handles GET /api/convert?url=&selector=
// @Summary Stream one encoding
// @Description Relays the source bytes of the selected encoding as an attachment
// @Tags convert
// @Produce octet-stream
// @Param url query string true "Source URL"
// @Param selector query string false "Selector from the resolve response (alias: itag)"
// @Success 200 {file} binary "Media stream"
// @Failure 400 {object} models.ErrorResponse "Invalid URL or no suitable format"
// @Failure 502 {object} models.ErrorResponse "Source failed"
// @Router /api/convert [get]
func (h *Handler) HandleFetch(c *fiber.Ctx) error {
	req := models.SourceRequest{
		URL:      c.Query("url"),
		Selector: strings.TrimSpace(c.Query("selector", c.Query("itag"))),
	}
	if strings.TrimSpace(req.URL) == "" {
		return utils.BadRequest(c, "URL is required as query parameter")
	}

	transfer, err := h.relay.Open(c.UserContext(), req).Get()
	if err != nil {
		logError(c, err, "[Fetch] Failed before streaming")
		return utils.FromError(c, err)
	}
	transfer.RequestID = requestID(c)
	h.relay.Track(transfer)

	c.Set(fiber.HeaderContentType, transfer.ContentType)
	c.Set(fiber.HeaderContentDisposition, transfer.Disposition)
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// The server drains and closes transfer after the handler returns. A read
	// error after this point aborts the chunked body without a terminator.
	transfer.Commit()
	c.Context().SetBodyStream(transfer, -1)
	return nil
}
