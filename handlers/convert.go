package handlers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"video-relay-go/models"
	"video-relay-go/services"
	"video-relay-go/utils"
)

// Handler serves the resolve and fetch endpoints
type Handler struct {
	resolver     *services.Resolver
	relay        *services.Relay
	allowOrigins string
}

func NewHandler(resolver *services.Resolver, relay *services.Relay, allowOrigins string) *Handler {
	return &Handler{
		resolver:     resolver,
		relay:        relay,
		allowOrigins: allowOrigins,
	}
}

// HandleResolveBody handles POST /api/convert
// @Summary List quality options
// @Tags convert
// @Accept json
// @Produce json
// @Param request body models.SourceRequest true "Source URL"
// @Success 200 {object} models.ResolveResponse
// @Failure 400 {object} models.ErrorResponse "Invalid URL"
// @Failure 502 {object} models.ErrorResponse "Source failed"
// @Router /api/convert [post]
func (h *Handler) HandleResolveBody(c *fiber.Ctx) error {
	var req models.SourceRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return utils.BadRequest(c, "Invalid request body")
		}
	}
	if strings.TrimSpace(req.URL) == "" {
		return utils.BadRequest(c, "URL is required in request body")
	}
	return h.resolve(c, req.URL)
}

// HandleResolveQuery handles GET /api/formats?url=
func (h *Handler) HandleResolveQuery(c *fiber.Ctx) error {
	rawURL := c.Query("url")
	if strings.TrimSpace(rawURL) == "" {
		return utils.BadRequest(c, "URL is required as query parameter")
	}
	return h.resolve(c, rawURL)
}

func (h *Handler) resolve(c *fiber.Ctx, rawURL string) error {
	res, err := h.resolver.Resolve(c.UserContext(), rawURL).Get()
	if err != nil {
		logError(c, err, "[Resolve] Failed")
		return utils.FromError(c, err)
	}
	return c.JSON(NewResolveResponse(strings.TrimSpace(rawURL), res))
}

// NewResolveResponse renders a resolve result. Each format carries the
// fetch URL for the same source and selector.
func NewResolveResponse(sourceURL string, res *models.ResolveResult) models.ResolveResponse {
	formats := make([]models.FormatResponse, 0, len(res.Catalog))
	for _, entry := range res.Catalog {
		formats = append(formats, models.FormatResponse{
			Quality:   entry.Quality,
			Selector:  entry.Selector,
			Container: entry.Container,
			FileSize:  entry.FileSize,
			URL:       FetchURL(sourceURL, entry.Selector),
		})
	}

	return models.ResolveResponse{
		Title:     res.Metadata.Title,
		Thumbnail: res.Metadata.Thumbnail,
		Duration:  utils.FormatDuration(res.Metadata.Duration),
		Formats:   formats,
	}
}

// FetchURL is the relative URL that fetches selector of sourceURL
func FetchURL(sourceURL, selector string) string {
	return fmt.Sprintf("/api/convert?url=%s&selector=%s", url.QueryEscape(sourceURL), url.QueryEscape(selector))
}

func logError(c *fiber.Ctx, err error, msg string) {
	entry := logrus.WithFields(logrus.Fields{
		"request": requestID(c),
		"kind":    utils.KindOf(err).String(),
	}).WithError(err)

	if utils.IsKind(err, utils.KindInvalidInput) || utils.IsKind(err, utils.KindNoSuitableFormat) {
		entry.Debug(msg)
		return
	}
	entry.Warn(msg)
}

func requestID(c *fiber.Ctx) string {
	id, _ := c.Locals(requestIDKey).(string)
	return id
}
