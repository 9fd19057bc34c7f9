package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jaevor/go-nanoid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"video-relay-go/config"
	"video-relay-go/utils"
)

const (
	requestIDKey  = "requestid"
	preflightAge  = 86400
	serverHeader  = "video-relay-go"
	accessLogTime = "2006-01-02 15:04:05"
)

// NewApp builds the Fiber app with middleware and routes. gatherer backs
// /metrics; nil disables the endpoint.
func NewApp(h *Handler, settings *config.Settings, gatherer prometheus.Gatherer) *fiber.App {
	generateID, err := nanoid.Standard(config.RequestIDLength)
	if err != nil {
		panic(err)
	}

	app := fiber.New(fiber.Config{
		AppName:       "Video Relay Go",
		ServerHeader:  serverHeader,
		CaseSensitive: true,
		StrictRouting: false,
		ErrorHandler:  ErrorHandler,
		// Relayed chunks are flushed through this buffer
		WriteBufferSize: settings.BufferSize,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator:  generateID,
		ContextKey: requestIDKey,
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${locals:requestid}\n",
		TimeFormat: accessLogTime,
	}))
	app.Use(cors.New(cors.Config{
		// Preflight is answered by HandlePreflight
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		AllowOrigins:  h.allowOrigins,
		AllowMethods:  config.AllowMethods,
		AllowHeaders:  config.AllowHeaders,
		ExposeHeaders: fiber.HeaderContentDisposition + "," + fiber.HeaderXRequestID,
	}))

	// API routes; the catch-all per path must come last
	api := app.Group("/api")
	api.Post("/convert", h.HandleResolveBody)
	// Get also answers HEAD; a HEAD must not open a stream
	api.Head("/convert", HandleMethodNotAllowed)
	api.Get("/convert", h.HandleFetch)
	api.Options("/convert", h.HandlePreflight)
	api.All("/convert", HandleMethodNotAllowed)

	api.Get("/formats", h.HandleResolveQuery)
	api.Options("/formats", h.HandlePreflight)
	api.All("/formats", HandleMethodNotAllowed)

	api.Get("/progress/:id", h.HandleProgress)
	api.Options("/progress/:id", h.HandlePreflight)
	api.All("/progress/:id", HandleMethodNotAllowed)

	app.Get("/health", HandleHealth)
	if gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return app
}

// HandlePreflight answers OPTIONS with 200, CORS headers and no body
func (h *Handler) HandlePreflight(c *fiber.Ctx) error {
	if origin := allowedOrigin(h.allowOrigins, c.Get(fiber.HeaderOrigin)); origin != "" {
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	}
	c.Set(fiber.HeaderAccessControlAllowMethods, config.AllowMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, config.AllowHeaders)
	c.Set(fiber.HeaderAccessControlMaxAge, strconv.Itoa(preflightAge))
	c.Status(fiber.StatusOK)
	return nil
}

// HandleMethodNotAllowed answers methods an API path does not serve
func HandleMethodNotAllowed(c *fiber.Ctx) error {
	c.Set(fiber.HeaderAllow, config.AllowMethods)
	return utils.MethodNotAllowed(c)
}

// ErrorHandler renders errors that escape handlers (routing misses,
// recovered panics) in the same JSON shape as handled errors.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return utils.ErrorJSON(c, fe.Code, fe.Message)
	}
	return utils.FromError(c, err)
}

// allowedOrigin echoes origin when it is in the comma separated allow list
func allowedOrigin(allowOrigins, origin string) string {
	if allowOrigins == "" || allowOrigins == "*" {
		return "*"
	}
	for _, allowed := range strings.Split(allowOrigins, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return origin
		}
	}
	return ""
}
