package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health    *handlers.HealthHandler
	Tickets   *handlers.TicketsHandler
	Classify  *handlers.ClassifyHandler
	Stats     *handlers.StatsHandler
	Metrics   *observability.Metrics
	RateLimit fiber.Handler
}

// AppDependencies carries app-level settings. ProxyHeader is honoured only for
// peers listed in TrustedProxies.
type AppDependencies struct {
	Name           string
	Logger         *zap.Logger
	RequestTimeout time.Duration
	TrustedProxies []string
	ProxyHeader    string
}

// RegisterRoutes wires HTTP routes. Static ticket paths are registered before /:id.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	if cfg.Health != nil {
		app.Get("/health/live", cfg.Health.Live)
		app.Get("/health/ready", cfg.Health.Ready)
	}
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	tickets := app.Group("/api/tickets")

	classify := []fiber.Handler{cfg.Classify.Classify}
	if cfg.RateLimit != nil {
		classify = append([]fiber.Handler{cfg.RateLimit}, classify...)
	}
	tickets.Post("/classify", classify...)
	tickets.Get("/stats", cfg.Stats.Stats)

	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Put("/:id", cfg.Tickets.UpdateTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Post("/:id/apply-suggestion", cfg.Tickets.ApplySuggestion)
}

// NewApp builds the fiber app with the shared error renderer.
func NewApp(cfg RouteConfig, deps AppDependencies) *fiber.App {
	fiberCfg := fiber.Config{
		AppName:      deps.Name,
		ErrorHandler: ErrorHandler(deps.Logger, cfg.Metrics),
	}
	proxyConfig(&fiberCfg, deps)
	app := fiber.New(fiberCfg)
	RegisterMiddlewares(app, deps.Logger, cfg.Metrics, deps.RequestTimeout)
	RegisterRoutes(app, cfg)
	return app
}

// proxyConfig lets c.IP() read the proxy header only when the peer is a trusted proxy.
// Without a trusted list the header is ignored entirely.
func proxyConfig(fiberCfg *fiber.Config, deps AppDependencies) {
	if len(deps.TrustedProxies) == 0 || deps.ProxyHeader == "" {
		return
	}
	fiberCfg.EnableTrustedProxyCheck = true
	fiberCfg.TrustedProxies = deps.TrustedProxies
	fiberCfg.ProxyHeader = deps.ProxyHeader
}
