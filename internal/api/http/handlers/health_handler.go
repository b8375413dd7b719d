package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// HealthDependencies describes what the health endpoints report on. Nil stores are
// reported as not configured.
type HealthDependencies struct {
	Name              string
	Version           string
	Postgres          *persistence.Postgres
	Redis             *persistence.Redis
	ClassifierEnabled bool
}

// HealthHandler responds to liveness and readiness checks.
type HealthHandler struct {
	deps HealthDependencies
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(deps HealthDependencies) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.deps.Name,
		"version": h.deps.Version,
	})
}

// Ready fails only when the configured ticket store is unreachable. Redis backs
// the classify limiter, which lets traffic through without it, and the advisor
// degrades to empty suggestions, so both are informational.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	store, ready := h.storeStatus(ctx)
	depStatus := fiber.Map{
		"store":      store,
		"redis":      h.redisStatus(ctx),
		"classifier": "disabled",
	}
	if h.deps.ClassifierEnabled {
		depStatus["classifier"] = "enabled"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "ticket store unavailable",
			"details": depStatus,
		},
	})
}

func (h *HealthHandler) storeStatus(ctx context.Context) (fiber.Map, bool) {
	pg := h.deps.Postgres
	if !pg.Configured() {
		return fiber.Map{"backend": "memory", "status": "ok"}, true
	}
	if err := pg.Ping(ctx); err != nil {
		return fiber.Map{"backend": "postgres", "status": err.Error()}, false
	}
	return fiber.Map{"backend": "postgres", "status": "ok", "pool": pg.PoolStats()}, true
}

func (h *HealthHandler) redisStatus(ctx context.Context) string {
	if h.deps.Redis == nil {
		return "not configured"
	}
	if err := h.deps.Redis.Ping(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
