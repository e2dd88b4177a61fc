package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"uptask/internal/services"
)

// Pinger is a dependency whose liveness the health check reports
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	rooms *services.RoomRegistry
	deps  map[string]Pinger
}

// NewHealthHandler creates a new health handler. deps may be empty.
func NewHealthHandler(rooms *services.RoomRegistry, deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{rooms: rooms, deps: deps}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := "healthy"
	checks := fiber.Map{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := fiber.StatusOK
	if status != "healthy" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":      status,
		"connections": h.rooms.ConnectionCount(),
		"rooms":       h.rooms.RoomCount(),
		"checks":      checks,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}
