package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"shopsense/internal/services"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	redis  *services.RedisService
	search *services.SearchService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(redis *services.RedisService, search *services.SearchService) *HealthHandler {
	return &HealthHandler{redis: redis, search: search}
}

// Handle responds with server health status
func (h *HealthHandler) Handle(c *fiber.Ctx) error {
	redisOK := h.redis != nil && h.redis.Ping(c.Context()) == nil
	searchOK := h.search != nil && h.search.IsAvailable(c.Context())

	status := "healthy"
	if !redisOK {
		status = "degraded"
	}

	return c.JSON(fiber.Map{
		"status":    status,
		"redis":     redisOK,
		"search":    searchOK,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
