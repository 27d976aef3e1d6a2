package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"shopsense/internal/middleware"
	"shopsense/internal/models"
	"shopsense/internal/services"
)

// BehaviorHandler records raw user behavior (product views and the like) and
// serves the recent-views list.
type BehaviorHandler struct {
	store        *services.HistoryStore
	defaultLimit int
}

// NewBehaviorHandler creates a new behavior handler
func NewBehaviorHandler(store *services.HistoryStore, defaultLimit int) *BehaviorHandler {
	return &BehaviorHandler{store: store, defaultLimit: defaultLimit}
}

// Record appends one behavior event.
func (h *BehaviorHandler) Record(c *fiber.Ctx) error {
	var req struct {
		ProductID   string `json:"product_id"`
		ProductName string `json:"product_name"`
		ActionType  string `json:"action_type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	if strings.TrimSpace(req.ProductID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("product_id is required"))
	}
	if req.ActionType == "" {
		req.ActionType = "view"
	}

	summary := models.Summary{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		Action:      req.ActionType,
	}
	detail := models.BehaviorDetail{
		ProductID:   req.ProductID,
		ProductName: req.ProductName,
		ActionType:  req.ActionType,
	}

	entryID, err := h.store.Append(c.Context(), middleware.Subject(c), summary, detail, "")
	if err != nil {
		// Tracking is best-effort; the request that triggered it succeeded.
		return c.JSON(models.OKMessage("behavior not recorded (history unavailable)", nil))
	}
	return c.JSON(models.OK(fiber.Map{"entry_id": entryID}))
}

// RecentViews lists the subject's most recent behavior entries.
func (h *BehaviorHandler) RecentViews(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)
	summaries, err := h.store.List(c.Context(), middleware.Subject(c), limit)
	if err != nil {
		return c.JSON(models.Fail("recent views are temporarily unavailable"))
	}
	return c.JSON(models.OK(summaries))
}

// Stats returns the subject's behavior counters.
func (h *BehaviorHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context(), middleware.Subject(c))
	if err != nil {
		return c.JSON(models.Fail("behavior stats are temporarily unavailable"))
	}
	return c.JSON(models.OK(stats))
}

// Clear removes the subject's behavior history and stats.
func (h *BehaviorHandler) Clear(c *fiber.Ctx) error {
	if err := h.store.Clear(c.Context(), middleware.Subject(c)); err != nil {
		return c.JSON(models.Fail("failed to clear behavior history"))
	}
	return c.JSON(models.OKMessage("behavior history cleared", nil))
}
