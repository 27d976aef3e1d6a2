package handlers

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"shopsense/internal/middleware"
	"shopsense/internal/models"
	"shopsense/internal/services"
)

// RecommendHandler stores and serves the recommendation history. The
// recommendation content itself is produced upstream; this layer only caches
// and aggregates it.
type RecommendHandler struct {
	store           *services.HistoryStore
	popular         *services.PopularityService
	requirementTrim int
	defaultLimit    int
}

// NewRecommendHandler creates a new recommendation handler
func NewRecommendHandler(store *services.HistoryStore, popular *services.PopularityService, requirementTrim, defaultLimit int) *RecommendHandler {
	return &RecommendHandler{
		store:           store,
		popular:         popular,
		requirementTrim: requirementTrim,
		defaultLimit:    defaultLimit,
	}
}

type saveRecommendationRequest struct {
	Requirement        string          `json:"requirement"`
	RecommendationText string          `json:"recommendation_text"`
	Products           json.RawMessage `json:"products"`
}

// Save appends one recommendation to the subject's history.
func (h *RecommendHandler) Save(c *fiber.Ctx) error {
	var req saveRecommendationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	req.Requirement = strings.TrimSpace(req.Requirement)
	if req.Requirement == "" || req.RecommendationText == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("requirement and recommendation_text are required"))
	}

	productCount := countJSONArray(req.Products)
	detail := models.RecommendationDetail{
		Requirement:          req.Requirement,
		RecommendationText:   req.RecommendationText,
		Products:             req.Products,
		ProductCount:         productCount,
		RequirementLength:    len([]rune(req.Requirement)),
		RecommendationLength: len([]rune(req.RecommendationText)),
	}
	summary := models.Summary{
		Text:      truncate(req.Requirement, h.requirementTrim),
		ItemCount: productCount,
	}

	entryID, err := h.store.Append(c.Context(), middleware.Subject(c), summary, detail, req.Requirement)
	if err != nil {
		// History is best-effort: the recommendation was still delivered.
		return c.JSON(models.OKMessage("recommendation not recorded (history unavailable)", nil))
	}
	return c.JSON(models.OK(fiber.Map{"recommendation_id": entryID}))
}

// List returns the subject's recommendation history, most recent first.
func (h *RecommendHandler) List(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)
	summaries, err := h.store.List(c.Context(), middleware.Subject(c), limit)
	if err != nil {
		return c.JSON(models.Fail("recommendation history is temporarily unavailable"))
	}
	return c.JSON(models.OK(summaries))
}

// Detail returns the full record for one recommendation.
func (h *RecommendHandler) Detail(c *fiber.Ctx) error {
	detail, err := h.store.GetDetail(c.Context(), c.Params("id"))
	if err != nil {
		return c.JSON(models.Fail("recommendation detail is temporarily unavailable"))
	}
	if detail == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.Fail("recommendation not found or expired"))
	}
	return c.JSON(models.OK(detail))
}

// Delete removes one recommendation. Idempotent.
func (h *RecommendHandler) Delete(c *fiber.Ctx) error {
	if err := h.store.Delete(c.Context(), c.Params("id"), middleware.Subject(c)); err != nil {
		return c.JSON(models.Fail("failed to delete recommendation"))
	}
	return c.JSON(models.OKMessage("recommendation deleted", nil))
}

// Clear removes the subject's whole recommendation history, including stats
// and preferences.
func (h *RecommendHandler) Clear(c *fiber.Ctx) error {
	if err := h.store.Clear(c.Context(), middleware.Subject(c)); err != nil {
		return c.JSON(models.Fail("failed to clear recommendations"))
	}
	return c.JSON(models.OKMessage("recommendations cleared", nil))
}

// Search does a substring match over the cached summaries.
func (h *RecommendHandler) Search(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)
	matches, err := h.store.Search(c.Context(), middleware.Subject(c), c.Query("keyword"), limit)
	if err != nil {
		return c.JSON(models.Fail("recommendation search is temporarily unavailable"))
	}
	return c.JSON(models.OK(matches))
}

// PopularRequirements returns the requirements leaderboard.
func (h *RecommendHandler) PopularRequirements(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	entries, err := h.popular.Top(c.Context(), limit)
	if err != nil {
		return c.JSON(models.Fail("popular requirements are temporarily unavailable"))
	}
	return c.JSON(models.OK(entries))
}

// Stats returns the subject's recommendation counters.
func (h *RecommendHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.store.Stats(c.Context(), middleware.Subject(c))
	if err != nil {
		return c.JSON(models.Fail("recommendation stats are temporarily unavailable"))
	}
	return c.JSON(models.OK(stats))
}

// SetPreferences stores the subject's preference blob.
func (h *RecommendHandler) SetPreferences(c *fiber.Ctx) error {
	var prefs map[string]any
	if err := c.BodyParser(&prefs); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	if err := h.store.SetPreferences(c.Context(), middleware.Subject(c), prefs); err != nil {
		return c.JSON(models.Fail("failed to save preferences"))
	}
	return c.JSON(models.OKMessage("preferences saved", nil))
}

// Preferences returns the subject's preference blob, null when none is set.
func (h *RecommendHandler) Preferences(c *fiber.Ctx) error {
	prefs, err := h.store.Preferences(c.Context(), middleware.Subject(c))
	if err != nil {
		return c.JSON(models.Fail("preferences are temporarily unavailable"))
	}
	return c.JSON(models.OK(prefs))
}

func countJSONArray(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return 0
	}
	return len(items)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
