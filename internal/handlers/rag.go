package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"shopsense/internal/middleware"
	"shopsense/internal/models"
	"shopsense/internal/services"
)

// RAGHandler exposes the Q&A flow and the conversation history behind it.
type RAGHandler struct {
	orchestrator  *services.RetrievalOrchestrator
	conversations *services.HistoryStore
	popular       *services.PopularityService
	search        *services.SearchService
	defaultLimit  int
}

// NewRAGHandler creates a new RAG handler
func NewRAGHandler(orchestrator *services.RetrievalOrchestrator, conversations *services.HistoryStore, popular *services.PopularityService, search *services.SearchService, defaultLimit int) *RAGHandler {
	return &RAGHandler{
		orchestrator:  orchestrator,
		conversations: conversations,
		popular:       popular,
		search:        search,
		defaultLimit:  defaultLimit,
	}
}

// Ask answers a question and records the exchange.
func (h *RAGHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("question is required"))
	}

	result := h.orchestrator.Ask(c.Context(), middleware.Subject(c), req.Question)
	return c.JSON(models.OK(result))
}

// Conversations lists the subject's conversation history, most recent first.
func (h *RAGHandler) Conversations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)
	summaries, err := h.conversations.List(c.Context(), middleware.Subject(c), limit)
	if err != nil {
		return c.JSON(models.Fail("conversation history is temporarily unavailable"))
	}
	return c.JSON(models.OK(summaries))
}

// ConversationDetail returns the full record for one conversation.
func (h *RAGHandler) ConversationDetail(c *fiber.Ctx) error {
	detail, err := h.conversations.GetDetail(c.Context(), c.Params("id"))
	if err != nil {
		return c.JSON(models.Fail("conversation detail is temporarily unavailable"))
	}
	if detail == nil {
		return c.Status(fiber.StatusNotFound).JSON(models.Fail("conversation not found or expired"))
	}
	return c.JSON(models.OK(detail))
}

// DeleteConversation removes one conversation from history and, best-effort,
// from the similar-questions index. Idempotent.
func (h *RAGHandler) DeleteConversation(c *fiber.Ctx) error {
	entryID := c.Params("id")
	if err := h.conversations.Delete(c.Context(), entryID, middleware.Subject(c)); err != nil {
		return c.JSON(models.Fail("failed to delete conversation"))
	}
	if h.search != nil {
		if err := h.search.DeleteDocument(c.Context(), h.search.ConversationsIndex(), entryID); err != nil {
			log.Printf("⚠️ [RAG] Failed to deindex conversation %s: %v", entryID, err)
		}
	}
	return c.JSON(models.OKMessage("conversation deleted", nil))
}

// ClearConversations removes the subject's whole conversation history.
func (h *RAGHandler) ClearConversations(c *fiber.Ctx) error {
	if err := h.conversations.Clear(c.Context(), middleware.Subject(c)); err != nil {
		return c.JSON(models.Fail("failed to clear conversations"))
	}
	return c.JSON(models.OKMessage("conversations cleared", nil))
}

// SearchConversations does a substring match over the cached summaries.
func (h *RAGHandler) SearchConversations(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.defaultLimit)
	matches, err := h.conversations.Search(c.Context(), middleware.Subject(c), c.Query("keyword"), limit)
	if err != nil {
		return c.JSON(models.Fail("conversation search is temporarily unavailable"))
	}
	return c.JSON(models.OK(matches))
}

// PopularQuestions returns the questions leaderboard.
func (h *RAGHandler) PopularQuestions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	entries, err := h.popular.Top(c.Context(), limit)
	if err != nil {
		return c.JSON(models.Fail("popular questions are temporarily unavailable"))
	}
	return c.JSON(models.OK(entries))
}

// SimilarQuestions suggests previously asked questions close to the query.
func (h *RAGHandler) SimilarQuestions(c *fiber.Ctx) error {
	question := strings.TrimSpace(c.Query("q"))
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("query parameter q is required"))
	}
	limit := c.QueryInt("limit", 5)
	return c.JSON(models.OK(h.orchestrator.SimilarQuestions(c.Context(), question, limit)))
}

// ConversationStats returns the subject's conversation counters.
func (h *RAGHandler) ConversationStats(c *fiber.Ctx) error {
	stats, err := h.conversations.Stats(c.Context(), middleware.Subject(c))
	if err != nil {
		return c.JSON(models.Fail("conversation stats are temporarily unavailable"))
	}
	return c.JSON(models.OK(stats))
}
