package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"shopsense/internal/models"
	"shopsense/internal/services"
)

// KnowledgeHandler manages the product-knowledge index the retrieval flow
// searches. It is fed by the catalog pipeline, not by end users.
type KnowledgeHandler struct {
	orchestrator *services.RetrievalOrchestrator
	search       *services.SearchService
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(orchestrator *services.RetrievalOrchestrator, search *services.SearchService) *KnowledgeHandler {
	return &KnowledgeHandler{orchestrator: orchestrator, search: search}
}

// Index writes one knowledge document, embedding its content for semantic
// search.
func (h *KnowledgeHandler) Index(c *fiber.Ctx) error {
	var req struct {
		KnowledgeID string `json:"knowledge_id"`
		models.KnowledgeDoc
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("invalid request body"))
	}
	if strings.TrimSpace(req.Value) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(models.Fail("value is required"))
	}
	if req.KnowledgeID == "" {
		req.KnowledgeID = uuid.NewString()
	}

	if err := h.orchestrator.IndexKnowledge(c.Context(), req.KnowledgeID, req.KnowledgeDoc); err != nil {
		return c.JSON(models.Fail("failed to index knowledge document"))
	}
	return c.JSON(models.OK(fiber.Map{"knowledge_id": req.KnowledgeID}))
}

// Delete removes one knowledge document. Missing documents are not an error.
func (h *KnowledgeHandler) Delete(c *fiber.Ctx) error {
	if err := h.search.DeleteDocument(c.Context(), h.search.KnowledgeIndex(), c.Params("id")); err != nil {
		return c.JSON(models.Fail("failed to delete knowledge document"))
	}
	return c.JSON(models.OKMessage("knowledge document deleted", nil))
}

// Count returns the number of indexed knowledge documents.
func (h *KnowledgeHandler) Count(c *fiber.Ctx) error {
	count, err := h.search.CountDocuments(c.Context(), h.search.KnowledgeIndex())
	if err != nil {
		return c.JSON(models.Fail("knowledge index is temporarily unavailable"))
	}
	return c.JSON(models.OK(fiber.Map{"count": count}))
}
