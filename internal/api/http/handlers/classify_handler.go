package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-triage/internal/api/dto"
	"github.com/spec-kit/ticket-triage/internal/service"
)

// ClassifyHandler serves advisory classification.
type ClassifyHandler struct {
	advisor *service.ClassificationService
}

// NewClassifyHandler constructs handler.
func NewClassifyHandler(advisor *service.ClassificationService) *ClassifyHandler {
	return &ClassifyHandler{advisor: advisor}
}

// Classify POST /api/tickets/classify. Always answers 200; an unreadable body
// is treated like an empty description.
func (h *ClassifyHandler) Classify(c *fiber.Ctx) error {
	var req dto.ClassifyRequest
	if len(c.Body()) > 0 {
		_ = c.BodyParser(&req)
	}
	suggestion := h.advisor.Suggest(c.UserContext(), req.Description)
	return c.JSON(dto.ClassifyResponse{
		SuggestedCategory: string(suggestion.Category),
		SuggestedPriority: string(suggestion.Priority),
	})
}
