package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sales-trainer/backend/internal/query"
	"github.com/sales-trainer/backend/pkg/logger"
)

// QueryEngine answers one question over the active corpus.
type QueryEngine interface {
	Process(ctx context.Context, question string) (*query.Response, error)
}

type QueryHandler struct {
	engine QueryEngine
}

func NewQueryHandler(engine QueryEngine) *QueryHandler {
	return &QueryHandler{engine: engine}
}

type queryRequest struct {
	Question string `json:"question"`
}

func (h *QueryHandler) Query(c *fiber.Ctx) error {
	var req queryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON format",
		})
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	resp, err := h.engine.Process(c.Context(), question)
	if err != nil {
		if errors.Is(err, query.ErrAnswerGeneration) {
			body := fiber.Map{
				"error": "Answer generation is unavailable, please retry",
			}
			if resp != nil {
				body["sources"] = resp.Sources
			}
			return c.Status(fiber.StatusBadGateway).JSON(body)
		}
		logger.Error("Query processing failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process query",
		})
	}

	return c.JSON(resp)
}
