package http

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/UncleMcDonald/SmartScrape/internal/config"
	"github.com/UncleMcDonald/SmartScrape/internal/pipeline"
)

// processHandler runs the pipeline for one URL without the batch
// coordinator.
func processHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	proc, _ := c.Locals("pipeline").(URLProcessor)

	var body ProcessRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse(CodeInvalidInput, "Bad request, malformed JSON"))
	}

	url := strings.TrimSpace(body.URL)
	if url == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse(CodeInvalidInput, "URL is required"))
	}

	if proc == nil || !proc.Configured() {
		resp := errorResponse(CodeProcessingError, pipeline.ErrNoProcessor)
		resp.Error.URL = url
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}

	production := cfg.UseProductionOptimizations
	if body.IsProduction != nil {
		production = *body.IsProduction
	}

	out := proc.Process(c.UserContext(), url, pipeline.Request{
		Instruction: coercePrompt(body.Prompt),
		Production:  production,
	})
	if !out.Succeeded() {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: ErrorBody{
				Code:    CodeProcessingError,
				Message: out.Error,
				Details: out.Details,
				URL:     url,
			},
		})
	}

	return c.JSON(ProcessResponse{
		Success: true,
		Data:    proc.Table().Normalize(out.Data, nil),
	})
}
