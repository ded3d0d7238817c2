package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/UncleMcDonald/SmartScrape/internal/batch"
	"github.com/UncleMcDonald/SmartScrape/internal/config"
)

func batchProcessHandler(c *fiber.Ctx) error {
	cfg := c.Locals("config").(*config.Config)
	runner, _ := c.Locals("batch").(BatchRunner)

	var body BatchRequest
	if err := json.Unmarshal(c.Body(), &body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse(CodeInvalidInput, "Bad request, malformed JSON"))
	}

	urls, ok := decodeURLs(body.URLs)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse(CodeInvalidInput, "Missing or invalid 'urls' list"))
	}

	// Basic sanity limit to avoid huge synchronous batches.
	if limit := cfg.Batch.MaxURLs; limit > 0 && len(urls) > limit {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse(
			CodeInvalidInput,
			fmt.Sprintf("Too many urls; maximum is %d", limit),
		))
	}

	if runner == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse(CodeInternalError, "batch processing is not available"))
	}

	production := cfg.UseProductionOptimizations
	if body.Options.IsProduction != nil {
		production = *body.Options.IsProduction
	}
	c.Locals("url_count", len(urls))

	out, err := runner.Run(c.UserContext(), urls, coercePrompt(body.Prompt), batch.Options{
		Parallel:         decodeParallel(body.Options.Parallel),
		Production:       production,
		OptimizationMode: optimizationMode(body.Options.IsProduction),
	})
	if err != nil {
		var ie *batch.InputError
		var pe *batch.ProcessingError
		switch {
		case errors.As(err, &ie):
			return c.Status(fiber.StatusBadRequest).JSON(errorResponse(CodeInvalidInput, ie.Msg))
		case errors.As(err, &pe):
			return c.Status(fiber.StatusInternalServerError).JSON(errorResponse(CodeProcessingError, pe.Msg))
		}
		return c.Status(fiber.StatusInternalServerError).JSON(errorResponse(CodeInternalError, err.Error()))
	}

	return c.JSON(BatchResponse{Success: true, Data: out})
}
