package http

import (
	"encoding/json"
	"strings"

	"github.com/UncleMcDonald/SmartScrape/internal/model"
)

// DefaultPrompt is used when a request carries no prompt.
const DefaultPrompt = "Extract product name, price, description, delivery information and main image URL."

// Error codes of the response envelope.
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeProcessingError   = "PROCESSING_ERROR"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// ProcessRequest is the single-URL submission.
type ProcessRequest struct {
	URL          string          `json:"url"`
	Prompt       json.RawMessage `json:"prompt,omitempty"`
	IsProduction *bool           `json:"is_production,omitempty"`
}

// BatchRequest is the batch submission. URLs and parallel are kept raw so
// that wrong types can be reported instead of failing the whole decode.
type BatchRequest struct {
	URLs    json.RawMessage `json:"urls"`
	Prompt  json.RawMessage `json:"prompt,omitempty"`
	Options BatchOptions    `json:"options"`
}

type BatchOptions struct {
	Parallel     json.RawMessage `json:"parallel,omitempty"`
	IsProduction *bool           `json:"is_production,omitempty"`
}

// ErrorBody is the error half of the envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ErrorResponse is {success:false, error:{code,message}}.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

type ProcessResponse struct {
	Success bool           `json:"success"`
	Data    []model.Record `json:"data"`
}

type BatchResponse struct {
	Success bool                `json:"success"`
	Data    *model.BatchOutcome `json:"data"`
}

func errorResponse(code, msg string) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{Code: code, Message: msg}}
}

// coercePrompt returns a string prompt unchanged, the JSON text of any other
// value, and DefaultPrompt when the prompt is absent, null or blank.
func coercePrompt(raw json.RawMessage) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return DefaultPrompt
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return DefaultPrompt
		}
		return s
	}
	return trimmed
}

// decodeURLs accepts only a non-empty JSON array of strings.
func decodeURLs(raw json.RawMessage) ([]string, bool) {
	var urls []string
	if len(raw) == 0 || json.Unmarshal(raw, &urls) != nil || len(urls) == 0 {
		return nil, false
	}
	return urls, true
}

// decodeParallel returns the requested worker count, or 0 when it is not a
// positive integer.
func decodeParallel(raw json.RawMessage) int {
	var n int
	if len(raw) == 0 || json.Unmarshal(raw, &n) != nil || n <= 0 {
		return 0
	}
	return n
}

// optimizationMode labels the request toggle: default when absent.
func optimizationMode(isProduction *bool) string {
	switch {
	case isProduction == nil:
		return "default"
	case *isProduction:
		return "production"
	default:
		return "local"
	}
}
