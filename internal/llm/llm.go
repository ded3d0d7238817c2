package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/UncleMcDonald/SmartScrape/internal/config"
)

// Provider names an LLM backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
)

// Client sends one prompt and returns the raw reply text. Implementations
// do not retry and do not stream; callers bound the prompt size.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Described is implemented by clients that can name their provider and
// model for logs and metrics.
type Described interface {
	Provider() Provider
	Model() string
}

// ErrNotConfigured is returned when no usable provider credentials exist.
var ErrNotConfigured = errors.New("llm provider is not configured")

// NewClientFromConfig picks the provider (override first, then
// llm.defaultProvider) and returns its client with the resolved model name.
func NewClientFromConfig(cfg *config.Config, providerOverride, modelOverride string) (Client, Provider, string, error) {
	providerName := cfg.LLM.DefaultProvider
	if providerOverride != "" {
		providerName = providerOverride
	}

	prov := Provider(providerName)
	timeout := time.Duration(cfg.LLM.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	temp := cfg.LLM.Temperature

	switch prov {
	case ProviderOpenAI:
		openaiCfg := cfg.LLM.OpenAI
		model := openaiCfg.Model
		if modelOverride != "" {
			model = modelOverride
		}
		if openaiCfg.APIKey == "" || model == "" {
			return nil, prov, model, fmt.Errorf("openai: %w", ErrNotConfigured)
		}
		return &openAIClient{
			apiKey:      openaiCfg.APIKey,
			baseURL:     openaiCfg.BaseURL,
			model:       model,
			temperature: temp,
			http:        &http.Client{Timeout: timeout},
		}, prov, model, nil
	case ProviderAnthropic:
		anthCfg := cfg.LLM.Anthropic
		model := anthCfg.Model
		if modelOverride != "" {
			model = modelOverride
		}
		if anthCfg.APIKey == "" || model == "" {
			return nil, prov, model, fmt.Errorf("anthropic: %w", ErrNotConfigured)
		}
		return &anthropicClient{
			apiKey:      anthCfg.APIKey,
			model:       model,
			temperature: temp,
			http:        &http.Client{Timeout: timeout},
		}, prov, model, nil
	case ProviderGoogle:
		googleCfg := cfg.LLM.Google
		model := googleCfg.Model
		if modelOverride != "" {
			model = modelOverride
		}
		if googleCfg.APIKey == "" || model == "" {
			return nil, prov, model, fmt.Errorf("google: %w", ErrNotConfigured)
		}
		return &googleClient{
			apiKey:      googleCfg.APIKey,
			model:       model,
			temperature: temp,
			http:        &http.Client{Timeout: timeout},
		}, prov, model, nil
	default:
		return nil, prov, "", fmt.Errorf("unsupported llm provider: %s", providerName)
	}
}

// openAIClient talks to any OpenAI-compatible /chat/completions endpoint.
type openAIClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	http        *http.Client
}

// anthropicClient talks to the Messages API.
type anthropicClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	http        *http.Client
}

// googleClient talks to Gemini generateContent.
type googleClient struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	http        *http.Client
}

func (c *openAIClient) Provider() Provider    { return ProviderOpenAI }
func (c *openAIClient) Model() string         { return c.model }
func (c *anthropicClient) Provider() Provider { return ProviderAnthropic }
func (c *anthropicClient) Model() string      { return c.model }
func (c *googleClient) Provider() Provider    { return ProviderGoogle }
func (c *googleClient) Model() string         { return c.model }

type openAIChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature"`
}

type openAIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	Choices []struct {
		Message openAIChatMessage `json:"message"`
	} `json:"choices"`
}

type anthropicMessagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string                 `json:"role"`
	Content []anthropicTextContent `json:"content"`
}

type anthropicTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessagesResponse struct {
	Content []anthropicTextContent `json:"content"`
}

type googleGenerateContentRequest struct {
	Contents         []googleContent        `json:"contents"`
	GenerationConfig googleGenerationConfig `json:"generationConfig"`
}

type googleGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text,omitempty"`
}

type googleGenerateContentResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
}

func (c *openAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := openAIChatRequest{
		Model:       c.model,
		Messages:    []openAIChatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}
	endpoint = strings.TrimRight(endpoint, "/") + "/chat/completions"

	var parsed openAIChatResponse
	err := postJSON(ctx, c.http, endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.apiKey,
	}, &parsed)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := anthropicMessagesRequest{
		Model:       c.model,
		MaxTokens:   4096,
		Temperature: c.temperature,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicTextContent{{Type: "text", Text: prompt}},
			},
		},
	}

	endpoint := c.baseURL
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1"
	}
	endpoint = strings.TrimRight(endpoint, "/") + "/messages"

	var parsed anthropicMessagesResponse
	err := postJSON(ctx, c.http, endpoint, body, map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": "2023-06-01",
	}, &parsed)
	if err != nil {
		return "", fmt.Errorf("anthropic messages request: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", errors.New("anthropic messages returned no content")
	}

	var sb strings.Builder
	for _, part := range parsed.Content {
		if part.Type == "" || part.Type == "text" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}

func (c *googleClient) Complete(ctx context.Context, prompt string) (string, error) {
	body := googleGenerateContentRequest{
		Contents:         []googleContent{{Parts: []googlePart{{Text: prompt}}}},
		GenerationConfig: googleGenerationConfig{Temperature: c.temperature},
	}

	base := c.baseURL
	if base == "" {
		base = "https://generativelanguage.googleapis.com/v1beta"
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", strings.TrimRight(base, "/"), c.model, url.QueryEscape(c.apiKey))

	var parsed googleGenerateContentResponse
	if err := postJSON(ctx, c.http, endpoint, body, nil, &parsed); err != nil {
		return "", fmt.Errorf("google generateContent: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("google generateContent returned no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body any, headers map[string]string, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
