package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UncleMcDonald/SmartScrape/internal/config"
)

func TestNewClientFromConfig(t *testing.T) {
	cfg := config.Default()

	_, prov, _, err := NewClientFromConfig(cfg, "", "")
	require.ErrorIs(t, err, ErrNotConfigured)
	assert.Equal(t, ProviderOpenAI, prov)

	cfg.LLM.OpenAI.APIKey = "sk-test"
	client, prov, model, err := NewClientFromConfig(cfg, "", "")
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, prov)
	assert.Equal(t, "gpt-4", model)
	d, ok := client.(Described)
	require.True(t, ok)
	assert.Equal(t, "gpt-4", d.Model())

	cfg.LLM.Anthropic.APIKey = "ak"
	_, prov, model, err = NewClientFromConfig(cfg, "anthropic", "claude-x")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, prov)
	assert.Equal(t, "claude-x", model)

	_, _, _, err = NewClientFromConfig(cfg, "mystery", "")
	require.Error(t, err)
}

func TestOpenAIComplete(t *testing.T) {
	var got openAIChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[{\"name\":\"Kettle\"}]"}}]}`))
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "sk-test", baseURL: srv.URL + "/v1", model: "gpt-test", temperature: 0.3, http: srv.Client()}
	out, err := c.Complete(context.Background(), "extract please")
	require.NoError(t, err)

	assert.Equal(t, `[{"name":"Kettle"}]`, out)
	assert.Equal(t, "gpt-test", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "extract please", got.Messages[0].Content)
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"[\"name\","},{"type":"text","text":"\"price\"]"}]}`))
	}))
	defer srv.Close()

	c := &anthropicClient{apiKey: "ak", baseURL: srv.URL + "/v1", model: "claude", http: srv.Client()}
	out, err := c.Complete(context.Background(), "fields?")
	require.NoError(t, err)
	assert.Equal(t, `["name","price"]`, out)
}

func TestGoogleComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
		assert.Equal(t, "gk", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"[]"}]}}]}`))
	}))
	defer srv.Close()

	c := &googleClient{apiKey: "gk", baseURL: srv.URL, model: "gemini-test", http: srv.Client()}
	out, err := c.Complete(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"slow down"}`))
	}))
	defer srv.Close()

	c := &openAIClient{apiKey: "k", baseURL: srv.URL, model: "m", http: srv.Client()}
	_, err := c.Complete(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "slow down")
	assert.False(t, errors.Is(err, ErrNotConfigured))
}
