package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/AIDiscovery/internal/config"
)

func TestOllamaGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "qwen2.5:7b", body["model"])
		assert.Equal(t, false, body["stream"])
		w.Write([]byte(`{"message":{"content":"a report"},"prompt_eval_count":12,"eval_count":34}`))
	}))
	defer ts.Close()

	c, err := NewOllamaProvider("qwen2.5:7b", ts.URL+"/").Generate(context.Background(), "hi", 100)
	require.NoError(t, err)
	assert.Equal(t, "a report", c.Text)
	assert.Equal(t, int64(12), c.InputTokens)
	assert.Equal(t, int64(34), c.OutputTokens)
}

func TestOllamaAvailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"qwen2.5:7b"}]}`))
	}))
	defer ts.Close()

	assert.True(t, NewOllamaProvider("qwen2.5:7b", ts.URL).Available(context.Background()))
	assert.False(t, NewOllamaProvider("llama3", ts.URL).Available(context.Background()))
	assert.False(t, NewOllamaProvider("qwen2.5", "http://127.0.0.1:1").Available(context.Background()))
}

func TestOpenAIGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":7,"completion_tokens":3}}`))
	}))
	defer ts.Close()

	t.Setenv("AIDISCOVERY_TEST_OPENAI", "sk-test")
	p := NewOpenAIProvider("gpt-4o-mini", "AIDISCOVERY_TEST_OPENAI")
	p.BaseURL = ts.URL

	c, err := p.Generate(context.Background(), "hi", 50)
	require.NoError(t, err)
	assert.Equal(t, "hello", c.Text)
	assert.Equal(t, int64(7), c.InputTokens)
}

func TestOpenAIErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer ts.Close()

	t.Setenv("AIDISCOVERY_TEST_OPENAI", "sk-test")
	p := NewOpenAIProvider("gpt-4o-mini", "AIDISCOVERY_TEST_OPENAI")
	p.BaseURL = ts.URL

	_, err := p.Generate(context.Background(), "hi", 50)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIWithoutKey(t *testing.T) {
	t.Setenv("AIDISCOVERY_TEST_OPENAI", "")
	_, err := NewOpenAIProvider("gpt-4o-mini", "AIDISCOVERY_TEST_OPENAI").Generate(context.Background(), "hi", 50)
	assert.Error(t, err)
}

func TestAnthropicGenerate(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-20241022",
			"content":[{"type":"text","text":"Three new sources."}],
			"stop_reason":"end_turn","usage":{"input_tokens":100,"output_tokens":20}
		}`))
	}))
	defer ts.Close()

	t.Setenv("AIDISCOVERY_TEST_ANTHROPIC", "sk-ant-test")
	p := NewAnthropicProvider("claude-3-5-haiku-20241022", "AIDISCOVERY_TEST_ANTHROPIC", option.WithBaseURL(ts.URL))
	require.True(t, p.Available())

	c, err := p.Generate(context.Background(), "summarize", 200)
	require.NoError(t, err)
	assert.Equal(t, "Three new sources.", c.Text)
	assert.Equal(t, int64(100), c.InputTokens)
	assert.Equal(t, int64(20), c.OutputTokens)
}

func TestCreateProviderErrors(t *testing.T) {
	t.Setenv("AIDISCOVERY_TEST_OPENAI", "")
	t.Setenv("AIDISCOVERY_TEST_ANTHROPIC", "")
	cfg := config.Summarization{
		Provider:           "openai",
		OpenAIModel:        "gpt-4o-mini",
		APIKeyEnv:          "AIDISCOVERY_TEST_OPENAI",
		AnthropicAPIKeyEnv: "AIDISCOVERY_TEST_ANTHROPIC",
	}

	_, err := CreateProvider(context.Background(), cfg)
	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "summarization.provider", cfgErr.Field)

	cfg.Provider = "bard"
	_, err = CreateProvider(context.Background(), cfg)
	assert.True(t, errors.As(err, &cfgErr))
}

func TestCreateProviderFallsBackFromOllama(t *testing.T) {
	t.Setenv("AIDISCOVERY_TEST_OPENAI", "")
	t.Setenv("AIDISCOVERY_TEST_ANTHROPIC", "sk-ant")
	cfg := config.Summarization{
		Provider:           "ollama",
		Model:              "qwen2.5:7b",
		OllamaURL:          "http://127.0.0.1:1",
		APIKeyEnv:          "AIDISCOVERY_TEST_OPENAI",
		AnthropicModel:     "claude-3-5-haiku-20241022",
		AnthropicAPIKeyEnv: "AIDISCOVERY_TEST_ANTHROPIC",
	}

	p, err := CreateProvider(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestUsageRecord(t *testing.T) {
	var u Usage
	u.Record("report", Completion{Model: "claude-3-5-haiku-20241022", InputTokens: 1_000_000, OutputTokens: 1_000_000})
	u.Record("report", Completion{Model: "qwen2.5:7b", InputTokens: 500, OutputTokens: 500})

	assert.Len(t, u.Calls, 2)
	assert.Equal(t, int64(1_000_500), u.InputTokens)
	assert.InDelta(t, 4.80, u.Cost, 1e-9)
	assert.Zero(t, u.Calls[1].Cost, "local models are free")
	assert.Contains(t, u.Summary(), "Estimated cost: $4.8000")

	var total Usage
	total.Merge(u)
	total.Merge(u)
	assert.Len(t, total.Calls, 4)
	assert.InDelta(t, 9.60, total.Cost, 1e-9)
}

func TestPriceFor(t *testing.T) {
	assert.Equal(t, 0.15, PriceFor("gpt-4o-mini").Input)
	assert.Equal(t, 2.50, PriceFor("gpt-4o").Input)
	assert.Equal(t, 15.00, PriceFor("claude-opus-4").Input)
	assert.Equal(t, Price{}, PriceFor("llama3"))
}
