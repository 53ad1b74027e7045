// Package llm talks to text-generation backends used for narrative reports.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/TobiSchelling/AIDiscovery/internal/config"
)

const defaultOpenAIURL = "https://api.openai.com/v1"

// Completion is the text of one generation plus its token accounting.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error)
	Name() string
}

// OllamaProvider is a local Ollama LLM provider.
type OllamaProvider struct {
	Model   string
	BaseURL string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider.
func NewOllamaProvider(model, baseURL string) *OllamaProvider {
	return &OllamaProvider{
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements Provider.
func (o *OllamaProvider) Name() string { return "ollama" }

// Available checks if Ollama is running and the model is pulled.
func (o *OllamaProvider) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	modelBase := strings.SplitN(o.Model, ":", 2)[0]
	for _, m := range result.Models {
		if strings.Contains(m.Name, modelBase) {
			return true
		}
	}
	log.Printf("Ollama model %q not found", o.Model)
	return false
}

// Generate implements Provider.
func (o *OllamaProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	body := map[string]any{
		"model":    o.Model,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   false,
		"options": map[string]any{
			"num_predict": maxTokens,
			"temperature": 0.3,
		},
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		PromptEvalCount int64 `json:"prompt_eval_count"`
		EvalCount       int64 `json:"eval_count"`
	}
	if err := postJSON(ctx, o.client, o.BaseURL+"/api/chat", nil, body, &result); err != nil {
		return Completion{}, fmt.Errorf("ollama: %w", err)
	}

	return Completion{
		Text:         result.Message.Content,
		Model:        o.Model,
		InputTokens:  result.PromptEvalCount,
		OutputTokens: result.EvalCount,
	}, nil
}

// OpenAIProvider is an OpenAI chat completions provider.
type OpenAIProvider struct {
	Model   string
	BaseURL string
	apiKey  string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider reading its key from apiKeyEnv.
func NewOpenAIProvider(model, apiKeyEnv string) *OpenAIProvider {
	return &OpenAIProvider{
		Model:   model,
		BaseURL: defaultOpenAIURL,
		apiKey:  os.Getenv(apiKeyEnv),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// Name implements Provider.
func (o *OpenAIProvider) Name() string { return "openai" }

// Available reports whether an API key is set.
func (o *OpenAIProvider) Available() bool { return o.apiKey != "" }

// Generate implements Provider.
func (o *OpenAIProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if o.apiKey == "" {
		return Completion{}, fmt.Errorf("OpenAI API key not configured")
	}

	body := map[string]any{
		"model":       o.Model,
		"messages":    []map[string]string{{"role": "user", "content": prompt}},
		"max_tokens":  maxTokens,
		"temperature": 0.3,
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int64 `json:"prompt_tokens"`
			CompletionTokens int64 `json:"completion_tokens"`
		} `json:"usage"`
	}
	headers := map[string]string{"Authorization": "Bearer " + o.apiKey}
	if err := postJSON(ctx, o.client, strings.TrimRight(o.BaseURL, "/")+"/chat/completions", headers, body, &result); err != nil {
		return Completion{}, fmt.Errorf("OpenAI: %w", err)
	}
	if len(result.Choices) == 0 {
		return Completion{}, fmt.Errorf("no choices in OpenAI response")
	}

	return Completion{
		Text:         result.Choices[0].Message.Content,
		Model:        o.Model,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}, nil
}

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("API returned %d: %s", resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// CreateProvider picks a provider from configuration. "ollama" falls back to
// OpenAI and then Anthropic when the local server is unreachable. A missing
// backend is a ConfigError so callers fail before the first generation.
func CreateProvider(ctx context.Context, cfg config.Summarization) (Provider, error) {
	openai := func() Provider {
		p := NewOpenAIProvider(cfg.OpenAIModel, cfg.APIKeyEnv)
		if !p.Available() {
			return nil
		}
		log.Printf("Using OpenAI with model: %s", cfg.OpenAIModel)
		return p
	}
	anthropic := func() Provider {
		p := NewAnthropicProvider(cfg.AnthropicModel, cfg.AnthropicAPIKeyEnv)
		if !p.Available() {
			return nil
		}
		log.Printf("Using Anthropic with model: %s", cfg.AnthropicModel)
		return p
	}

	var chain []func() Provider
	switch strings.ToLower(cfg.Provider) {
	case "ollama", "":
		chain = append(chain, func() Provider {
			p := NewOllamaProvider(cfg.Model, cfg.OllamaURL)
			if !p.Available(ctx) {
				log.Println("Ollama not available, trying hosted providers...")
				return nil
			}
			log.Printf("Using Ollama with model: %s", cfg.Model)
			return p
		}, openai, anthropic)
	case "openai":
		chain = append(chain, openai)
	case "anthropic":
		chain = append(chain, anthropic)
	default:
		return nil, &config.ConfigError{Field: "summarization.provider", Reason: fmt.Sprintf("unknown provider %q", cfg.Provider)}
	}

	for _, try := range chain {
		if p := try(); p != nil {
			return p, nil
		}
	}
	return nil, &config.ConfigError{
		Field:  "summarization.provider",
		Reason: fmt.Sprintf("no %s backend available; start Ollama or set $%s / $%s", cfg.Provider, cfg.APIKeyEnv, cfg.AnthropicAPIKeyEnv),
	}
}
