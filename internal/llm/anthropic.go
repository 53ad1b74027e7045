package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider generates text with the Anthropic Messages API.
type AnthropicProvider struct {
	Model  string
	apiKey string
	client anthropic.Client
}

// NewAnthropicProvider creates a provider reading its key from apiKeyEnv.
// Extra options are passed to the SDK client.
func NewAnthropicProvider(model, apiKeyEnv string, opts ...option.RequestOption) *AnthropicProvider {
	key := os.Getenv(apiKeyEnv)
	opts = append([]option.RequestOption{option.WithAPIKey(key)}, opts...)
	return &AnthropicProvider{
		Model:  model,
		apiKey: key,
		client: anthropic.NewClient(opts...),
	}
}

// Name implements Provider.
func (a *AnthropicProvider) Name() string { return "anthropic" }

// Available reports whether an API key is set.
func (a *AnthropicProvider) Available() bool { return a.apiKey != "" }

// Generate implements Provider.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (Completion, error) {
	if a.apiKey == "" {
		return Completion{}, fmt.Errorf("Anthropic API key not configured")
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Completion{}, fmt.Errorf("anthropic: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return Completion{
		Text:         text.String(),
		Model:        a.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
