package external

import (
	"context"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pharmguard-mcp-server/internal/domain"
)

const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicClient generates explanations through the Anthropic Messages API.
type AnthropicClient struct {
	client      sdk.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicClient creates a new Anthropic client backed by the SDK.
// Retries are disabled; the explanation adapter makes exactly one attempt.
func NewAnthropicClient(config domain.AnthropicConfig) *AnthropicClient {
	if config.Model == "" {
		config.Model = DefaultAnthropicModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(config.Timeout),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicClient{
		client:      sdk.NewClient(opts...),
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
	}
}

// Generate sends prompt as a single user turn and concatenates the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(c.model),
		MaxTokens:   c.maxTokens,
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
		Temperature: sdk.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("anthropic: create message: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// Name returns the provider name
func (c *AnthropicClient) Name() string {
	return "anthropic"
}
