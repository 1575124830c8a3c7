package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

// AnthropicProvider completes prompts with Claude
type AnthropicProvider struct {
	model       string
	maxTokens   int
	baseURL     string
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewAnthropicProvider creates a Claude provider. Keys are passed per call.
func NewAnthropicProvider(cfg config.AIConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *AnthropicProvider {
	return &AnthropicProvider{
		model:       cfg.AnthropicModel,
		maxTokens:   cfg.MaxTokens,
		rateLimiter: limiter,
		log:         log.WithComponent("ai-anthropic"),
	}
}

// WithBaseURL points the provider at another endpoint
func (c *AnthropicProvider) WithBaseURL(url string) *AnthropicProvider {
	c.baseURL = url
	return c
}

// Name returns "anthropic"
func (c *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete sends a message to Claude and returns the response
func (c *AnthropicProvider) Complete(ctx context.Context, apiKey string, prompt Prompt) (string, error) {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterAnthropic); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// rotation to the next key is the retry policy
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	client := anthropic.NewClient(opts...)

	c.log.Debug().
		Str("model", c.model).
		Int("max_tokens", c.maxTokens).
		Msg("Sending request to Claude")

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System: []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: prompt.System,
			},
		},
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(prompt.User),
				},
			},
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return "", errs.Wrap(errs.ErrRateLimited, "claude API", err)
		}
		return "", errs.Wrap(errs.ErrTransient, "claude API", err)
	}

	// Extract text from response
	var response string
	for _, block := range message.Content {
		textBlock := block.AsText()
		if textBlock.Text != "" {
			response += textBlock.Text
		}
	}

	c.log.Debug().
		Int("input_tokens", int(message.Usage.InputTokens)).
		Int("output_tokens", int(message.Usage.OutputTokens)).
		Msg("Received Claude response")

	return response, nil
}

var _ Provider = (*AnthropicProvider)(nil)
