package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

// GeminiProvider completes prompts with the Gemini API
type GeminiProvider struct {
	model       string
	baseURL     string
	httpClient  *http.Client
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger
}

// NewGeminiProvider creates a Gemini provider. Keys are passed per call.
func NewGeminiProvider(cfg config.AIConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *GeminiProvider {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiProvider{
		model:       cfg.GeminiModel,
		baseURL:     cfg.GeminiBaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		rateLimiter: limiter,
		log:         log.WithComponent("ai-gemini"),
	}
}

// Name returns "gemini"
func (g *GeminiProvider) Name() string {
	return "gemini"
}

// Complete sends one generateContent request and concatenates the text
// parts of every candidate.
func (g *GeminiProvider) Complete(ctx context.Context, apiKey string, prompt Prompt) (string, error) {
	if err := g.rateLimiter.Wait(ctx, ratelimit.LimiterGemini); err != nil {
		return "", fmt.Errorf("rate limit error: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.httpClient,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return "", errs.Wrap(errs.ErrConfiguration, "gemini client", err)
	}

	g.log.Debug().Str("model", g.model).Msg("Sending request to Gemini")

	resp, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt.User), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(prompt.System, genai.RoleUser),
	})
	if err != nil {
		if rateLimited(err) {
			return "", errs.Wrap(errs.ErrRateLimited, "gemini API", err)
		}
		return "", errs.Wrap(errs.ErrTransient, "gemini API", err)
	}

	var chunks []string
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.Text != "" {
				chunks = append(chunks, part.Text)
			}
		}
	}
	return strings.TrimSpace(strings.Join(chunks, "\n")), nil
}

// rateLimited reports whether err is an upstream 429
func rateLimited(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code == http.StatusTooManyRequests
	}
	return false
}

var _ Provider = (*GeminiProvider)(nil)
