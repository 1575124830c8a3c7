package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/schedule"
	"github.com/linkedin-autopost/pkg/logger"
)

// Provider sends one prompt with one credential. A 429 from upstream must be
// returned wrapped with errs.ErrRateLimited.
type Provider interface {
	Name() string
	Complete(ctx context.Context, apiKey string, prompt Prompt) (string, error)
}

// Generator produces post text, spreading load over several credentials
type Generator struct {
	provider Provider
	keys     []string
	now      func() time.Time
	log      *logger.Logger
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithNow sets the time source used for the day's key pick
func WithNow(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a generator over the given credentials
func NewGenerator(provider Provider, keys []string, log *logger.Logger, opts ...GeneratorOption) *Generator {
	g := &Generator{
		provider: provider,
		keys:     keys,
		now:      time.Now,
		log:      log.WithComponent("generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Result is generated post text plus how it was obtained
type Result struct {
	Text     string
	Fallback bool
	// Attempts counts credentials tried
	Attempts int
}

// Generate writes the post for title in the given mode. Credentials are tried
// once each, starting with the day's pick. Upstream failures never escape:
// when every credential fails the deterministic fallback text is returned.
// Only a missing credential list or a non-producing mode is an error.
func (g *Generator) Generate(ctx context.Context, title string, mode models.ContentMode) (Result, error) {
	if !mode.Produces() {
		return Result{}, fmt.Errorf("mode %q does not produce content", mode)
	}
	if len(g.keys) == 0 {
		return Result{}, errs.Configuration("no %s API keys configured", g.provider.Name())
	}

	prompt := PostPrompt(title, mode)
	var lastErr error
	attempts := 0

	for i, key := range schedule.AttemptOrder(g.now(), g.keys) {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		attempts++

		text, err := g.provider.Complete(ctx, key, prompt)
		switch {
		case errors.Is(err, errs.ErrRateLimited):
			g.log.Warn().Int("attempt", i+1).Msg("Key rate-limited, trying next key")
			lastErr = err
			continue
		case err != nil:
			g.log.Warn().Err(err).Int("attempt", i+1).Msg("Text generation failed with one key")
			lastErr = err
			continue
		}

		if text = strings.TrimSpace(text); text != "" {
			g.log.Info().
				Str("provider", g.provider.Name()).
				Int("attempt", i+1).
				Int("chars", len(text)).
				Msg("Generated post text")
			return Result{Text: text, Attempts: attempts}, nil
		}
		lastErr = errors.New("empty response")
	}

	g.log.Warn().Err(lastErr).Msg("All keys failed for text, using fallback")
	return Result{Text: FallbackPost(title), Fallback: true, Attempts: attempts}, nil
}
