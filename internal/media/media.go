// Package media produces the post image: remote generators first, the local
// banner renderer last.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/linkedin-autopost/pkg/logger"
)

// Request describes the image wanted for a run
type Request struct {
	// Prompt is the generation prompt for text-to-image models
	Prompt string
	// Title is the topic title, used for search and for the local banner
	Title string
}

// ImageProducer writes an image for req to outPath or fails
type ImageProducer interface {
	Name() string
	Produce(ctx context.Context, req Request, outPath string) error
}

// Renderer is the local last resort. It only fails on filesystem errors.
type Renderer interface {
	Render(title, outPath string) error
}

// Chain tries producers in order and falls back to the local renderer
type Chain struct {
	producers []ImageProducer
	renderer  Renderer
	log       *logger.Logger
}

// NewChain creates a producer chain ending in renderer
func NewChain(renderer Renderer, log *logger.Logger, producers ...ImageProducer) *Chain {
	return &Chain{
		producers: producers,
		renderer:  renderer,
		log:       log.WithComponent("media"),
	}
}

// FallbackSource names images drawn by the local renderer
const FallbackSource = "fallback"

// Produce writes the image and returns which producer made it
func (c *Chain) Produce(ctx context.Context, req Request, outPath string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image dir: %w", err)
	}

	for _, p := range c.producers {
		err := p.Produce(ctx, req, outPath)
		if err == nil {
			c.log.Info().
				Str("producer", p.Name()).
				Str("size", fileSize(outPath)).
				Msg("Image generated")
			return p.Name(), nil
		}
		c.log.Warn().Err(err).Str("producer", p.Name()).Msg("Image producer failed")
		_ = os.Remove(outPath)
	}

	if err := c.renderer.Render(req.Title, outPath); err != nil {
		return "", fmt.Errorf("fallback renderer: %w", err)
	}
	c.log.Info().Str("size", fileSize(outPath)).Msg("Rendered fallback banner")
	return FallbackSource, nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown"
	}
	return humanize.Bytes(uint64(info.Size()))
}
