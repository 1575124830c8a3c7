package nim

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/media"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

const defaultURL = "https://ai.api.nvidia.com/v1/genai/stabilityai/stable-diffusion-3-medium"

// generateRequest is the Stable Diffusion 3 Medium payload
type generateRequest struct {
	Prompt         string  `json:"prompt"`
	CfgScale       float64 `json:"cfg_scale"`
	AspectRatio    string  `json:"aspect_ratio"`
	Seed           int     `json:"seed"`
	Steps          int     `json:"steps"`
	NegativePrompt string  `json:"negative_prompt"`
}

type generateResponse struct {
	Image        string `json:"image"`
	FinishReason string `json:"finish_reason"`
}

// Client is the NVIDIA NIM image generation client
type Client struct {
	apiKey     string
	url        string
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// NewClient creates a new NIM client
func NewClient(cfg config.MediaConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	url := cfg.NIMURL
	if url == "" {
		url = defaultURL
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey: cfg.NIMAPIKey,
		url:    url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter: limiter,
		log:     log.WithComponent("nim"),
	}
}

// Name returns "nim"
func (c *Client) Name() string {
	return "nim"
}

// Produce generates a square image for req.Prompt and writes it to outPath
func (c *Client) Produce(ctx context.Context, req media.Request, outPath string) error {
	if c.apiKey == "" {
		return errs.Configuration("NVIDIA_API_KEY not set")
	}
	if err := c.limiter.Wait(ctx, ratelimit.LimiterNIM); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(generateRequest{
		Prompt:      req.Prompt,
		CfgScale:    5,
		AspectRatio: "1:1",
		Seed:        0,
		Steps:       30,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	c.log.Debug().Msg("Calling NVIDIA NIM image API")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return errs.Wrap(errs.ErrTransient, "nim request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		marker := errs.ErrTransient
		if resp.StatusCode == http.StatusTooManyRequests {
			marker = errs.ErrRateLimited
		}
		return errs.Wrap(marker, fmt.Sprintf("nim API status %d", resp.StatusCode), fmt.Errorf("%s", body))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Image == "" {
		return fmt.Errorf("nim: no 'image' field in response")
	}

	data, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return fmt.Errorf("nim: invalid base64 image: %w", err)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return fmt.Errorf("nim: payload is not an image: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	c.log.Info().Int("size_bytes", len(data)).Str("path", outPath).Msg("NIM image saved")
	return nil
}

var _ media.ImageProducer = (*Client)(nil)
