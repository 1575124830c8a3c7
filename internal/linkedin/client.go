package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

const (
	defaultBaseURL = "https://api.linkedin.com/v2"
	restliVersion  = "2.0.0"
)

// TokenSource hands out a valid bearer token
type TokenSource interface {
	GetValidToken(ctx context.Context) (*models.OAuthToken, error)
}

// Client handles LinkedIn API requests
type Client struct {
	httpClient  *http.Client
	baseURL     string
	tokens      TokenSource
	rateLimiter *ratelimit.MultiLimiter
	log         *logger.Logger

	mu        sync.Mutex
	authorURN string
}

// NewClient creates a new LinkedIn API client. An empty cfg.PersonURN is
// resolved through /userinfo on first use.
func NewClient(cfg config.LinkedInConfig, tokens TokenSource, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:     base,
		tokens:      tokens,
		rateLimiter: limiter,
		log:         log.WithComponent("linkedin"),
		authorURN:   strings.TrimSpace(cfg.PersonURN),
	}
}

// do performs an HTTP request with proper authentication and headers
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if err := c.rateLimiter.Wait(ctx, ratelimit.LimiterLinkedIn); err != nil {
		return nil, fmt.Errorf("rate limit error: %w", err)
	}

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", restliVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Msg("Making LinkedIn API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrTransient, method+" "+path, err)
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Msg("LinkedIn API response")

	return resp, nil
}

// GetProfile retrieves the authenticated user's OpenID profile
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	resp, err := c.do(ctx, http.MethodGet, "/userinfo", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("get profile", resp)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if profile.Sub == "" {
		return nil, fmt.Errorf("profile has no member id")
	}

	return &profile, nil
}

// Profile represents a LinkedIn user profile
type Profile struct {
	Sub           string `json:"sub"` // LinkedIn member ID
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// URN is the profile's person URN, usable as a post author
func (p *Profile) URN() string {
	return "urn:li:person:" + p.Sub
}

// AuthorURN returns the configured person URN, resolving and caching it
// through /userinfo when none is configured.
func (c *Client) AuthorURN(ctx context.Context) (string, error) {
	c.mu.Lock()
	urn := c.authorURN
	c.mu.Unlock()
	if urn != "" {
		return urn, nil
	}

	profile, err := c.GetProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve author: %w", err)
	}

	c.mu.Lock()
	c.authorURN = profile.URN()
	c.mu.Unlock()
	c.log.Info().Str("author", profile.URN()).Msg("Resolved author from userinfo")
	return profile.URN(), nil
}

// statusError reads the body of a failed response into an error classified
// by status: 429 is rate limited, 5xx transient, 401 a configuration problem.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	err := fmt.Errorf("%s - %s", resp.Status, strings.TrimSpace(string(body)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return errs.Wrap(errs.ErrRateLimited, op, err)
	case resp.StatusCode == http.StatusUnauthorized:
		return errs.Wrap(errs.ErrConfiguration, op, err)
	case resp.StatusCode >= 500:
		return errs.Wrap(errs.ErrTransient, op, err)
	default:
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// LinkedIn content limits
const maxCommentaryLength = 3000

var invisible = strings.NewReplacer(
	"\u00A0", " ", // Non-breaking space
	"\u2002", " ", // En space
	"\u2003", " ", // Em space
	"\u2009", " ", // Thin space
	"\u200B", "",  // Zero-width space
	"\u200C", "",  // Zero-width non-joiner
	"\u200D", "",  // Zero-width joiner
	"\u2060", "",  // Word joiner
	"\uFEFF", "",  // BOM
	"\r\n", "\n",
	"\r", "\n",
)

// Sanitize cleans post text for the ugcPosts API: invisible characters and
// control characters other than newline and tab are dropped, runs of blank
// lines collapse, and the result is cut to LinkedIn's commentary limit.
func Sanitize(content string) string {
	content, _ = sanitize(content)
	return content
}

// sanitize is Sanitize that also reports whether the text was cut
func sanitize(content string) (string, bool) {
	content = invisible.Replace(content)

	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) && r != unicode.ReplacementChar {
			b.WriteRune(r)
		}
	}
	content = b.String()

	for strings.Contains(content, "\n\n\n") {
		content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
	}
	content = strings.TrimSpace(content)

	if runes := []rune(content); len(runes) > maxCommentaryLength {
		return string(runes[:maxCommentaryLength-3]) + "...", true
	}
	return content, false
}
