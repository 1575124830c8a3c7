package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/source"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

const (
	defaultBaseURL  = "https://hacker-news.firebaseio.com/v0"
	defaultLimit    = 10
	itemFallbackURL = "https://news.ycombinator.com/"
)

// Source implements TopicSource for the Hacker News top stories
type Source struct {
	baseURL    string
	limit      int
	httpClient *http.Client
	limiter    *ratelimit.MultiLimiter
	log        *logger.Logger
}

// New creates a new Hacker News source
func New(cfg config.HackerNewsConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Source{
		baseURL: baseURL,
		limit:   limit,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: limiter,
		log:     log.WithSource("hackernews", "topstories"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "hackernews-top"
}

// Type returns "hackernews"
func (s *Source) Type() string {
	return "hackernews"
}

type item struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
}

// Fetch retrieves the top stories. A failed listing is an error; a failed
// item is skipped.
func (s *Source) Fetch(ctx context.Context) ([]models.Topic, error) {
	var ids []int64
	if err := s.getJSON(ctx, s.baseURL+"/topstories.json", &ids); err != nil {
		return nil, fmt.Errorf("failed to list top stories: %w", err)
	}
	if len(ids) > s.limit {
		ids = ids[:s.limit]
	}

	topics := make([]models.Topic, 0, len(ids))
	for _, id := range ids {
		var it *item
		if err := s.getJSON(ctx, fmt.Sprintf("%s/item/%d.json", s.baseURL, id), &it); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.Warn().Err(err).Int64("item", id).Msg("Skipping story")
			continue
		}
		if it == nil {
			s.log.Debug().Int64("item", id).Msg("Skipping deleted story")
			continue
		}
		topics = append(topics, toTopic(*it))
	}

	s.log.Info().Int("count", len(topics)).Msg("Fetched Hacker News topics")
	return topics, nil
}

// HealthCheck verifies the listing endpoint answers
func (s *Source) HealthCheck(ctx context.Context) error {
	var ids []int64
	return s.getJSON(ctx, s.baseURL+"/topstories.json", &ids)
}

func toTopic(it item) models.Topic {
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = "No title"
	}
	url := strings.TrimSpace(it.URL)
	if url == "" {
		url = itemFallbackURL
	}
	return models.Topic{Title: title, URL: url, Score: it.Score}
}

func (s *Source) getJSON(ctx context.Context, url string, out any) error {
	if err := s.limiter.Wait(ctx, ratelimit.LimiterHackerNews); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
