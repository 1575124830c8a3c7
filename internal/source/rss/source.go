package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/source"
	"github.com/linkedin-autopost/pkg/logger"
	"github.com/linkedin-autopost/pkg/ratelimit"
)

// maxAge drops stale entries from slow feeds
const maxAge = 7 * 24 * time.Hour

// Source implements TopicSource for RSS feeds
type Source struct {
	name    string
	url     string
	limit   int
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
}

// New creates a new RSS source for a single feed
func New(feed config.RSSFeed, limit int, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	if limit <= 0 {
		limit = 10
	}
	return &Source{
		name:    feed.Name,
		url:     feed.URL,
		limit:   limit,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		log:     log.WithSource("rss", feed.Name),
	}
}

// NewMultiple creates multiple RSS sources from config
func NewMultiple(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, New(feed, cfg.Limit, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss"
func (s *Source) Type() string {
	return "rss"
}

// Fetch retrieves topics from the feed. Feeds carry no popularity signal, so
// the score is the reversed position: the first entry scores limit, the next
// limit-1, and so on.
func (s *Source) Fetch(ctx context.Context) ([]models.Topic, error) {
	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	if err := s.limiter.Wait(ctx, ratelimit.LimiterRSS); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	topics := make([]models.Topic, 0, s.limit)

	for _, item := range feed.Items {
		if len(topics) == s.limit {
			break
		}
		if item.PublishedParsed != nil && time.Since(*item.PublishedParsed) > maxAge {
			continue
		}

		title := cleanText(item.Title)
		if title == "" {
			continue
		}

		topics = append(topics, models.Topic{
			Title: title,
			URL:   strings.TrimSpace(item.Link),
			Score: s.limit - len(topics),
		})
	}

	s.log.Info().
		Int("count", len(topics)).
		Str("feed", s.name).
		Msg("Fetched RSS topics")

	return topics, nil
}

// HealthCheck verifies the RSS feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// cleanText strips markup and collapses whitespace. Feed titles are
// untrusted and sometimes carry HTML.
func cleanText(text string) string {
	if strings.ContainsAny(text, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
