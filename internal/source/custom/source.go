package custom

import (
	"context"
	"strings"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/internal/source"
	"github.com/linkedin-autopost/pkg/logger"
)

// DefaultTopics is the evergreen list drawn from when no trending source answers
var DefaultTopics = []models.Topic{
	{Title: "Latest AI breakthroughs shaping 2025", URL: "https://ai.google"},
	{Title: "How GPUs are powering the next wave of AI startups", URL: "https://nvidia.com"},
	{Title: "Serverless vs containers: what modern teams actually use", URL: "https://aws.amazon.com"},
	{Title: "Top 5 trends in full-stack development for 2025", URL: "https://developer.mozilla.org"},
}

// defaultURL is used for configured topics that carry no link
const defaultURL = "https://news.ycombinator.com/"

// Source implements TopicSource for the evergreen topic list
type Source struct {
	topics []models.Topic
	log    *logger.Logger
}

// New creates the evergreen source from configured topics. Entries without
// a title are skipped; an empty result means DefaultTopics.
func New(cfg []config.FallbackTopic, log *logger.Logger) *Source {
	topics := make([]models.Topic, 0, len(cfg))
	for _, t := range cfg {
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		url := strings.TrimSpace(t.URL)
		if url == "" {
			url = defaultURL
		}
		topics = append(topics, models.Topic{Title: title, URL: url})
	}
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	return &Source{
		topics: topics,
		log:    log.WithSource("custom", "evergreen"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "custom-evergreen"
}

// Type returns "custom"
func (s *Source) Type() string {
	return "custom"
}

// Topics returns a copy of the list
func (s *Source) Topics() []models.Topic {
	return append([]models.Topic(nil), s.topics...)
}

// Fetch returns the configured topics, all with score 0
func (s *Source) Fetch(ctx context.Context) ([]models.Topic, error) {
	s.log.Debug().Int("count", len(s.topics)).Msg("Returning evergreen topics")
	return s.Topics(), nil
}

// HealthCheck always succeeds for a static list
func (s *Source) HealthCheck(ctx context.Context) error {
	return nil
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
