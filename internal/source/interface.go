package source

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

// TopicSource defines the interface for trending-topic sources
type TopicSource interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (hackernews, rss, custom)
	Type() string

	// Fetch retrieves candidate topics. Per-item failures are skipped by the
	// source itself; an error means the listing as a whole failed.
	Fetch(ctx context.Context) ([]models.Topic, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// Selector picks the day's topic from the registered sources and never fails:
// when no source yields a candidate it draws from the fallback list.
type Selector struct {
	sources  []TopicSource
	fallback []models.Topic
	intn     func(n int) int
	log      *logger.Logger
}

// Option configures a Selector
type Option func(*Selector)

// WithRand replaces the random draw used for the fallback pick
func WithRand(intn func(n int) int) Option {
	return func(s *Selector) { s.intn = intn }
}

// NewSelector creates a selector over the given fallback topics
func NewSelector(fallback []models.Topic, log *logger.Logger, opts ...Option) *Selector {
	s := &Selector{
		sources:  make([]TopicSource, 0),
		fallback: fallback,
		intn:     rand.IntN,
		log:      log.WithComponent("topic-selector"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a source to the selector
func (s *Selector) Register(src TopicSource) {
	s.sources = append(s.sources, src)
}

// GetSources returns all registered sources
func (s *Selector) GetSources() []TopicSource {
	return s.sources
}

// Health is the result of checking one source
type Health struct {
	Name string
	Type string
	Err  error
}

// Check runs every source's HealthCheck concurrently. Results keep the
// order of sources.
func Check(ctx context.Context, sources []TopicSource) []Health {
	results := make([]Health, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src TopicSource) {
			defer wg.Done()
			results[i] = Health{Name: src.Name(), Type: src.Type(), Err: src.HealthCheck(ctx)}
		}(i, src)
	}
	wg.Wait()
	return results
}

// FetchAll fetches topics from all sources concurrently
func (s *Selector) FetchAll(ctx context.Context) ([]models.Topic, []error) {
	type result struct {
		topics []models.Topic
		err    error
	}

	results := make(chan result, len(s.sources))

	for _, src := range s.sources {
		go func(src TopicSource) {
			topics, err := src.Fetch(ctx)
			results <- result{topics: topics, err: err}
		}(src)
	}

	var allTopics []models.Topic
	var errors []error

	for range s.sources {
		r := <-results
		if r.err != nil {
			errors = append(errors, r.err)
		} else {
			allTopics = append(allTopics, r.topics...)
		}
	}

	return allTopics, errors
}

// Select returns the highest-scoring candidate, or a random fallback topic
func (s *Selector) Select(ctx context.Context) models.Topic {
	topics, errs := s.FetchAll(ctx)
	for _, err := range errs {
		s.log.Warn().Err(err).Msg("Topic source failed")
	}

	if best, ok := Best(topics); ok {
		s.log.Info().
			Str("title", best.Title).
			Int("score", best.Score).
			Int("candidates", len(topics)).
			Msg("Selected trending topic")
		return best
	}

	topic := s.fallbackTopic()
	s.log.Warn().Str("title", topic.Title).Msg("No trending candidates, using fallback topic")
	return topic
}

func (s *Selector) fallbackTopic() models.Topic {
	if len(s.fallback) == 0 {
		return models.Topic{Title: "What's new in tech today", URL: "https://news.ycombinator.com/"}
	}
	return s.fallback[s.intn(len(s.fallback))]
}

// Best returns the topic with the highest score. Ties keep the earlier topic.
func Best(topics []models.Topic) (models.Topic, bool) {
	if len(topics) == 0 {
		return models.Topic{}, false
	}
	sorted := append([]models.Topic(nil), topics...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	return sorted[0], true
}
