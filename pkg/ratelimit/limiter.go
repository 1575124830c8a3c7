package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services.
// A nil *MultiLimiter never blocks, which keeps unit tests free of timing.
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	if m == nil {
		return nil
	}

	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	if m == nil {
		return true
	}

	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Default rate limiter names
const (
	LimiterHackerNews = "hackernews"
	LimiterRSS        = "rss"
	LimiterGemini     = "gemini"
	LimiterAnthropic  = "anthropic"
	LimiterNIM        = "nim"
	LimiterUnsplash   = "unsplash"
	LimiterLinkedIn   = "linkedin"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// Hacker News Firebase API has no published quota; stay polite
	m.AddLimiter(LimiterHackerNews, 5, 10)

	// RSS: 1 per second, burst 5
	m.AddLimiter(LimiterRSS, 1, 5)

	// Gemini free tier: 10 requests per minute
	m.AddLimiter(LimiterGemini, 10.0/60, 3)

	// Anthropic: 10 requests per minute
	m.AddLimiter(LimiterAnthropic, 10.0/60, 2)

	// NVIDIA NIM trial credits: 1 request per 5 seconds
	m.AddLimiter(LimiterNIM, 0.2, 2)

	// Unsplash demo apps: 50 requests per hour
	m.AddLimiter(LimiterUnsplash, 50.0/3600, 5)

	// LinkedIn: 100 requests per day, burst 5
	m.AddLimiter(LimiterLinkedIn, 100.0/(24*60*60), 5)

	return m
}
