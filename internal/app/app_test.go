package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/runlock"
	"github.com/linkedin-autopost/internal/storage"
	"github.com/linkedin-autopost/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		LinkedIn: config.LinkedInConfig{BaseURL: "http://127.0.0.1:1"},
		AI:       config.AIConfig{Provider: "gemini", GeminiModel: "gemini-2.5-flash"},
		Sources:  config.SourcesConfig{Provider: "hackernews"},
		Schedule: config.ScheduleConfig{PostHour: 9, GraceMinutes: 15, PollIntervalSeconds: 30, EarliestHour: 6},
		Archive:  config.ArchiveConfig{Dir: filepath.Join(dir, "archive")},
		Database: config.DatabaseConfig{DSN: filepath.Join(dir, "data", "autopost.db")},
		Media:    config.MediaConfig{FontPath: "missing.ttf", FooterText: "Daily Tech Snapshot"},
	}
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Agent == nil || a.Preview == nil || a.LinkedIn == nil || a.OAuth == nil {
		t.Fatalf("app not fully wired: %+v", a)
	}
	if a.Agent.Tracker != nil {
		t.Fatal("disabled tracker should not be wired")
	}
	if _, err := a.Repo.ListRuns(context.Background(), storage.DefaultRunFilter()); err != nil {
		t.Fatalf("ledger not migrated: %v", err)
	}
}

func TestRunOnceRespectsLock(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	other := runlock.New(cfg.Archive.Dir)
	if err := other.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer other.Release()

	if _, err := a.RunOnce(context.Background()); !errors.Is(err, runlock.ErrHeld) {
		t.Fatalf("RunOnce = %v, want ErrHeld", err)
	}
}

func TestCheckSourcesIncludesEvergreen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/topstories.json" {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, "[1, 2, 3]")
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Sources.HackerNews.BaseURL = srv.URL
	cfg.Sources.FallbackTopics = []config.FallbackTopic{{Title: "Rust in the kernel", URL: "https://lwn.net"}}

	a, err := New(context.Background(), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if topics := a.Evergreen.Topics(); len(topics) != 1 || topics[0].Title != "Rust in the kernel" {
		t.Fatalf("evergreen topics = %+v", topics)
	}

	got := a.CheckSources(context.Background())
	if len(got) != 2 {
		t.Fatalf("checked %d sources, want 2", len(got))
	}
	if got[0].Name != "hackernews-top" || got[0].Err != nil {
		t.Fatalf("hackernews = %+v", got[0])
	}
	if got[1].Type != "custom" || got[1].Err != nil {
		t.Fatalf("evergreen = %+v", got[1])
	}
	// the evergreen list is checked, never registered for selection
	if n := len(a.Topics.GetSources()); n != 1 {
		t.Fatalf("selector has %d sources, want 1", n)
	}
}
