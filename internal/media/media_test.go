package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin-autopost/pkg/logger"
)

type stubProducer struct {
	name  string
	err   error
	calls int
}

func (s *stubProducer) Name() string { return s.name }

func (s *stubProducer) Produce(ctx context.Context, req Request, outPath string) error {
	s.calls++
	if s.err != nil {
		// leave a partial file behind
		os.WriteFile(outPath, []byte("partial"), 0o644)
		return s.err
	}
	return os.WriteFile(outPath, []byte(s.name), 0o644)
}

type stubRenderer struct {
	title string
}

func (s *stubRenderer) Render(title, outPath string) error {
	s.title = title
	return os.WriteFile(outPath, []byte("banner"), 0o644)
}

func TestChainFirstSuccessWins(t *testing.T) {
	failing := &stubProducer{name: "nim", err: errors.New("502")}
	stock := &stubProducer{name: "unsplash"}
	renderer := &stubRenderer{}
	out := filepath.Join(t.TempDir(), "run", "image.png")

	source, err := NewChain(renderer, logger.Nop(), failing, stock).Produce(context.Background(), Request{Title: "t"}, out)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if source != "unsplash" {
		t.Fatalf("source = %q, want unsplash", source)
	}
	if data, _ := os.ReadFile(out); string(data) != "unsplash" {
		t.Fatalf("file content = %q", data)
	}
	if renderer.title != "" {
		t.Fatal("renderer should not run when a producer succeeds")
	}
}

func TestChainFallsBackToRenderer(t *testing.T) {
	renderer := &stubRenderer{}
	out := filepath.Join(t.TempDir(), "image.png")
	chain := NewChain(renderer, logger.Nop(), &stubProducer{name: "nim", err: errors.New("no key")})

	source, err := chain.Produce(context.Background(), Request{Title: "Edge AI"}, out)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if source != FallbackSource || renderer.title != "Edge AI" {
		t.Fatalf("source = %q, rendered title %q", source, renderer.title)
	}
	if data, _ := os.ReadFile(out); string(data) != "banner" {
		t.Fatalf("partial file not replaced: %q", data)
	}
}
