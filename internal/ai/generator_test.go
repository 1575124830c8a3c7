package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

// fakeProvider answers per key
type fakeProvider struct {
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, apiKey string, prompt Prompt) (string, error) {
	f.calls = append(f.calls, apiKey)
	if err := f.errs[apiKey]; err != nil {
		return "", err
	}
	return f.replies[apiKey], nil
}

// yday 2: the day's pick among three keys is keys[2]
var jan2 = func() time.Time { return time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC) }

func TestGenerateZeroKeys(t *testing.T) {
	g := NewGenerator(&fakeProvider{}, nil, logger.Nop())
	_, err := g.Generate(context.Background(), "Go 1.26", models.ModeArticle)
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestGenerateRejectsNone(t *testing.T) {
	g := NewGenerator(&fakeProvider{}, []string{"k"}, logger.Nop())
	if _, err := g.Generate(context.Background(), "x", models.ModeNone); err == nil {
		t.Fatal("expected error for mode none")
	}
}

func TestGenerateAllRateLimited(t *testing.T) {
	limited := errs.Wrap(errs.ErrRateLimited, "fake", errors.New("429"))
	p := &fakeProvider{errs: map[string]error{"a": limited, "b": limited, "c": limited}}
	g := NewGenerator(p, []string{"a", "b", "c"}, logger.Nop(), WithNow(jan2))

	res, err := g.Generate(context.Background(), "Quantum GPUs", models.ModeMeme)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Fallback || res.Text != FallbackPost("Quantum GPUs") {
		t.Fatalf("expected fallback text, got %+v", res)
	}
	if !strings.Contains(res.Text, "Quantum GPUs") {
		t.Fatalf("fallback must mention the title: %q", res.Text)
	}
	// single pass, day's pick first
	if got := strings.Join(p.calls, ","); got != "c,a,b" {
		t.Fatalf("attempt order = %s, want c,a,b", got)
	}
}

func TestGenerateSkipsFailingKeys(t *testing.T) {
	p := &fakeProvider{
		errs: map[string]error{
			"c": errs.Wrap(errs.ErrRateLimited, "fake", nil),
			"a": errors.New("connection reset"),
		},
		replies: map[string]string{"b": "  Hey tech fam 👋\n🔹 bullet  "},
	}
	g := NewGenerator(p, []string{"a", "b", "c"}, logger.Nop(), WithNow(jan2))

	res, err := g.Generate(context.Background(), "t", models.ModeShort)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Fallback || res.Text != "Hey tech fam 👋\n🔹 bullet" || res.Attempts != 3 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGenerateEmptyResponseFallsBack(t *testing.T) {
	p := &fakeProvider{replies: map[string]string{"only": "   "}}
	g := NewGenerator(p, []string{"only"}, logger.Nop())
	res, _ := g.Generate(context.Background(), "t", models.ModeFreestyle)
	if !res.Fallback {
		t.Fatalf("expected fallback for blank text, got %+v", res)
	}
}

func TestPostPromptPerMode(t *testing.T) {
	meme := PostPrompt("Rust in the kernel", models.ModeMeme)
	if !strings.Contains(meme.User, "Rust in the kernel") || !strings.Contains(meme.User, "starting with 'Caption:'") {
		t.Fatalf("meme prompt missing parts:\n%s", meme.User)
	}
	if short := PostPrompt("x", models.ModeShort); !strings.Contains(short.User, "a concise LinkedIn update") {
		t.Fatalf("short prompt wrong:\n%s", short.User)
	}
	if PostPrompt("100% uptime", models.ModeArticle).User == "" {
		t.Fatal("empty prompt")
	}
}

func TestAnthropicProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Header.Get("X-Api-Key") == "limited" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`)
			return
		}
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"Hello from Claude"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":4}}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider(config.AIConfig{AnthropicModel: "claude", MaxTokens: 64}, nil, logger.Nop()).WithBaseURL(srv.URL)
	prompt := PostPrompt("t", models.ModeArticle)

	text, err := p.Complete(context.Background(), "good", prompt)
	if err != nil || text != "Hello from Claude" {
		t.Fatalf("Complete = %q, %v", text, err)
	}

	_, err = p.Complete(context.Background(), "limited", prompt)
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}

func TestGeminiProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Goog-Api-Key") == "limited" {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Hey tech fam"},{"text":"#Tech"}]}}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider(config.AIConfig{GeminiModel: "gemini-2.5-flash", GeminiBaseURL: srv.URL + "/"}, nil, logger.Nop())
	prompt := PostPrompt("t", models.ModeArticle)

	text, err := p.Complete(context.Background(), "good", prompt)
	if err != nil || text != "Hey tech fam\n#Tech" {
		t.Fatalf("Complete = %q, %v", text, err)
	}

	_, err = p.Complete(context.Background(), "limited", prompt)
	if !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("expected rate-limited error, got %v", err)
	}
}
