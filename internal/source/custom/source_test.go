package custom

import (
	"context"
	"reflect"
	"testing"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

func TestNewUsesConfiguredTopics(t *testing.T) {
	src := New([]config.FallbackTopic{
		{Title: "  Rust in the kernel ", URL: "https://lwn.net"},
		{Title: "   "},
		{Title: "Wasm everywhere"},
	}, logger.Nop())

	want := []models.Topic{
		{Title: "Rust in the kernel", URL: "https://lwn.net"},
		{Title: "Wasm everywhere", URL: defaultURL},
	}
	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("topics = %+v, want %+v", got, want)
	}
}

func TestNewDefaultsToEvergreenList(t *testing.T) {
	for _, cfg := range [][]config.FallbackTopic{nil, {{URL: "https://no-title"}}} {
		src := New(cfg, logger.Nop())
		if !reflect.DeepEqual(src.Topics(), DefaultTopics) {
			t.Fatalf("New(%v) topics = %+v", cfg, src.Topics())
		}
	}
}

func TestTopicsReturnsCopy(t *testing.T) {
	src := New(nil, logger.Nop())
	topics := src.Topics()
	topics[0].Title = "changed"
	if src.Topics()[0].Title == "changed" || DefaultTopics[0].Title == "changed" {
		t.Fatal("Topics exposed the internal list")
	}
}

func TestHealthCheck(t *testing.T) {
	src := New(nil, logger.Nop())
	if err := src.HealthCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.Name() != "custom-evergreen" || src.Type() != "custom" {
		t.Fatalf("identity = %s/%s", src.Name(), src.Type())
	}
}
