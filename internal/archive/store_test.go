package archive

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

func newRun(t *testing.T, store *Store) *models.Run {
	t.Helper()
	id := models.NewRunID(time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC))
	if err := store.Prepare(id); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return &models.Run{
		ID:          id,
		Topic:       models.Topic{Title: `Tabs <vs> "spaces" & you`, URL: "https://example.com/?a=1&b=2", Score: 321},
		Mode:        models.ModeMeme,
		Text:        "Hey tech fam 👋\n\n  🔹 indented\tline\r\n#Tech",
		ImagePath:   store.ImagePath(id),
		ImageSource: "fallback",
		CreatedAt:   time.Date(2026, 3, 9, 6, 0, 1, 0, time.UTC),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir(), logger.Nop())
	run := newRun(t, store)
	image := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3, 255}
	if err := os.WriteFile(run.ImagePath, image, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load(run.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Meta.Title != run.Topic.Title || got.Meta.URL != run.Topic.URL || got.Meta.Score != 321 {
		t.Fatalf("meta mismatch: %+v", got.Meta)
	}
	if got.Meta.Mode != models.ModeMeme || !got.Meta.CreatedAt.Equal(run.CreatedAt) {
		t.Fatalf("meta mismatch: %+v", got.Meta)
	}
	if got.Text != run.Text {
		t.Fatalf("text = %q, want %q", got.Text, run.Text)
	}
	if !bytes.Equal(got.Image, image) {
		t.Fatalf("image bytes differ")
	}

	// write-once
	if err := store.Save(run); err == nil {
		t.Fatal("second Save should fail")
	}
}

func TestSaveCopiesForeignImage(t *testing.T) {
	store := NewStore(t.TempDir(), logger.Nop())
	run := newRun(t, store)
	elsewhere := filepath.Join(t.TempDir(), "gen.png")
	os.WriteFile(elsewhere, []byte("img"), 0o644)
	run.ImagePath = elsewhere

	if err := store.Save(run); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := store.Load(run.ID)
	if err != nil || string(got.Image) != "img" {
		t.Fatalf("Load = %v, %v", got, err)
	}
}

func TestLoadNotFound(t *testing.T) {
	store := NewStore(t.TempDir(), logger.Nop())
	for _, id := range []string{"20260101-000000000000", "../../etc", ""} {
		if _, err := store.Load(id); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("Load(%q) error = %v, want not found", id, err)
		}
	}

	// prepared but not yet saved is still unknown
	run := newRun(t, store)
	if _, err := store.Load(run.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("half-written run should be not found, got %v", err)
	}
}

func TestFilePath(t *testing.T) {
	store := NewStore(t.TempDir(), logger.Nop())
	run := newRun(t, store)
	os.WriteFile(run.ImagePath, []byte("img"), 0o644)
	if err := store.Save(run); err != nil {
		t.Fatal(err)
	}

	path, err := store.FilePath(run.ID, ImageFile)
	if err != nil || path != run.ImagePath {
		t.Fatalf("FilePath = %q, %v", path, err)
	}
	for _, name := range []string{"../meta.json", "secret.env", OutcomeFile} {
		if _, err := store.FilePath(run.ID, name); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("FilePath(%q) error = %v, want not found", name, err)
		}
	}
}

func TestOutcome(t *testing.T) {
	store := NewStore(t.TempDir(), logger.Nop())
	run := newRun(t, store)
	want := models.Outcome{
		RunID:      run.ID,
		Reason:     models.ReasonApprovalExpired,
		Approval:   models.ApprovalExpired,
		FinishedAt: time.Date(2026, 3, 9, 9, 15, 0, 0, time.UTC),
	}
	if err := store.SaveOutcome(want); err != nil {
		t.Fatalf("SaveOutcome: %v", err)
	}
	got, err := store.LoadOutcome(run.ID)
	if err != nil {
		t.Fatalf("LoadOutcome: %v", err)
	}
	if got.Reason != want.Reason || got.Posted || !got.FinishedAt.Equal(want.FinishedAt) {
		t.Fatalf("outcome = %+v", got)
	}
}
