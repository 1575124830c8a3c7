package preview

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/linkedin-autopost/internal/archive"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

const runID = "20260309-a1b2c3d4e5f6"

var image = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 1, 2, 254, 255}

func archivedStore(t *testing.T) *archive.Store {
	t.Helper()
	store := archive.NewStore(t.TempDir(), logger.Nop())
	if err := store.Prepare(runID); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(store.ImagePath(runID), image, 0o644); err != nil {
		t.Fatal(err)
	}
	err := store.Save(&models.Run{
		ID:        runID,
		Topic:     models.Topic{Title: `<script>alert(1)</script> Rust & Go`, URL: "https://example.com/post?id=1", Score: 99},
		Mode:      models.ModeArticle,
		Text:      "Line one\n\n<b>not bold</b>\n#Tech",
		ImagePath: store.ImagePath(runID),
		CreatedAt: time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPreviewPage(t *testing.T) {
	h := New(config.PreviewConfig{}, archivedStore(t), logger.Nop()).Handler()

	rec := get(t, h, "/preview/"+runID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "<script>") || strings.Contains(body, "<b>not bold</b>") {
		t.Fatalf("archive content not escaped:\n%s", body)
	}
	for _, want := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt; Rust &amp; Go",
		`href="https://example.com/post?id=1"`,
		`<img src="/archive/` + runID + `/image.png"`,
		`<pre style="white-space:pre-wrap;">Line one`,
		"&lt;b&gt;not bold&lt;/b&gt;",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("page missing %q:\n%s", want, body)
		}
	}
	if strings.Count(body, "<pre") != 1 || strings.Count(body, "<a ") != 1 {
		t.Fatalf("markup structure altered:\n%s", body)
	}

	// served from cache the second time
	again := get(t, h, "/preview/"+runID)
	if again.Body.String() != body {
		t.Fatal("cached page differs")
	}
}

func TestArchiveFilesAreByteExact(t *testing.T) {
	store := archivedStore(t)
	h := New(config.PreviewConfig{}, store, logger.Nop()).Handler()

	rec := get(t, h, "/archive/"+runID+"/image.png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !bytes.Equal(rec.Body.Bytes(), image) {
		t.Fatal("image bytes differ from the archive")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q", ct)
	}

	rec = get(t, h, "/archive/"+runID+"/text.txt")
	if rec.Body.String() != "Line one\n\n<b>not bold</b>\n#Tech" {
		t.Fatalf("text = %q", rec.Body.String())
	}
}

func TestNotFound(t *testing.T) {
	store := archivedStore(t)
	// a run whose artifacts are still being written
	if err := store.Prepare("20260310-000000000000"); err != nil {
		t.Fatal(err)
	}
	h := New(config.PreviewConfig{}, store, logger.Nop()).Handler()

	paths := []string{
		"/preview/20260101-ffffffffffff",
		"/preview/20260310-000000000000",
		"/archive/20260101-ffffffffffff/image.png",
		"/archive/20260310-000000000000/image.png",
		"/archive/" + runID + "/secret.txt",
		"/archive/" + runID + "/..%2f..%2fetc",
	}
	for _, p := range paths {
		if rec := get(t, h, p); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", p, rec.Code)
		}
	}
}

func TestHealth(t *testing.T) {
	h := New(config.PreviewConfig{}, archive.NewStore(t.TempDir(), logger.Nop()), logger.Nop()).Handler()
	rec := get(t, h, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := New(config.PreviewConfig{}, archivedStore(t), logger.Nop())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/archive/" + runID + "/image.png")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	got, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.Equal(got, image) {
		t.Fatal("image bytes differ over the wire")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
