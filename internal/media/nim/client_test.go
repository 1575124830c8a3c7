package nim

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/media"
	"github.com/linkedin-autopost/pkg/logger"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestProduceWritesDecodedImage(t *testing.T) {
	want := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer nvapi-test" {
			t.Errorf("authorization = %q", got)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AspectRatio != "1:1" || req.Steps != 30 || req.CfgScale != 5 || req.Prompt != "draw a gopher" {
			t.Errorf("unexpected payload %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]string{"image": base64.StdEncoding.EncodeToString(want)})
	}))
	defer srv.Close()

	c := NewClient(config.MediaConfig{NIMAPIKey: "nvapi-test", NIMURL: srv.URL}, nil, logger.Nop())
	out := filepath.Join(t.TempDir(), "image.png")
	if err := c.Produce(context.Background(), media.Request{Prompt: "draw a gopher"}, out); err != nil {
		t.Fatalf("Produce: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil || !bytes.Equal(got, want) {
		t.Fatalf("written bytes differ (err %v)", err)
	}
}

func TestProduceFailures(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		status  int
		body    string
		wantErr error
	}{
		{name: "missing key", key: "", wantErr: errs.ErrConfiguration},
		{name: "server error", key: "k", status: http.StatusBadGateway, body: `{}`, wantErr: errs.ErrTransient},
		{name: "rate limited", key: "k", status: http.StatusTooManyRequests, body: `{}`, wantErr: errs.ErrRateLimited},
		{name: "no image field", key: "k", status: http.StatusOK, body: `{"artifacts":[]}`},
		{name: "not an image", key: "k", status: http.StatusOK, body: `{"image":"aGVsbG8="}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(config.MediaConfig{NIMAPIKey: tt.key, NIMURL: srv.URL}, nil, logger.Nop())
			out := filepath.Join(t.TempDir(), "image.png")
			err := c.Produce(context.Background(), media.Request{Prompt: "p"}, out)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error %v is not %v", err, tt.wantErr)
			}
			if _, statErr := os.Stat(out); statErr == nil {
				t.Fatal("no file should be written on failure")
			}
		})
	}
}
