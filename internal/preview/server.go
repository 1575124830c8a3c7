// Package preview serves archived runs to the owner while the workflow waits
// for approval. It only reads the archive.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/linkedin-autopost/internal/archive"
	"github.com/linkedin-autopost/internal/config"
	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/pkg/logger"
)

const (
	pageExpiration  = 30 * time.Minute
	cleanupInterval = time.Hour
)

var pageTemplate = template.Must(template.New("preview").Parse(`<!doctype html>
<title>Preview {{.RunID}}</title>
<h2>LinkedIn Auto-Post Preview ({{.RunID}})</h2>
<p><b>Topic:</b> {{.Title}}</p>
<p><b>Source:</b> <a href="{{.URL}}">{{.URL}}</a></p>
<img src="/archive/{{.RunID}}/image.png" style="max-width:600px;display:block;margin-bottom:20px;">
<pre style="white-space:pre-wrap;">{{.Text}}</pre>
`))

// Server is the local preview web server
type Server struct {
	addr  string
	store *archive.Store
	pages *cache.Cache
	log   *logger.Logger
}

// New creates a preview server for the archive
func New(cfg config.PreviewConfig, store *archive.Store, log *logger.Logger) *Server {
	return &Server{
		addr:  fmt.Sprintf(":%d", cfg.Port),
		store: store,
		pages: cache.New(pageExpiration, cleanupInterval),
		log:   log.WithComponent("preview"),
	}
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /preview/{id}", s.handlePreview)
	mux.HandleFunc("GET /archive/{id}/{file}", s.handleFile)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("preview listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("address", ln.Addr().String()).Msg("Preview server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview server: %w", err)
	}
	return nil
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	page, ok := s.pages.Get(id)
	if !ok {
		rendered, err := s.render(id)
		if err != nil {
			s.writeError(w, id, err)
			return
		}
		// a run directory is complete once its meta exists and never changes
		s.pages.SetDefault(id, rendered)
		page = rendered
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page.([]byte))
}

func (s *Server) render(id string) ([]byte, error) {
	art, err := s.store.Load(id)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, struct {
		RunID string
		Title string
		URL   string
		Text  string
	}{id, art.Meta.Title, art.Meta.URL, art.Text})
	if err != nil {
		return nil, fmt.Errorf("render preview: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id, name := r.PathValue("id"), r.PathValue("file")
	path, err := s.store.FilePath(id, name)
	if err != nil {
		s.writeError(w, id, err)
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) writeError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, errs.ErrNotFound) {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.log.Error().Err(err).Str("run_id", id).Msg("Preview failed")
	http.Error(w, "Internal error", http.StatusInternalServerError)
}
