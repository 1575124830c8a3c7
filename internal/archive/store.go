// Package archive persists one directory per run. File names are shared with
// the preview server and must not change.
package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/linkedin-autopost/internal/errs"
	"github.com/linkedin-autopost/internal/models"
	"github.com/linkedin-autopost/pkg/logger"
)

// Archive file names
const (
	MetaFile    = "meta.json"
	TextFile    = "text.txt"
	ImageFile   = "image.png"
	OutcomeFile = "outcome.json"
)

var servable = map[string]bool{
	MetaFile:    true,
	TextFile:    true,
	ImageFile:   true,
	OutcomeFile: true,
}

// Meta is the structured topic metadata of a run
type Meta struct {
	RunID       string             `json:"run_id"`
	Title       string             `json:"title"`
	URL         string             `json:"url"`
	Score       int                `json:"score"`
	Mode        models.ContentMode `json:"mode"`
	ImageSource string             `json:"image_source,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Artifacts is everything stored for a run
type Artifacts struct {
	Meta  Meta
	Text  string
	Image []byte
}

// Store is the filesystem archive
type Store struct {
	root string
	log  *logger.Logger
}

// NewStore creates a store rooted at dir
func NewStore(dir string, log *logger.Logger) *Store {
	return &Store{
		root: dir,
		log:  log.WithComponent("archive"),
	}
}

// Root returns the archive directory
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory of a run
func (s *Store) Dir(runID string) string {
	return filepath.Join(s.root, runID)
}

// ImagePath is where the run's image must be written
func (s *Store) ImagePath(runID string) string {
	return filepath.Join(s.Dir(runID), ImageFile)
}

// Prepare creates the run directory. It fails if the run already exists.
func (s *Store) Prepare(runID string) error {
	if !models.ValidRunID(runID) {
		return fmt.Errorf("invalid run id %q", runID)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("failed to create archive root: %w", err)
	}
	if err := os.Mkdir(s.Dir(runID), 0o755); err != nil {
		return fmt.Errorf("failed to create run dir: %w", err)
	}
	return nil
}

// Save persists the run's text and metadata. The image must already be at
// ImagePath or at run.ImagePath, which is copied in. Metadata is written last:
// a run without meta.json does not exist for readers.
func (s *Store) Save(run *models.Run) error {
	dir := s.Dir(run.ID)
	if _, err := os.Stat(filepath.Join(dir, MetaFile)); err == nil {
		return fmt.Errorf("run %s already archived", run.ID)
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := s.Prepare(run.ID); err != nil {
			return err
		}
	}

	if run.ImagePath != "" && run.ImagePath != s.ImagePath(run.ID) {
		data, err := os.ReadFile(run.ImagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		if err := writeFileAtomic(s.ImagePath(run.ID), data); err != nil {
			return fmt.Errorf("failed to store image: %w", err)
		}
	}
	if _, err := os.Stat(s.ImagePath(run.ID)); err != nil {
		return fmt.Errorf("image missing for run %s: %w", run.ID, err)
	}

	if err := writeFileAtomic(filepath.Join(dir, TextFile), []byte(run.Text)); err != nil {
		return fmt.Errorf("failed to write text: %w", err)
	}

	meta, err := json.MarshalIndent(Meta{
		RunID:       run.ID,
		Title:       run.Topic.Title,
		URL:         run.Topic.URL,
		Score:       run.Topic.Score,
		Mode:        run.Mode,
		ImageSource: run.ImageSource,
		CreatedAt:   run.CreatedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal meta: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, MetaFile), meta); err != nil {
		return fmt.Errorf("failed to write meta: %w", err)
	}

	s.log.Info().Str("run_id", run.ID).Str("dir", dir).Msg("Run archived")
	return nil
}

// Load returns a run's artifacts, or errs.ErrNotFound
func (s *Store) Load(runID string) (*Artifacts, error) {
	meta, err := s.LoadMeta(runID)
	if err != nil {
		return nil, err
	}

	text, err := os.ReadFile(filepath.Join(s.Dir(runID), TextFile))
	if err != nil {
		return nil, notFound(runID, TextFile, err)
	}
	image, err := os.ReadFile(s.ImagePath(runID))
	if err != nil {
		return nil, notFound(runID, ImageFile, err)
	}

	return &Artifacts{Meta: *meta, Text: string(text), Image: image}, nil
}

// LoadMeta reads only the metadata of a run
func (s *Store) LoadMeta(runID string) (*Meta, error) {
	if !models.ValidRunID(runID) {
		return nil, errs.Wrap(errs.ErrNotFound, "run "+runID, nil)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), MetaFile))
	if err != nil {
		return nil, notFound(runID, MetaFile, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("corrupt meta for run %s: %w", runID, err)
	}
	return &meta, nil
}

// FilePath returns the path of one servable archive file, or errs.ErrNotFound
func (s *Store) FilePath(runID, name string) (string, error) {
	if !models.ValidRunID(runID) || !servable[name] {
		return "", errs.Wrap(errs.ErrNotFound, runID+"/"+name, nil)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(runID), MetaFile)); err != nil {
		return "", notFound(runID, MetaFile, err)
	}
	path := filepath.Join(s.Dir(runID), name)
	if _, err := os.Stat(path); err != nil {
		return "", notFound(runID, name, err)
	}
	return path, nil
}

// SaveOutcome appends the run's outcome
func (s *Store) SaveOutcome(o models.Outcome) error {
	if !models.ValidRunID(o.RunID) {
		return fmt.Errorf("invalid run id %q", o.RunID)
	}
	data, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}
	if err := os.MkdirAll(s.Dir(o.RunID), 0o755); err != nil {
		return fmt.Errorf("failed to create run dir: %w", err)
	}
	return writeFileAtomic(filepath.Join(s.Dir(o.RunID), OutcomeFile), data)
}

// LoadOutcome reads the outcome of a finished run
func (s *Store) LoadOutcome(runID string) (*models.Outcome, error) {
	if !models.ValidRunID(runID) {
		return nil, errs.Wrap(errs.ErrNotFound, "run "+runID, nil)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir(runID), OutcomeFile))
	if err != nil {
		return nil, notFound(runID, OutcomeFile, err)
	}
	var o models.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("corrupt outcome for run %s: %w", runID, err)
	}
	return &o, nil
}

func notFound(runID, name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return errs.Wrap(errs.ErrNotFound, runID+"/"+name, err)
	}
	return fmt.Errorf("failed to read %s/%s: %w", runID, name, err)
}

// writeFileAtomic writes through a temp file so readers never see a partial file
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
