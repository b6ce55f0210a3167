// Package vault performs file-system mutations on the vault and propagates
// them, in order, to the index and to the open editor tabs.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/checksum"
	"github.com/starford/tabula/internal/index"
	"github.com/starford/tabula/internal/parser"
	"github.com/starford/tabula/internal/storage"
)

// Workspace is the part of the editor that follows vault mutations.
type Workspace interface {
	RenamePath(oldPath, newPath, title string) int
	RemovePath(path string) int
}

// NoteDetail is the full representation of a note on disk.
type NoteDetail struct {
	Path        string         `json:"path"`
	Title       string         `json:"title"`
	Content     string         `json:"content"`
	Checksum    string         `json:"checksum"`
	Tags        []string       `json:"tags"`
	Frontmatter map[string]any `json:"frontmatter,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Service coordinates storage, index and workspace. Mutations are
// serialized with each other and with Removed, so a watcher report about a
// path this service just moved never overtakes the workspace update.
type Service struct {
	mu     sync.Mutex
	store  storage.Provider
	db     index.NoteIndex
	ws     Workspace
	logger *slog.Logger
}

// NewService creates a vault service. ws may be nil when no editor is attached.
func NewService(store storage.Provider, db index.NoteIndex, ws Workspace, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, ws: ws, logger: logger}
}

// GetNote reads and parses a note from disk.
func (s *Service) GetNote(_ context.Context, p string) (*NoteDetail, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(rel)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	return buildNoteDetail(rel, data)
}

// CreateNote writes a new note and indexes it. A missing .md extension is added.
func (s *Service) CreateNote(_ context.Context, p string, content []byte) (*NoteDetail, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return nil, err
	}
	rel = withExt(rel)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mustNotExist(rel); err != nil {
		return nil, err
	}
	if err := s.store.Write(rel, content); err != nil {
		return nil, apperr.Classify(err)
	}
	if err := index.IndexNote(s.db, rel, content); err != nil {
		s.logger.Warn("vault: index failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	s.logger.Info("vault: created", slog.String("path", rel))
	return buildNoteDetail(rel, content)
}

// Rename gives the note or folder at p the base name newName and returns
// its new path. A note keeps its .md extension when newName omits it.
func (s *Service) Rename(_ context.Context, p, newName string) (string, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" || strings.ContainsAny(newName, `/\`) || newName == "." || newName == ".." {
		return "", fmt.Errorf("vault: name %q: %w", newName, apperr.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	info, err := s.store.Stat(rel)
	if err != nil {
		return "", apperr.Classify(err)
	}
	if !info.IsDir() && strings.HasSuffix(rel, ".md") {
		newName = withExt(newName)
	}
	dest := path.Join(path.Dir(rel), newName)
	if err := s.moveLocked(rel, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// Move places the note or folder at p inside targetDir ("" for the vault
// root) and returns its new path.
func (s *Service) Move(_ context.Context, p, targetDir string) (string, error) {
	rel, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	dir := ""
	if strings.Trim(targetDir, `/\`) != "" {
		if dir, err = cleanPath(targetDir); err != nil {
			return "", err
		}
	}
	if dir == rel || strings.HasPrefix(dir, rel+"/") {
		return "", fmt.Errorf("vault: move %s into itself: %w", rel, apperr.ErrConflict)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.store.Stat(rel); err != nil {
		return "", apperr.Classify(err)
	}
	if dir != "" {
		info, err := s.store.Stat(dir)
		if err != nil {
			return "", apperr.Classify(err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("vault: move target %s is not a folder: %w", dir, apperr.ErrConflict)
		}
	}
	dest := path.Join(dir, path.Base(rel))
	if dest == rel {
		return rel, nil
	}
	if err := s.moveLocked(rel, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *Service) moveLocked(rel, dest string) error {
	if err := s.mustNotExist(dest); err != nil {
		return err
	}
	if err := s.store.Move(rel, dest); err != nil {
		return apperr.Classify(err)
	}
	if _, err := s.db.MovePrefix(rel, dest); err != nil {
		s.logger.Warn("vault: index move failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	tabs := 0
	if s.ws != nil {
		tabs = s.ws.RenamePath(storage.NotePath(rel), storage.NotePath(dest), "")
	}
	s.logger.Info("vault: moved",
		slog.String("from", rel),
		slog.String("to", dest),
		slog.Int("tabs", tabs))
	return nil
}

// Delete removes the note or folder at p and closes the tabs showing it.
func (s *Service) Delete(_ context.Context, p string) error {
	rel, err := cleanPath(p)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Delete(rel); err != nil {
		return apperr.Classify(err)
	}
	if _, err := s.db.DeletePrefix(rel); err != nil {
		s.logger.Warn("vault: index delete failed", slog.String("path", rel), slog.String("error", err.Error()))
	}
	tabs := 0
	if s.ws != nil {
		tabs = s.ws.RemovePath(storage.NotePath(rel))
	}
	s.logger.Info("vault: deleted", slog.String("path", rel), slog.Int("tabs", tabs))
	return nil
}

// Removed reports that p disappeared from the vault without going through
// this service, e.g. it was deleted by another program.
func (s *Service) Removed(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ws == nil {
		return 0
	}
	return s.ws.RemovePath(storage.NotePath(p))
}

// ListNotes returns paginated notes with optional tag filter.
func (s *Service) ListNotes(_ context.Context, limit, offset int, tag string) ([]index.NoteRow, int, error) {
	return s.db.ListNotes(limit, offset, tag)
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

func (s *Service) mustNotExist(rel string) error {
	_, err := s.store.Stat(rel)
	switch {
	case err == nil:
		return fmt.Errorf("vault: %s: %w", rel, apperr.ErrAlreadyExists)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return apperr.Classify(err)
	}
}

// cleanPath turns a client path into a Provider path. The vault root itself
// is rejected.
func cleanPath(p string) (string, error) {
	rel := path.Clean("/" + storage.RelPath(p))
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", fmt.Errorf("vault: path %q names the vault root: %w", p, apperr.ErrInvalid)
	}
	return rel, nil
}

func withExt(name string) string {
	if strings.HasSuffix(name, ".md") {
		return name
	}
	return name + ".md"
}

func buildNoteDetail(rel string, data []byte) (*NoteDetail, error) {
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(rel), ".md")
	}
	return &NoteDetail{
		Path:        storage.NotePath(rel),
		Title:       title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Tags:        res.Tags,
		Frontmatter: res.Frontmatter,
		UpdatedAt:   time.Now().UTC(),
	}, nil
}
