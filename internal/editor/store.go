// Package editor owns the open tabs of the desktop editor: their layout,
// their in-memory content and the load/save round trips to the vault.
//
// Concurrency model: one mutex guards all state. Reads and writes of note
// content run outside the lock, so other tabs stay usable while a load or
// save is outstanding. A finished read is applied only if the tab record that
// issued it is still registered and no newer read was started for it.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/tabula/internal/apperr"
	"github.com/starford/tabula/internal/layout"
)

// ContentSource reads and writes note content. Read failures are expected to
// classify as apperr.ErrNotFound or apperr.ErrIO, write failures as
// apperr.ErrIO or apperr.ErrPermissionDenied.
type ContentSource interface {
	ReadContent(ctx context.Context, path string) (string, error)
	WriteContent(ctx context.Context, path, content string) error
}

// TabView is a read-only snapshot of one tab.
type TabView struct {
	ID      layout.TabID `json:"id"`
	Path    string       `json:"path"`
	Title   string       `json:"title"`
	IsDirty bool         `json:"is_dirty"`
	Content string       `json:"content"`
	Loading bool         `json:"loading"`
	Saving  bool         `json:"saving"`
}

type tab struct {
	id      layout.TabID
	path    string
	title   string
	content string
	dirty   bool
	loaded  bool
	loading bool
	saves   int    // writes in flight
	readSeq uint64 // token of the read allowed to land
	rev     uint64 // bumped on every edit
}

func (t *tab) view() TabView {
	return TabView{
		ID:      t.id,
		Path:    t.path,
		Title:   t.title,
		IsDirty: t.dirty,
		Content: t.content,
		Loading: t.loading,
		Saving:  t.saves > 0,
	}
}

// Store is the stateful editor workspace. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	src      ContentSource
	logger   *slog.Logger
	notifier Notifier

	layout  layout.Layout
	tabs    map[layout.TabID]*tab
	lastErr error
	seq     uint64
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithNotifier sets the receiver of store events.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// New creates an empty workspace reading and writing through src.
func New(src ContentSource, opts ...Option) *Store {
	s := &Store{
		src:      src,
		logger:   slog.Default(),
		notifier: nopNotifier{},
		layout:   layout.Initial(),
		tabs:     make(map[layout.TabID]*tab),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenNote shows path according to d and reads its content from the source.
// A dirty tab is not re-read, so unsaved edits survive a re-open. Placement
// happens before the read is issued; a failed read leaves the tab open and
// records the error.
func (s *Store) OpenNote(ctx context.Context, path string, d layout.Disposition) (layout.TabID, error) {
	id := layout.IDForPath(path)
	if id == "" {
		return "", fmt.Errorf("editor: open: empty path: %w", apperr.ErrInvalid)
	}
	d, err := layout.ParseDisposition(string(d))
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		t = &tab{id: id, path: path, title: layout.TitleForPath(path)}
		s.tabs[id] = t
	}
	s.layout = layout.Place(s.layout, id, d)
	s.lastErr = nil
	s.mustBeConsistent()

	if t.dirty {
		s.mu.Unlock()
		s.emit(Event{Type: EventLayoutChanged, TabID: id, Path: path})
		return id, nil
	}
	s.seq++
	token, rev := s.seq, t.rev
	t.readSeq, t.loading = token, true
	readPath, src := t.path, s.src
	s.mu.Unlock()
	s.emit(Event{Type: EventLayoutChanged, TabID: id, Path: readPath})

	content, err := src.ReadContent(ctx, readPath)

	s.mu.Lock()
	if s.tabs[t.id] != t || t.readSeq != token {
		s.mu.Unlock()
		s.logger.Debug("editor: discarded stale read", slog.String("path", readPath))
		return id, nil
	}
	t.loading = false
	id = t.id
	if err != nil {
		tabErr := &apperr.TabError{TabID: string(id), Op: "read", Err: apperr.Classify(err)}
		s.lastErr = tabErr
		s.mu.Unlock()
		s.logger.Warn("editor: read failed", slog.String("path", readPath), slog.String("error", err.Error()))
		s.emit(Event{Type: EventTabError, TabID: id, Path: readPath, Error: tabErr.Error()})
		return id, tabErr
	}
	t.loaded = true
	if t.rev == rev {
		t.content, t.dirty = content, false
	} else {
		// Edited while the read was outstanding; the edit wins.
		s.logger.Debug("editor: kept edits made during load", slog.String("path", readPath))
	}
	s.mu.Unlock()
	s.emit(Event{Type: EventTabLoaded, TabID: id, Path: readPath})
	return id, nil
}

// SetActiveTab shows id in its pane and focuses that pane.
func (s *Store) SetActiveTab(id layout.TabID) error {
	s.mu.Lock()
	next, err := layout.WithActiveTab(s.layout, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.layout = next
	s.mustBeConsistent()
	s.mu.Unlock()
	s.emit(Event{Type: EventLayoutChanged, TabID: id})
	return nil
}

// SetActivePane focuses pane id.
func (s *Store) SetActivePane(id layout.PaneID) error {
	s.mu.Lock()
	next, err := layout.WithActivePane(s.layout, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.layout = next
	s.mustBeConsistent()
	s.mu.Unlock()
	s.emit(Event{Type: EventLayoutChanged})
	return nil
}

// ReorderTabs replaces the tab order of a pane with order, which must be a
// permutation of the pane's tabs.
func (s *Store) ReorderTabs(paneID layout.PaneID, order []layout.TabID) error {
	s.mu.Lock()
	next, err := layout.Reorder(s.layout, paneID, order)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.layout = next
	s.mustBeConsistent()
	s.mu.Unlock()
	s.emit(Event{Type: EventLayoutChanged})
	return nil
}

// CloseTab removes a tab and forgets its content, including unsaved edits.
func (s *Store) CloseTab(id layout.TabID) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("editor: close %q: %w", id, apperr.ErrUnknownTab)
	}
	s.dropLocked(id)
	s.mustBeConsistent()
	s.mu.Unlock()
	s.emit(Event{Type: EventTabClosed, TabID: id, Path: t.path})
	s.emit(Event{Type: EventLayoutChanged})
	return nil
}

// UpdateContent replaces a tab's content and marks it dirty.
func (s *Store) UpdateContent(id layout.TabID, content string) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("editor: update %q: %w", id, apperr.ErrUnknownTab)
	}
	wasDirty := t.dirty
	t.content, t.dirty = content, true
	t.rev++
	path := t.path
	s.mu.Unlock()
	if !wasDirty {
		s.emit(Event{Type: EventTabDirty, TabID: id, Path: path})
	}
	return nil
}

// Save writes a tab's content back to its note. On failure the content and
// the dirty flag are left as they were.
func (s *Store) Save(ctx context.Context, id layout.TabID) error {
	s.mu.Lock()
	t, ok := s.tabs[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("editor: save %q: %w", id, apperr.ErrUnknownTab)
	}
	if !t.loaded && !t.dirty {
		// Nothing was read or typed; writing would truncate the note.
		s.mu.Unlock()
		return nil
	}
	t.saves++
	path, content, rev, src := t.path, t.content, t.rev, s.src
	s.mu.Unlock()

	err := src.WriteContent(ctx, path, content)

	s.mu.Lock()
	if s.tabs[t.id] != t {
		s.mu.Unlock()
		s.logger.Debug("editor: save finished for closed tab", slog.String("path", path))
		return apperr.Classify(err)
	}
	t.saves--
	id = t.id
	if err != nil {
		tabErr := &apperr.TabError{TabID: string(id), Op: "write", Err: apperr.Classify(err)}
		s.lastErr = tabErr
		s.mu.Unlock()
		s.logger.Warn("editor: write failed", slog.String("path", path), slog.String("error", err.Error()))
		s.emit(Event{Type: EventTabError, TabID: id, Path: path, Error: tabErr.Error()})
		return tabErr
	}
	switch {
	case t.path != path:
		// Renamed while the write was in flight: the new path lacks the content.
		s.logger.Warn("editor: tab renamed during save, keeping it dirty",
			slog.String("written", path), slog.String("path", t.path))
	case t.rev == rev:
		t.dirty = false
	}
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(Event{Type: EventTabSaved, TabID: id, Path: path})
	return nil
}

// SaveAll saves every dirty tab concurrently and returns the first failure.
func (s *Store) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	var dirty []layout.TabID
	for id, t := range s.tabs {
		if t.dirty {
			dirty = append(dirty, id)
		}
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, id := range dirty {
		g.Go(func() error {
			if err := s.Save(ctx, id); err != nil && !errors.Is(err, apperr.ErrUnknownTab) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// RenamePath follows a rename or move of oldPath to newPath that already
// happened on disk. Tabs for oldPath and for anything below it get new ids
// and paths; title, when non-empty, replaces the title of the renamed note
// itself. It returns the number of tabs rewritten.
func (s *Store) RenamePath(oldPath, newPath, title string) int {
	base := layout.NormalizePath(newPath)

	s.mu.Lock()
	moves := make(map[layout.TabID]layout.TabID)
	for id, t := range s.tabs {
		if suffix, ok := layout.MatchPath(t.path, oldPath); ok {
			moves[id] = layout.IDForPath(base + suffix)
		}
	}
	if len(moves) == 0 {
		s.mu.Unlock()
		return 0
	}

	// A tab already sitting at a destination is stale: the rename succeeded,
	// so whatever it showed is gone.
	var evicted []Event
	for _, to := range moves {
		if victim, ok := s.tabs[to]; ok {
			if _, moving := moves[to]; !moving {
				s.dropLocked(to)
				evicted = append(evicted, Event{Type: EventTabClosed, TabID: to, Path: victim.path})
			}
		}
	}

	moved := make([]*tab, 0, len(moves))
	for from := range moves {
		moved = append(moved, s.tabs[from])
		delete(s.tabs, from)
	}
	for _, t := range moved {
		suffix, _ := layout.MatchPath(t.path, oldPath)
		t.id = moves[t.id]
		t.path = layout.NormalizePath(base + suffix)
		switch {
		case suffix != "":
		case title != "":
			t.title = title
		default:
			t.title = layout.TitleForPath(t.path)
		}
		s.tabs[t.id] = t
	}
	s.layout = layout.RenameTabs(s.layout, moves)
	s.mustBeConsistent()
	s.mu.Unlock()

	s.logger.Debug("editor: renamed tabs",
		slog.String("from", oldPath),
		slog.String("to", newPath),
		slog.Int("tabs", len(moves)))
	for _, ev := range evicted {
		s.emit(ev)
	}
	s.emit(Event{Type: EventLayoutChanged, Path: newPath})
	return len(moves)
}

// RemovePath closes every tab showing path or anything below it, after the
// entry was deleted or moved out of the vault. It returns the number of tabs
// closed.
func (s *Store) RemovePath(path string) int {
	s.mu.Lock()
	var closed []Event
	for id, t := range s.tabs {
		if _, ok := layout.MatchPath(t.path, path); ok {
			closed = append(closed, Event{Type: EventTabClosed, TabID: id, Path: t.path})
		}
	}
	for _, ev := range closed {
		s.dropLocked(ev.TabID)
	}
	s.mustBeConsistent()
	s.mu.Unlock()

	if len(closed) == 0 {
		return 0
	}
	s.logger.Debug("editor: removed tabs", slog.String("path", path), slog.Int("tabs", len(closed)))
	for _, ev := range closed {
		s.emit(ev)
	}
	s.emit(Event{Type: EventLayoutChanged, Path: path})
	return len(closed)
}

// Reset discards every tab and the layout, as when another vault is opened.
// A non-nil src replaces the content source. Outstanding reads and writes
// finish without touching the new workspace.
func (s *Store) Reset(src ContentSource) {
	s.mu.Lock()
	if src != nil {
		s.src = src
	}
	s.layout = layout.Initial()
	s.tabs = make(map[layout.TabID]*tab)
	s.lastErr = nil
	s.mu.Unlock()
	s.emit(Event{Type: EventReset})
}

// Layout returns a copy of the current layout.
func (s *Store) Layout() layout.Layout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout.Clone()
}

// Tab returns a snapshot of tab id.
func (s *Store) Tab(id layout.TabID) (TabView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tabs[id]
	if !ok {
		return TabView{}, false
	}
	return t.view(), true
}

// Tabs returns snapshots of every tab in pane order.
func (s *Store) Tabs() []TabView {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.layout.TabIDs()
	out := make([]TabView, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.tabs[id].view())
	}
	return out
}

// ActiveTab returns the tab shown in the active pane, if any.
func (s *Store) ActiveTab() (TabView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.layout.Active()
	if id == "" {
		return TabView{}, false
	}
	return s.tabs[id].view(), true
}

// LastError returns the most recent read or write failure, or nil once a
// later open or save succeeded.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) dropLocked(id layout.TabID) {
	s.layout = layout.RemoveTab(s.layout, id)
	delete(s.tabs, id)
}

// mustBeConsistent panics when the layout and the tab registry disagree.
// Either indicates a bug in the store, never a runtime condition.
func (s *Store) mustBeConsistent() {
	if err := layout.Validate(s.layout); err != nil {
		panic(fmt.Sprintf("editor: invalid layout: %v", err))
	}
	ids := s.layout.TabIDs()
	if len(ids) != len(s.tabs) || slices.ContainsFunc(ids, func(id layout.TabID) bool { return s.tabs[id] == nil }) {
		panic(fmt.Sprintf("editor: layout tabs %v do not match %d registered tabs", ids, len(s.tabs)))
	}
}

func (s *Store) emit(ev Event) {
	s.notifier.Notify(ev)
}
