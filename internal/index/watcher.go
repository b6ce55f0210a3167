package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tabula/internal/storage"
)

// Event kinds reported to an EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
)

// EventCallback is called after a watcher-driven index change. path is
// relative to the vault root with forward slashes; for KindDeleted it may
// name a folder, meaning everything below it is gone too.
type EventCallback func(kind string, path string)

const reconcileDelay = 200 * time.Millisecond

type watcher struct {
	w      *fsnotify.Watcher
	db     NoteIndex
	store  storage.Provider
	root   string
	logger *slog.Logger
	cb     EventCallback
	dirs   map[string]struct{} // watched folders, absolute
}

// Watch starts an fsnotify watcher on the vault root and processes file
// change events until ctx is cancelled. It calls cb (if non-nil) after
// each index mutation.
//
// New folders are added to the watch list as they appear. A removed or
// renamed-away folder is reported once as deleted. Rename events trigger a
// debounced reconciliation pass against the files on disk.
func Watch(ctx context.Context, db NoteIndex, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if cb == nil {
		cb = func(string, string) {}
	}
	wt := &watcher{w: fw, db: db, store: store, root: vaultRoot, logger: logger, cb: cb, dirs: map[string]struct{}{}}
	if err := wt.addDirs(vaultRoot); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			wt.reconcile()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if wt.handle(ev) {
				scheduleReconcile()
			}

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// handle applies one fsnotify event and reports whether a reconciliation
// pass should follow.
func (wt *watcher) handle(ev fsnotify.Event) bool {
	abs := ev.Name
	if strings.HasPrefix(filepath.Base(abs), ".") {
		return false
	}
	rel, err := filepath.Rel(wt.root, abs)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)

	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			if addErr := wt.addDirs(abs); addErr != nil {
				wt.logger.Warn("watcher: add new dir failed", slog.String("path", abs), slog.String("error", addErr.Error()))
			} else {
				wt.logger.Debug("watcher: watching new dir", slog.String("path", abs))
			}
			wt.indexDir(abs)
			return false
		}
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if _, isDir := wt.dirs[abs]; isDir {
			wt.forgetDirs(abs)
			n, delErr := wt.db.DeletePrefix(rel)
			if delErr != nil {
				wt.logger.Warn("watcher: delete folder failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			}
			wt.logger.Debug("watcher: deleted folder", slog.String("path", rel), slog.Int("notes", n))
			wt.cb(KindDeleted, rel)
			return ev.Op&fsnotify.Rename != 0
		}
	}

	if !strings.HasSuffix(abs, ".md") {
		return false
	}

	switch {
	case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
		data, readErr := wt.store.Read(rel)
		if readErr != nil {
			wt.logger.Warn("watcher: read failed", slog.String("path", rel), slog.String("error", readErr.Error()))
			return false
		}
		if idxErr := IndexNote(wt.db, rel, data); idxErr != nil {
			wt.logger.Warn("watcher: index failed", slog.String("path", rel), slog.String("error", idxErr.Error()))
			return false
		}
		kind := KindUpdated
		if ev.Op&fsnotify.Create != 0 {
			kind = KindCreated
		}
		wt.logger.Debug("watcher: indexed", slog.String("path", rel), slog.String("op", kind))
		wt.cb(kind, rel)

	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// fsnotify fires Rename on the old path only; the new path arrives
		// as a Create if it stays inside a watched folder.
		if delErr := wt.db.DeleteNote(rel); delErr != nil {
			wt.logger.Warn("watcher: delete failed", slog.String("path", rel), slog.String("error", delErr.Error()))
			return false
		}
		wt.logger.Debug("watcher: deleted", slog.String("path", rel))
		wt.cb(KindDeleted, rel)
		return ev.Op&fsnotify.Rename != 0
	}
	return false
}

// reconcile removes index entries without a file on disk and indexes files
// that are missing or changed.
func (wt *watcher) reconcile() {
	checksums, err := wt.db.AllChecksums()
	if err != nil {
		wt.logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := wt.store.List("")
	if err != nil {
		wt.logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Path] = m.Checksum
	}
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if delErr := wt.db.DeleteNote(p); delErr == nil {
				wt.logger.Debug("reconcile: removed stale", slog.String("path", p))
				wt.cb(KindDeleted, p)
			}
		}
	}
	for _, m := range metas {
		if checksums[m.Path] == m.Checksum {
			continue
		}
		data, readErr := wt.store.Read(m.Path)
		if readErr != nil {
			continue
		}
		if idxErr := indexFile(wt.db, m.Path, data, m.UpdatedAt); idxErr == nil {
			wt.logger.Debug("reconcile: indexed", slog.String("path", m.Path))
			wt.cb(KindCreated, m.Path)
		}
	}
}

// indexDir indexes the .md files already present in a new folder.
func (wt *watcher) indexDir(dir string) {
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		rel, relErr := filepath.Rel(wt.root, p)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		data, readErr := wt.store.Read(rel)
		if readErr != nil {
			return nil
		}
		if idxErr := IndexNote(wt.db, rel, data); idxErr == nil {
			wt.logger.Debug("watcher: indexed from new dir", slog.String("path", rel))
			wt.cb(KindCreated, rel)
		}
		return nil
	})
}

// addDirs adds root and all its subdirectories to the watcher.
func (wt *watcher) addDirs(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != wt.root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := wt.w.Add(p); err != nil {
			return err
		}
		wt.dirs[p] = struct{}{}
		return nil
	})
}

// forgetDirs drops dir and its subfolders from the watched set.
func (wt *watcher) forgetDirs(dir string) {
	prefix := dir + string(os.PathSeparator)
	for d := range wt.dirs {
		if d == dir || strings.HasPrefix(d, prefix) {
			delete(wt.dirs, d)
			_ = wt.w.Remove(d)
		}
	}
}
