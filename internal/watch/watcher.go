// Package watch realizes the filesystem-watcher event contract: it
// observes create/modify/rename/delete activity under a set of watched
// roots with fsnotify and debounces bursts of events per path before
// driving the builder.Maintenance interface.
//
// A watcher never trusts the semantics of a single fsnotify event in
// isolation — editors routinely save a file via a rename-into-place, and
// a folder rename arrives as an unpaired event on each side. Instead,
// once a path's debounce window elapses, the watcher re-observes the
// path on disk and reconciles the index to match: present and a file
// becomes Update, absent becomes Delete, present and a directory gets
// (re)watched. This makes the watcher idempotent under event re-delivery
// and insensitive to the exact Create/Write/Rename op it was told.
package watch

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/sourcewatch/codeindex/internal/builder"
)

// Watcher drives a builder.Maintenance implementation from filesystem
// change notifications under one or more watched roots.
type Watcher struct {
	roots       []string
	filter      *builder.FileFilter
	maintenance builder.Maintenance
	debounce    time.Duration

	fsWatcher *fsnotify.Watcher

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	dirsMu sync.Mutex
	dirs   map[string]struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs a Watcher over roots, using filter to decide which
// files are index-eligible and debounce to coalesce bursts of events on
// the same path into a single reconciliation.
func New(roots []string, filter *builder.FileFilter, maintenance builder.Maintenance, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		roots:       roots,
		filter:      filter,
		maintenance: maintenance,
		debounce:    debounce,
		fsWatcher:   fsWatcher,
		timers:      make(map[string]*time.Timer),
		dirs:        make(map[string]struct{}),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start adds every watched root (and its eligible subdirectories) to the
// underlying fsnotify watcher and begins processing events in the
// background. It returns once the initial directory tree has been
// registered.
func (w *Watcher) Start() error {
	for _, root := range w.roots {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop halts event processing and releases the underlying fsnotify
// watcher. It is safe to call once; further calls are no-ops beyond the
// first.
func (w *Watcher) Stop() error {
	select {
	case <-w.stopCh:
		return nil
	default:
		close(w.stopCh)
	}

	err := w.fsWatcher.Close()
	w.wg.Wait()

	w.timersMu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.timersMu.Unlock()

	return err
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir {
			rel, relErr := filepath.Rel(dir, path)
			if relErr == nil && w.filter.ShouldExclude(rel) {
				return filepath.SkipDir
			}
		}
		if err := w.fsWatcher.Add(path); err != nil {
			slog.Warn("watch: failed to watch directory", "path", path, "error", err)
			return nil
		}
		w.dirsMu.Lock()
		w.dirs[path] = struct{}{}
		w.dirsMu.Unlock()
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watch: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	w.dirsMu.Lock()
	_, wasTrackedDir := w.dirs[event.Name]
	w.dirsMu.Unlock()

	if wasTrackedDir && (event.Op&(fsnotify.Remove|fsnotify.Rename) != 0) {
		w.dirsMu.Lock()
		delete(w.dirs, event.Name)
		w.dirsMu.Unlock()
		w.scheduleDirRemoval(event.Name)
		return
	}

	w.scheduleReconcile(event.Name)
}

// scheduleReconcile (re)starts a debounce timer for path so a burst of
// events collapses into a single reconciliation.
func (w *Watcher) scheduleReconcile(path string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, path)
		w.timersMu.Unlock()
		w.reconcile(path)
	})
}

// reconcile re-observes path on disk and drives the builder.Maintenance
// call that makes the index match: present-and-file becomes Update,
// absent becomes Delete, present-and-directory gets (re)watched.
func (w *Watcher) reconcile(path string) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if _, derr := w.maintenance.Delete(path); derr != nil {
				slog.Error("watch: delete failed", "path", path, "error", derr)
				return
			}
			w.commit(path)
			return
		}
		slog.Error("watch: stat failed", "path", path, "error", err)
		return
	}

	if info.IsDir() {
		if err := w.addRecursive(path); err != nil {
			slog.Error("watch: failed to watch new directory", "path", path, "error", err)
		}
		return
	}

	root := w.rootFor(path)
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	if w.filter.ShouldExclude(rel) || info.Size() > w.filter.MaxFileSize() {
		return
	}

	fi := builder.FileInfo{Path: path, LastWriteTimeUtc: info.ModTime().UTC()}
	if _, err := w.maintenance.Update(fi, nil); err != nil {
		slog.Error("watch: update failed", "path", path, "error", err)
		return
	}
	w.commit(path)
}

// commit makes the change just reconciled for path visible to readers.
func (w *Watcher) commit(path string) {
	if err := w.maintenance.Commit(); err != nil {
		slog.Error("watch: commit failed", "path", path, "error", err)
	}
}

// scheduleDirRemoval debounces a directory-level removal: every indexed
// file under prefix is deleted. fsnotify cannot pair a folder's rename
// source with its destination, so this also fires for a renamed-away
// directory; the destination directory, once observed via a Create
// event on the new path, is picked up fresh by addRecursive.
func (w *Watcher) scheduleDirRemoval(prefix string) {
	w.timersMu.Lock()
	defer w.timersMu.Unlock()

	if t, ok := w.timers[prefix]; ok {
		t.Stop()
	}
	w.timers[prefix] = time.AfterFunc(w.debounce, func() {
		w.timersMu.Lock()
		delete(w.timers, prefix)
		w.timersMu.Unlock()
		w.removeUnderPrefix(prefix)
	})
}

func (w *Watcher) removeUnderPrefix(prefix string) {
	indexed, err := w.maintenance.GetAllIndexed()
	if err != nil {
		slog.Error("watch: get_all_indexed failed", "prefix", prefix, "error", err)
		return
	}
	withSep := prefix + string(filepath.Separator)
	removed := 0
	for _, f := range indexed {
		if f.Path == prefix || len(f.Path) > len(withSep) && f.Path[:len(withSep)] == withSep {
			if _, err := w.maintenance.Delete(f.Path); err != nil {
				slog.Error("watch: delete under removed directory failed", "path", f.Path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		w.commit(prefix)
	}
}

func (w *Watcher) rootFor(path string) string {
	for _, root := range w.roots {
		if root == path {
			return root
		}
		withSep := root + string(filepath.Separator)
		if len(path) > len(withSep) && path[:len(withSep)] == withSep {
			return root
		}
	}
	return ""
}
