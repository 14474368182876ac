package watcher

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jctechlabs/jarvis/event"
	"github.com/jctechlabs/jarvis/threadpool"
	"go.uber.org/zap"
)

// DefaultInterval between polling scans.
const DefaultInterval = 100 * time.Millisecond

// Watcher polls a directory tree and emits FileAdded, FileModified and
// FileRemoved events. The initial scan emits FileAdded for every existing
// file; the categorizer's hash check absorbs false modification positives.
type Watcher struct {
	root     string
	interval time.Duration
	events   *event.Queue
	log      *zap.SugaredLogger

	running atomic.Bool
	stop    atomic.Bool
	task    *threadpool.Handle
}

func New(root string, interval time.Duration, events *event.Queue, log *zap.SugaredLogger) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{
		root:     root,
		interval: interval,
		events:   events,
		log:      log,
	}
}

// Start submits the watch loop to the pool as a long-lived task.
func (w *Watcher) Start(pool *threadpool.Pool) {
	if !w.running.CompareAndSwap(false, true) {
		return
	}
	w.stop.Store(false)
	w.task = pool.Submit(w.watch)
}

// Stop requests the watch loop to exit and waits for the current scan to
// finish.
func (w *Watcher) Stop() {
	if !w.running.Load() {
		return
	}
	w.stop.Store(true)
	if w.task != nil {
		w.task.Take()
	}
	w.running.Store(false)
	w.log.Infow("file watcher stopped")
}

// validFile skips directories and files whose leaf name begins with a dot
// (editors drop temp files like that in the watched folder).
func validFile(d fs.DirEntry) bool {
	if !d.Type().IsRegular() {
		return false
	}
	name := d.Name()
	return !(len(name) > 0 && name[0] == '.')
}

func (w *Watcher) watch() bool {
	known := make(map[string]time.Time)

	// initial scan: fire FileAdded for files already present
	w.scanTree(func(path string, mtime time.Time) {
		known[path] = mtime
		w.events.Push(event.NewFileAdded(path))
	})

	for !w.stop.Load() {
		time.Sleep(w.interval)
		if w.stop.Load() {
			break
		}

		if _, err := os.Stat(w.root); err != nil {
			w.log.Infow("watched folder no longer exists, requesting shutdown", "root", w.root)
			w.events.Push(event.NewEngineShutdown())
			return true
		}

		seen := make(map[string]struct{})
		w.scanTree(func(path string, mtime time.Time) {
			seen[path] = struct{}{}
			previous, ok := known[path]
			if !ok {
				w.events.Push(event.NewFileAdded(path))
				known[path] = mtime
			} else if !previous.Equal(mtime) {
				w.events.Push(event.NewFileModified(path))
				known[path] = mtime
			}
		})

		for path := range known {
			if _, ok := seen[path]; !ok {
				w.events.Push(event.NewFileRemoved(path))
				delete(known, path)
			}
		}
	}
	return true
}

// scanTree enumerates regular files under the root. Transient errors on
// single entries are logged and skipped; the scan continues.
func (w *Watcher) scanTree(visit func(path string, mtime time.Time)) {
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warnw("scan error, skipping entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			// don't descend into dot-directories either
			name := d.Name()
			if path != w.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !validFile(d) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			w.log.Warnw("stat error, skipping entry", "path", path, "error", err)
			return nil
		}
		visit(path, info.ModTime())
		return nil
	})
	if err != nil {
		w.log.Warnw("scan aborted", "root", w.root, "error", err)
	}
}
