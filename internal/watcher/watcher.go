package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/blackwell-systems/tapline/internal/cellar"
	"github.com/blackwell-systems/tapline/internal/logging"
)

// defaultDebounce is how long the watcher waits after the last event
// before rescanning. Installs emit many events in a burst; one scan at
// the end covers them all.
const defaultDebounce = 500 * time.Millisecond

// Watcher mirrors cellar changes into the index.
type Watcher struct {
	cellar   *cellar.Cellar
	debounce time.Duration
	log      zerolog.Logger

	fsw      *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a watcher over an opened cellar. A debounce of 0 uses the
// default.
func New(c *cellar.Cellar, debounce time.Duration) (*Watcher, error) {
	if c == nil {
		return nil, fmt.Errorf("cellar cannot be nil")
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		cellar:   c,
		debounce: debounce,
		log:      logging.Logger("watcher"),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start scans once to catch changes made while not watching, then begins
// the event loop.
func (w *Watcher) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	w.fsw = fsw

	if err := w.watchTree(); err != nil {
		fsw.Close()
		return err
	}
	if _, err := w.cellar.Scan(); err != nil {
		w.log.Warn().Err(err).Msg("initial scan failed")
	}

	w.wg.Add(1)
	go w.run()
	return nil
}

// Stop ends the event loop and releases the fs watcher. Stopping a
// watcher that never started is a no-op.
func (w *Watcher) Stop() error {
	if w.fsw == nil {
		return nil
	}
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		err = w.fsw.Close()
	})
	return err
}

// watchTree registers the cellar root plus package and keg directories.
// fsnotify watches are not recursive; receipt writes happen two levels
// below the root, so both levels need their own watch.
func (w *Watcher) watchTree() error {
	root := w.cellar.CellarDir()
	if err := w.fsw.Add(root); err != nil {
		return fmt.Errorf("watching %s: %w", root, err)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || path == root {
			return nil
		}
		if w.depth(path) > 2 {
			return fs.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.log.Warn().Err(err).Str("dir", path).Msg("could not watch directory")
		}
		return nil
	})
}

// depth reports how far below the cellar root a path is: 1 for package
// dirs, 2 for keg dirs.
func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.cellar.CellarDir(), path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

func (w *Watcher) run() {
	defer w.wg.Done()

	timer := time.NewTimer(w.debounce)
	stopTimer(timer)

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				w.maybeWatch(ev.Name)
			}
			w.log.Debug().Str("event", ev.Op.String()).Str("path", ev.Name).Msg("cellar changed")
			stopTimer(timer)
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("fs watcher error")

		case <-timer.C:
			if _, err := w.cellar.Scan(); err != nil {
				w.log.Warn().Err(err).Msg("rescan failed")
			}

		case <-w.stopCh:
			return
		}
	}
}

// maybeWatch adds a watch for newly created package and keg directories.
func (w *Watcher) maybeWatch(path string) {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return
	}
	if d := w.depth(path); d < 1 || d > 2 {
		return
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn().Err(err).Str("dir", path).Msg("could not watch new directory")
	}
}

// stopTimer drains a fired-but-unread timer so Reset starts clean.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
