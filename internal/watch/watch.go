// Package watch reports source changes per asset category. It watches the
// whole source tree with fsnotify, adding directories as they appear, and
// falls back to polling when native notifications are unavailable.
package watch

import (
	"errors"
	"fmt"
	"hash"
	"hash/fnv"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"tools.zach/dev/assetpipe/internal/paths"
)

// ///////////////////////////////////////////////
// Rules
// ///////////////////////////////////////////////

// Rule maps watch globs to the category they re-trigger. Patterns are
// slash-separated and relative to the project root.
type Rule struct {
	Category paths.Category
	Patterns []string
}

// DefaultRules returns one rule per category from the path table.
func DefaultRules() []Rule {
	rules := make([]Rule, 0, len(paths.Categories))
	for _, c := range paths.Categories {
		e, _ := paths.Lookup(c)
		rules = append(rules, Rule{Category: c, Patterns: e.Watch})
	}
	return rules
}

// Match reports whether the project-relative path rel matches any of the
// rule's patterns.
func (r Rule) Match(rel string) bool {
	for _, p := range r.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// ///////////////////////////////////////////////
// Watcher
// ///////////////////////////////////////////////

// Watcher signals per category when matching source files change.
type Watcher struct {
	// root is the project directory; patterns are matched against paths
	// relative to it.
	root string
	// dir is the watched source tree.
	dir   string
	rules []Rule
	// events holds one channel per category, buffered to 1 so bursts of
	// changes coalesce into a single pending signal.
	events map[paths.Category]chan struct{}
	// done is closed by [Watcher.Close] to signal goroutines to exit.
	done chan struct{}

	// mu guards fsw, which is nil when polling.
	mu  sync.Mutex
	fsw *fsnotify.Watcher

	once         sync.Once
	polling      atomic.Bool
	forcePolling bool
	pollInterval time.Duration
	// snapshot is only touched by the polling goroutine after start.
	snapshot map[paths.Category]uint64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPolling skips fsnotify and polls from the start.
func WithPolling() Option {
	return func(w *Watcher) { w.forcePolling = true }
}

// New watches root's source directory. Every rule pattern must be a valid
// glob. A missing source directory is not an error; the watcher polls
// until it exists.
func New(root string, rules []Rule, pollInterval time.Duration, opts ...Option) (*Watcher, error) {
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", pollInterval)
	}
	for _, r := range rules {
		for _, p := range r.Patterns {
			if !doublestar.ValidatePattern(p) {
				return nil, fmt.Errorf("invalid watch pattern %q for %s", p, r.Category)
			}
		}
	}

	w := &Watcher{
		root:         root,
		dir:          paths.Project{Root: root}.Src(),
		rules:        rules,
		events:       make(map[paths.Category]chan struct{}, len(rules)),
		done:         make(chan struct{}),
		pollInterval: pollInterval,
	}
	for _, r := range rules {
		if _, ok := w.events[r.Category]; !ok {
			w.events[r.Category] = make(chan struct{}, 1)
		}
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.forcePolling {
		w.startPolling()
		return w, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Info("fsnotify unavailable, falling back to polling", "error", err)
		w.startPolling()
		return w, nil
	}
	if err := addTree(fsw, w.dir); err != nil {
		slog.Info("cannot watch source tree, falling back to polling", "path", w.dir, "error", err)
		fsw.Close()
		w.startPolling()
		return w, nil
	}

	w.fsw = fsw
	go w.watch(fsw)
	return w, nil
}

// Events returns the channel signalled when a file of category c changes.
// It returns nil for a category no rule covers.
func (w *Watcher) Events(c paths.Category) <-chan struct{} {
	ch, ok := w.events[c]
	if !ok {
		return nil
	}
	return ch
}

// Polling reports whether the watcher is using polling instead of fsnotify.
func (w *Watcher) Polling() bool {
	return w.polling.Load()
}

// Close stops the watcher and releases resources.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.fsw != nil {
			if closeErr := w.fsw.Close(); closeErr != nil {
				err = fmt.Errorf("closing fsnotify watcher: %w", closeErr)
			}
			w.fsw = nil
		}
	})
	return err
}

// addTree adds dir and every directory below it.
func addTree(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return fsw.Add(p)
	})
}

// watch forwards fsnotify events to the matching categories. If fsnotify
// reports an error it is closed and the watcher switches to polling.
func (w *Watcher) watch(fsw *fsnotify.Watcher) {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(fsw, event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Info("fsnotify error, switching to polling", "error", err)
			w.mu.Lock()
			if w.fsw == nil {
				// Closed concurrently.
				w.mu.Unlock()
				return
			}
			w.fsw.Close()
			w.fsw = nil
			w.mu.Unlock()
			w.startPolling()
			return
		}
	}
}

func (w *Watcher) handle(fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// Files may land in the new directory before it is watched, so
			// treat everything already inside it as changed.
			if err := addTree(fsw, event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("cannot watch new directory", "path", event.Name, "error", err)
			}
			_ = filepath.WalkDir(event.Name, func(p string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() {
					w.dispatch(p)
				}
				return nil
			})
			return
		}
	}
	w.dispatch(event.Name)
}

// dispatch signals every category whose rule matches the absolute path p.
func (w *Watcher) dispatch(p string) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	for _, r := range w.rules {
		if r.Match(rel) {
			slog.Debug("source changed", "file", rel, "category", string(r.Category))
			w.notify(r.Category)
		}
	}
}

// notify sends a single signal to the category's channel. If a signal is
// already pending the call is a no-op.
func (w *Watcher) notify(c paths.Category) {
	select {
	case w.events[c] <- struct{}{}:
	default:
	}
}

// ///////////////////////////////////////////////
// Polling
// ///////////////////////////////////////////////

// startPolling records the current state synchronously, so changes made
// after it returns are detected, then polls in the background.
func (w *Watcher) startPolling() {
	w.polling.Store(true)
	w.snapshot = w.scan()
	go w.poll()
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			next := w.scan()
			for c, sum := range next {
				if w.snapshot[c] != sum {
					w.notify(c)
				}
			}
			w.snapshot = next
		}
	}
}

// scan hashes the name, size and modification time of every matching file
// per category. Any added, removed or modified file changes its
// category's sum.
func (w *Watcher) scan() map[paths.Category]uint64 {
	hashes := make(map[paths.Category]hash.Hash64, len(w.events))
	for c := range w.events {
		hashes[c] = fnv.New64a()
	}

	_ = filepath.WalkDir(w.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		info, err := d.Info()
		if err != nil {
			return nil
		}
		line := []byte(rel + "\x00" + strconv.FormatInt(info.Size(), 10) + "\x00" +
			strconv.FormatInt(info.ModTime().UnixNano(), 10) + "\n")
		for _, r := range w.rules {
			if r.Match(rel) {
				_, _ = hashes[r.Category].Write(line)
			}
		}
		return nil
	})

	sums := make(map[paths.Category]uint64, len(hashes))
	for c, h := range hashes {
		sums[c] = h.Sum64()
	}
	return sums
}
