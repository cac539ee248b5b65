// Tests for the category watcher: rule matching, event delivery through
// fsnotify, directories created after start, and the polling fallback.
package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/assetpipe/internal/paths"
)

// ///////////////////////////////////////////////
// Rule Tests
// ///////////////////////////////////////////////

func TestDefaultRulesMatch(t *testing.T) {
	tests := []struct {
		rel  string
		want []paths.Category
	}{
		{"src/index.html", []paths.Category{paths.HTML}},
		{"src/pages/about.html", nil},
		{"src/scss/main.scss", []paths.Category{paths.Styles}},
		{"src/scss/base/_reset.scss", []paths.Category{paths.Styles}},
		{"src/js/main.js", []paths.Category{paths.Scripts}},
		{"src/js/lib/util.js", []paths.Category{paths.Scripts}},
		{"src/img/photo.jpg", []paths.Category{paths.Images, paths.WebP}},
		{"src/img/ui/logo.png", []paths.Category{paths.Images, paths.WebP}},
		{"src/img/logo.svg", []paths.Category{paths.Images}},
		{"src/img/anim.gif", []paths.Category{paths.Images}},
		{"src/sprites/icons/arrow.svg", []paths.Category{paths.Sprites}},
		{"src/fonts/body.woff2", []paths.Category{paths.Assets}},
		{"src/icons/favicon.ico", []paths.Category{paths.Assets}},
		{"src/notes.txt", nil},
		{"dist/index.html", nil},
	}

	rules := DefaultRules()
	if len(rules) != len(paths.Categories) {
		t.Fatalf("DefaultRules() has %d rules, want %d", len(rules), len(paths.Categories))
	}

	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			var got []paths.Category
			for _, r := range rules {
				if r.Match(tt.rel) {
					got = append(got, r.Category)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("matched %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("matched %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	root := t.TempDir()
	if _, err := New(root, []Rule{{Category: paths.HTML, Patterns: []string{"src/[.html"}}}, time.Second); err == nil {
		t.Error("expected error for invalid pattern")
	}
	if _, err := New(root, DefaultRules(), 0); err == nil {
		t.Error("expected error for zero poll interval")
	}
}

// ///////////////////////////////////////////////
// Event Delivery Tests
// ///////////////////////////////////////////////

func newProject(t *testing.T, dirs ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func expectEvent(t *testing.T, w *Watcher, c paths.Category) {
	t.Helper()
	select {
	case <-w.Events(c):
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s event", c)
	}
}

func expectQuiet(t *testing.T, w *Watcher, c paths.Category, d time.Duration) {
	t.Helper()
	select {
	case <-w.Events(c):
		t.Errorf("unexpected %s event", c)
	case <-time.After(d):
	}
}

func TestWatcher_Events(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	tests := []struct {
		name string
		opts []Option
	}{
		{name: "fsnotify"},
		{name: "polling", opts: []Option{WithPolling()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := newProject(t, "src/scss", "src/js")
			w, err := New(root, DefaultRules(), 20*time.Millisecond, tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer w.Close()

			if len(tt.opts) > 0 && !w.Polling() {
				t.Fatal("WithPolling did not force polling")
			}

			writeFile(t, root, "src/scss/main.scss", ".a{}")
			expectEvent(t, w, paths.Styles)
			expectQuiet(t, w, paths.Scripts, 100*time.Millisecond)

			writeFile(t, root, "src/js/main.js", "console.log(1)")
			expectEvent(t, w, paths.Scripts)

			if err := os.Remove(filepath.Join(root, "src", "scss", "main.scss")); err != nil {
				t.Fatal(err)
			}
			expectEvent(t, w, paths.Styles)
		})
	}
}

func TestWatcher_NewDirectory(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	root := newProject(t, "src")
	w, err := New(root, DefaultRules(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	writeFile(t, root, "src/img/deep/photo.png", "png")
	expectEvent(t, w, paths.Images)
	expectEvent(t, w, paths.WebP)

	// Files added later in the new directory are seen as well.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, root, "src/img/deep/more.gif", "gif")
	expectEvent(t, w, paths.Images)
}

func TestWatcher_Coalesces(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping watcher test in short mode")
	}

	root := newProject(t, "src")
	w, err := New(root, DefaultRules(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	for i := range 10 {
		writeFile(t, root, "src/index.html", "<p>"+string(rune('a'+i))+"</p>")
	}
	expectEvent(t, w, paths.HTML)
	time.Sleep(100 * time.Millisecond)

	// At most one further signal can be pending after a burst.
	select {
	case <-w.Events(paths.HTML):
	default:
	}
	expectQuiet(t, w, paths.HTML, 100*time.Millisecond)
}

func TestWatcher_MissingSourceDir(t *testing.T) {
	root := t.TempDir()
	w, err := New(root, DefaultRules(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if !w.Polling() {
		t.Error("expected polling fallback without a source directory")
	}
	if testing.Short() {
		return
	}
	writeFile(t, root, "src/index.html", "<p>x</p>")
	expectEvent(t, w, paths.HTML)
}

func TestWatcher_Close(t *testing.T) {
	w, err := New(newProject(t, "src"), DefaultRules(), time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if w.Events("unknown") != nil {
		t.Error("Events for an unknown category should be nil")
	}
}
