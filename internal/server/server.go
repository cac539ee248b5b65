// Package server runs the development server: it serves the output
// directory over HTTP with live reload, and reruns each category's task when
// its sources change.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tools.zach/dev/assetpipe/internal/livereload"
	"tools.zach/dev/assetpipe/internal/task"
	"tools.zach/dev/assetpipe/internal/watch"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server watches sources and serves dist/. Create one with New.
type Server struct {
	env   task.Env
	tasks []*task.Task
	hub   *livereload.Hub

	debounce     time.Duration
	pollInterval time.Duration
	watchOpts    []watch.Option
}

// New returns a server that reruns tasks in env. The environment is used
// as given, plus the live-reload hub when enabled in the configuration.
func New(env task.Env, tasks []*task.Task, opts ...watch.Option) *Server {
	cfg := env.Config
	s := &Server{
		env:          env,
		tasks:        tasks,
		hub:          livereload.NewHub(),
		debounce:     time.Duration(cfg.Watch.DebounceMS) * time.Millisecond,
		pollInterval: time.Duration(cfg.Watch.PollIntervalMS) * time.Millisecond,
		watchOpts:    opts,
	}
	if cfg.Server.LiveReload {
		s.env = env.WithReload(s.hub)
	}
	return s
}

// ///////////////////////////////////////////////
// HTTP
// ///////////////////////////////////////////////

// Handler returns the HTTP handler serving dist/ and, when live reload is
// enabled, the reload socket and client script.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.env.Config.Server.LiveReload {
		mux.Handle(livereload.SocketPath, s.hub)
		mux.Handle(livereload.ScriptPath, livereload.ScriptHandler())
	}
	mux.Handle("/", &fileHandler{
		dir:    s.env.Project.Dist(),
		files:  http.FileServer(http.Dir(s.env.Project.Dist())),
		inject: s.env.Config.Server.LiveReload,
	})
	return mux
}

// fileHandler serves the output directory. HTML pages get the live-reload
// script injected.
type fileHandler struct {
	dir    string
	files  http.Handler
	inject bool
}

func (h *fileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}
	if !h.inject || path.Ext(name) != ".html" {
		h.files.ServeHTTP(w, r)
		return
	}

	p := filepath.Join(h.dir, filepath.FromSlash(name))
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		if err == nil || errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data, err := os.ReadFile(p)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(livereload.Inject(data)))
}

// ///////////////////////////////////////////////
// Run
// ///////////////////////////////////////////////

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.env.Config.Addr()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve watches sources and serves HTTP on ln until ctx is cancelled. It
// closes ln. A nil return means ctx ended the session.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	w, err := watch.New(s.env.Project.Root, s.rules(), s.pollInterval, s.watchOpts...)
	if err != nil {
		ln.Close()
		return fmt.Errorf("start watcher: %w", err)
	}
	defer w.Close()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ln) }()

	slog.Info("serving",
		"url", "http://"+ln.Addr().String()+"/",
		"dir", s.env.Project.Dist(),
		"live_reload", s.env.Config.Server.LiveReload,
		"polling", w.Polling(),
	)

	loopCtx, stopLoops := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, t := range s.tasks {
		events := w.Events(t.Category)
		if events == nil {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(loopCtx, t, events)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	stopLoops()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	s.hub.Close()
	wg.Wait()

	slog.Info("server stopped")
	return runErr
}

// rules returns the watch rules of the server's categories.
func (s *Server) rules() []watch.Rule {
	var rules []watch.Rule
	for _, r := range watch.DefaultRules() {
		for _, t := range s.tasks {
			if t.Category == r.Category {
				rules = append(rules, r)
				break
			}
		}
	}
	return rules
}

// loop reruns t after each change signal. Runs never overlap: a change
// during a run leaves one pending signal, which starts exactly one
// follow-up run after the debounce.
func (s *Server) loop(ctx context.Context, t *task.Task, events <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-events:
		}

		if s.debounce > 0 {
			timer := time.NewTimer(s.debounce)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		// Changes during the debounce are covered by this run.
		select {
		case <-events:
		default:
		}

		// Errors are logged by Run; the category waits for the next change.
		_, _ = t.Run(ctx, s.env)
	}
}
