// Package task implements the per-category asset pipelines and the
// sequencing around them: running categories concurrently, cleaning the
// output directory, and a full build.
//
// Every task reads its sources from the path table, runs each file through
// its transform chain, and writes results under dist/. A transform failure
// on one file is recorded and logged, and the remaining files still build.
// A filesystem failure aborts the task and is returned.
package task

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/assetpipe/internal/config"
	"tools.zach/dev/assetpipe/internal/fsutil"
	"tools.zach/dev/assetpipe/internal/logger"
	"tools.zach/dev/assetpipe/internal/paths"
	"tools.zach/dev/assetpipe/internal/transform"
)

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// Notifier is told which output files a category just wrote.
type Notifier interface {
	Notify(category paths.Category, files []string)
}

// Env is everything a task needs besides its own category. It is built
// once by the entry point and passed by value; tasks never modify it.
type Env struct {
	Project paths.Project
	Mode    config.Mode
	Config  *config.Config
	// Styles compiles SCSS. Required only when stylesheets exist.
	Styles transform.StyleCompiler
	// Reload is optional.
	Reload Notifier
}

// NewEnv returns an Env for the project at root.
func NewEnv(root string, mode config.Mode, cfg *config.Config, styles transform.StyleCompiler) Env {
	return Env{
		Project: paths.Project{Root: root},
		Mode:    mode,
		Config:  cfg,
		Styles:  styles,
	}
}

// WithReload returns a copy of e that reports written files to n.
func (e Env) WithReload(n Notifier) Env {
	e.Reload = n
	return e
}

// ///////////////////////////////////////////////
// Results
// ///////////////////////////////////////////////

// FileError records a transform failure for one source file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string { return e.Path + ": " + e.Err.Error() }

func (e *FileError) Unwrap() error { return e.Err }

// Result summarizes one task run.
type Result struct {
	Category paths.Category
	// Outputs lists the files written, slash-separated and relative to
	// the project root, in write order.
	Outputs []string
	// Removed lists stale outputs deleted because nothing produces them
	// any more.
	Removed []string
	// Failed lists per-file transform failures.
	Failed  []*FileError
	Elapsed time.Duration
}

// ///////////////////////////////////////////////
// Task
// ///////////////////////////////////////////////

// Task is one category's pipeline.
type Task struct {
	Category paths.Category
	run      func(ctx context.Context, r *runner) error
}

// Run executes the pipeline once. The returned Result is valid even when
// err is non-nil and lists whatever was written before the failure.
func (t *Task) Run(ctx context.Context, env Env) (Result, error) {
	entry, ok := paths.Lookup(t.Category)
	if !ok {
		return Result{Category: t.Category}, fmt.Errorf("unknown category %q", t.Category)
	}

	start := time.Now()
	r := &runner{
		env:   env,
		entry: entry,
		log:   slog.Default().With("task", string(t.Category)),
		res:   Result{Category: t.Category},
	}
	logger.Trace(r.log, "starting", "mode", env.Mode)

	err := t.run(ctx, r)
	r.res.Elapsed = time.Since(start)

	if changed := len(r.res.Outputs) + len(r.res.Removed); changed > 0 && env.Reload != nil {
		files := make([]string, 0, changed)
		files = append(files, r.res.Outputs...)
		env.Reload.Notify(t.Category, append(files, r.res.Removed...))
	}

	if err != nil {
		r.log.Error("task failed", "error", err, "written", len(r.res.Outputs))
		return r.res, err
	}
	r.log.Info("finished",
		"written", len(r.res.Outputs),
		"removed", len(r.res.Removed),
		"failed", len(r.res.Failed),
		"elapsed", r.res.Elapsed.Round(time.Millisecond),
	)
	return r.res, nil
}

// runner carries per-run state shared by the pipeline helpers.
type runner struct {
	env   Env
	entry paths.Entry
	log   *slog.Logger
	res   Result
}

// sources expands the category's source globs into sorted, de-duplicated
// project-relative paths. A missing source directory yields no files.
func (r *runner) sources() ([]string, error) {
	fsys := os.DirFS(r.env.Project.Root)
	var files []string
	for _, pattern := range r.entry.Src {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func (r *runner) read(rel string) ([]byte, error) {
	data, err := os.ReadFile(r.env.Project.Abs(rel))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, err)
	}
	return data, nil
}

// output maps a source path to its destination, optionally replacing the
// extension.
func (r *runner) output(src, ext string) (string, error) {
	return r.entry.Output(src, ext)
}

func (r *runner) write(rel string, data []byte) error {
	if err := fsutil.WriteFile(r.env.Project.Abs(rel), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", rel, err)
	}
	r.res.Outputs = append(r.res.Outputs, rel)
	logger.Trace(r.log, "wrote", "file", rel, "bytes", len(data))
	return nil
}

func (r *runner) copy(src, dst string) error {
	if err := fsutil.CopyFile(r.env.Project.Abs(dst), r.env.Project.Abs(src)); err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}
	r.res.Outputs = append(r.res.Outputs, dst)
	logger.Trace(r.log, "copied", "file", dst)
	return nil
}

// remove deletes a stale output. A file that is already gone is not
// recorded.
func (r *runner) remove(rel string) error {
	if err := os.Remove(r.env.Project.Abs(rel)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove %s: %w", rel, err)
	}
	r.res.Removed = append(r.res.Removed, rel)
	logger.Trace(r.log, "removed", "file", rel)
	return nil
}

// fail records a transform failure; the caller moves on to the next file.
func (r *runner) fail(rel string, err error) {
	r.res.Failed = append(r.res.Failed, &FileError{Path: rel, Err: err})
	r.log.Error("transform failed", "file", rel, "error", err)
}
