package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"tools.zach/dev/assetpipe/internal/fsutil"
	"tools.zach/dev/assetpipe/internal/paths"
)

// ///////////////////////////////////////////////
// Aggregate
// ///////////////////////////////////////////////

// Aggregate runs every task concurrently and returns once all of them have
// finished. Results are in the same order as tasks. A failing task never
// cancels its siblings; all task errors are joined into the returned error.
func Aggregate(ctx context.Context, env Env, tasks []*Task) ([]Result, error) {
	results := make([]Result, len(tasks))
	errs := make([]error, len(tasks))

	// A plain Group, not WithContext: one category failing must not abort
	// the others.
	var g errgroup.Group
	for i, t := range tasks {
		g.Go(func() error {
			res, err := t.Run(ctx, env)
			results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", t.Category, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Clean & Build
// ///////////////////////////////////////////////

// Clean deletes the project's output directory. Cleaning an already clean
// project succeeds.
func Clean(project paths.Project) error {
	if err := fsutil.RemoveAll(project.Dist()); err != nil {
		return fmt.Errorf("clean %s: %w", paths.BuildDir, err)
	}
	slog.Info("cleaned", "dir", paths.BuildDir)
	return nil
}

// Build cleans the output directory and then runs every category.
func Build(ctx context.Context, env Env) ([]Result, error) {
	start := time.Now()
	if err := Clean(env.Project); err != nil {
		return nil, err
	}
	results, err := Aggregate(ctx, env, All())

	var written, failed int
	for _, r := range results {
		written += len(r.Outputs)
		failed += len(r.Failed)
	}
	slog.Info("build complete",
		"mode", env.Mode,
		"written", written,
		"failed", failed,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return results, err
}

// Failures flattens the per-file transform failures of results.
func Failures(results []Result) []*FileError {
	var out []*FileError
	for _, r := range results {
		out = append(out, r.Failed...)
	}
	return out
}
