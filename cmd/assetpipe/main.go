// Package main implements the assetpipe CLI, which builds a static site's
// assets from src/ into dist/ and serves them with live reload during
// development.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strconv"

	"tools.zach/dev/assetpipe"
	"tools.zach/dev/assetpipe/internal/config"
	"tools.zach/dev/assetpipe/internal/fsutil"
	"tools.zach/dev/assetpipe/internal/logger"
	"tools.zach/dev/assetpipe/internal/paths"
	"tools.zach/dev/assetpipe/internal/server"
	"tools.zach/dev/assetpipe/internal/task"
	"tools.zach/dev/assetpipe/internal/transform"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.2.0"
//
// When ldflags are not set, resolveVersion reads the VCS info that Go embeds
// automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision is used
// to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Process Lock
// ///////////////////////////////////////////////

// acquireLock takes the project's process lock so two assetpipe processes
// never write the same dist/. The returned file must stay open until
// releaseLock.
func acquireLock(project paths.Project) (*os.File, error) {
	f, err := os.OpenFile(project.Lock(), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("another %s process is using %s: %w", paths.BinaryName, project.Root, err)
	}
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
	}
	return f, nil
}

// releaseLock unlocks and closes the lock file. The file is left in place
// so a process that opened it concurrently never locks an unlinked inode.
func releaseLock(f *os.File) {
	if f == nil {
		return
	}
	_ = unlockFile(f)
	f.Close()
}

// ///////////////////////////////////////////////
// Commands
// ///////////////////////////////////////////////

const usageText = `Usage: assetpipe [flags] [command]

Commands:
  build     clean, then build every category for production
  dev       clean, then build every category for development
  clean     delete the output directory
  init      write assetpipe.toml and the source layout
  version   print the version

Without a command, assetpipe builds for development and then serves dist/
with live reload, rebuilding categories as their sources change.

Flags:
`

// starterFiles seed a new project. Existing files are never overwritten.
var starterFiles = map[string]string{
	paths.SrcDir + "/index.html": `<!DOCTYPE html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <title>New site</title>
    <link rel="stylesheet" href="/css/main.min.css">
  </head>
  <body>
    <h1>Hello</h1>
    <script src="/js/main.min.js"></script>
  </body>
</html>
`,
	paths.SrcDir + "/scss/main.scss":       "@use 'variables';\n\nbody {\n  color: variables.$text;\n}\n",
	paths.SrcDir + "/scss/_variables.scss": "$text: #222;\n",
	paths.SrcDir + "/js/main.js":           "console.log('ready');\n",
}

// starterDirs are created empty when missing.
var starterDirs = []string{"img", "sprites", "fonts", "icons"}

// runInit writes the default configuration and source layout into root.
// It refuses to run when a config file already exists.
func runInit(project paths.Project, stdout io.Writer) error {
	for _, p := range []string{project.Config(), project.ConfigYAML()} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("%s already exists", filepath.Base(p))
		}
	}
	if err := fsutil.WriteFile(project.Config(), assetpipe.DefaultConfigTOML, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", paths.ConfigFile)

	for rel, content := range starterFiles {
		p := project.Abs(rel)
		if _, err := os.Stat(p); err == nil {
			continue
		}
		if err := fsutil.WriteFile(p, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
		fmt.Fprintf(stdout, "wrote %s\n", rel)
	}
	for _, d := range starterDirs {
		if err := os.MkdirAll(filepath.Join(project.Src(), d), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// newStyleCompiler returns the Dart Sass compiler with include paths
// resolved against the project root.
func newStyleCompiler(project paths.Project, cfg *config.Config) *transform.SassCompiler {
	include := make([]string, 0, len(cfg.Styles.IncludePaths))
	for _, p := range cfg.Styles.IncludePaths {
		if !filepath.IsAbs(p) {
			p = project.Abs(p)
		}
		include = append(include, p)
	}
	return transform.NewSassCompiler(cfg.Styles.SassBinary, include)
}

// build cleans dist/ and runs every category in mode.
func build(ctx context.Context, env task.Env) error {
	results, err := task.Build(ctx, env)
	if failed := task.Failures(results); len(failed) > 0 {
		slog.Warn("some files failed to build", "count", len(failed))
	}
	return err
}

// execute runs a command that needs the config, logger and process lock.
func execute(ctx context.Context, cmd string, project paths.Project, cfg *config.Config) error {
	if cmd == "clean" {
		return task.Clean(project)
	}

	sass := newStyleCompiler(project, cfg)
	defer sass.Close()

	switch cmd {
	case "build":
		return build(ctx, task.NewEnv(project.Root, config.Production, cfg, sass))
	case "dev":
		return build(ctx, task.NewEnv(project.Root, config.Development, cfg, sass))
	}

	// Default: development build, then serve.
	env := task.NewEnv(project.Root, config.Development, cfg, sass)
	if err := build(ctx, env); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		slog.Error("initial build failed, serving anyway", "error", err)
	}
	return server.New(env, task.All()).Run(ctx)
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args, executes one command and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(paths.BinaryName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("C", ".", "project root directory")
	level := fs.String("log-level", "", "override log.level (trace, debug, info, warn, error)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "too many arguments: %v\n", fs.Args())
		fs.Usage()
		return 1
	}
	cmd := fs.Arg(0)

	root, err := filepath.Abs(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: resolve %s: %v\n", *dir, err)
		return 1
	}
	project := paths.Project{Root: root}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "%s %s\n", paths.BinaryName, resolveVersion())
		return 0
	case "init":
		if err := runInit(project, stdout); err != nil {
			fmt.Fprintf(stderr, "fatal: init: %v\n", err)
			return 1
		}
		return 0
	case "", "build", "dev", "clean":
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 1
	}

	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		fmt.Fprintf(stderr, "fatal: %s is not a directory\n", root)
		return 1
	}

	cfg, err := config.Load(root)
	if err != nil {
		fmt.Fprintf(stderr, "fatal: load config: %v\n", err)
		return 1
	}
	if *level != "" {
		cfg.Log.Level = *level
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "fatal: -log-level: %v\n", err)
			return 1
		}
	}

	var logPath string
	if cfg.Log.File != "" {
		logPath = cfg.Log.File
		if !filepath.IsAbs(logPath) {
			logPath = project.Abs(logPath)
		}
	}
	log, logCloser := logger.New(stderr, logger.ParseLevel(cfg.Log.Level), logPath, cfg.Log.MaxSizeMB)
	defer logCloser.Close()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	lock, err := acquireLock(project)
	if err != nil {
		slog.Error("cannot start", "error", err)
		return 1
	}
	defer releaseLock(lock)

	name := cmd
	if name == "" {
		name = "serve"
	}
	slog.Info(paths.BinaryName+" starting", "version", resolveVersion(), "command", name, "root", root)

	if err := execute(ctx, cmd, project, cfg); err != nil {
		slog.Error(name+" failed", "error", err)
		return 1
	}
	return 0
}
