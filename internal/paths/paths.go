// Package paths centralizes the source and output layout of an assetpipe
// project. The category table below is the single source of truth for which
// files each task reads, which files the watcher reacts to, and where the
// results are written.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Constants
// ///////////////////////////////////////////////

// Project directory and file names.
const (
	SrcDir         = "src"
	BuildDir       = "dist"
	ConfigFile     = "assetpipe.toml"
	ConfigFileYAML = "assetpipe.yaml"
	LockFile       = ".assetpipe.lock"
	LogFile        = "assetpipe.log"
	BinaryName     = "assetpipe"
)

// Output names that do not derive from a source file name.
const (
	SpriteFile = "sprites.svg"
	MinSuffix  = ".min"
)

// ///////////////////////////////////////////////
// Categories
// ///////////////////////////////////////////////

// Category identifies one asset kind with its own task, globs and
// destination directory.
type Category string

const (
	HTML    Category = "html"
	Styles  Category = "scss"
	Scripts Category = "js"
	Images  Category = "img"
	WebP    Category = "webp"
	Sprites Category = "svg"
	Assets  Category = "assets"
)

// Categories lists every category in declaration order.
var Categories = []Category{HTML, Styles, Scripts, Images, WebP, Sprites, Assets}

// Entry describes the files belonging to a category. All paths are
// slash-separated and relative to the project root.
type Entry struct {
	// Src lists the globs selecting the files a build reads.
	Src []string
	// Watch lists the globs whose changes re-trigger the category's task.
	Watch []string
	// Base is stripped from a source path to obtain its output-relative name.
	Base string
	// Dist is the destination directory.
	Dist string
}

var table = map[Category]Entry{
	HTML: {
		Src:   []string{SrcDir + "/*.html"},
		Watch: []string{SrcDir + "/*.html"},
		Base:  SrcDir,
		Dist:  BuildDir + "/",
	},
	Styles: {
		Src:   []string{SrcDir + "/scss/**/*.scss"},
		Watch: []string{SrcDir + "/scss/**/*.scss"},
		Base:  SrcDir + "/scss",
		Dist:  BuildDir + "/css/",
	},
	Scripts: {
		Src:   []string{SrcDir + "/js/main.js"},
		Watch: []string{SrcDir + "/js/**/*.js"},
		Base:  SrcDir + "/js",
		Dist:  BuildDir + "/js/",
	},
	Images: {
		Src:   []string{SrcDir + "/img/**/*.{jpg,jpeg,png,svg,gif}"},
		Watch: []string{SrcDir + "/img/**/*.{jpg,jpeg,png,svg,gif}"},
		Base:  SrcDir + "/img",
		Dist:  BuildDir + "/img/",
	},
	WebP: {
		Src:   []string{SrcDir + "/img/**/*.{jpg,jpeg,png}"},
		Watch: []string{SrcDir + "/img/**/*.{jpg,jpeg,png}"},
		Base:  SrcDir + "/img",
		Dist:  BuildDir + "/img/",
	},
	Sprites: {
		Src:   []string{SrcDir + "/sprites/**/*.svg"},
		Watch: []string{SrcDir + "/sprites/**/*.svg"},
		Base:  SrcDir + "/sprites",
		Dist:  BuildDir + "/sprites/",
	},
	Assets: {
		Src:   []string{SrcDir + "/fonts/**/*.*", SrcDir + "/icons/**/*.*"},
		Watch: []string{SrcDir + "/fonts/**/*.*", SrcDir + "/icons/**/*.*"},
		Base:  SrcDir,
		Dist:  BuildDir + "/",
	},
}

// Lookup returns the table entry for c. The returned slices are copies, so
// callers cannot modify the table.
func Lookup(c Category) (Entry, bool) {
	e, ok := table[c]
	if !ok {
		return Entry{}, false
	}
	e.Src = append([]string(nil), e.Src...)
	e.Watch = append([]string(nil), e.Watch...)
	return e, true
}

// Rel returns src relative to the entry's base directory.
func (e Entry) Rel(src string) (string, error) {
	prefix := e.Base + "/"
	if !strings.HasPrefix(src, prefix) {
		return "", fmt.Errorf("%s is outside %s", src, e.Base)
	}
	return strings.TrimPrefix(src, prefix), nil
}

// Output maps a source path to its destination path. A non-empty ext
// replaces the source extension (".min.css", ".webp").
func (e Entry) Output(src, ext string) (string, error) {
	rel, err := e.Rel(src)
	if err != nil {
		return "", err
	}
	if ext != "" {
		rel = strings.TrimSuffix(rel, path.Ext(rel)) + ext
	}
	return path.Join(e.Dist, rel), nil
}

// ///////////////////////////////////////////////
// Project
// ///////////////////////////////////////////////

// Project provides path construction rooted at a project directory.
type Project struct {
	Root string
}

// Abs converts a slash-separated project-relative path to an OS path.
func (p Project) Abs(rel string) string { return filepath.Join(p.Root, filepath.FromSlash(rel)) }

// Src returns the full path to the source directory.
func (p Project) Src() string { return filepath.Join(p.Root, SrcDir) }

// Dist returns the full path to the output directory.
func (p Project) Dist() string { return filepath.Join(p.Root, BuildDir) }

// Config returns the full path to the TOML config file.
func (p Project) Config() string { return filepath.Join(p.Root, ConfigFile) }

// ConfigYAML returns the full path to the YAML config file.
func (p Project) ConfigYAML() string { return filepath.Join(p.Root, ConfigFileYAML) }

// Lock returns the full path to the process lock file.
func (p Project) Lock() string { return filepath.Join(p.Root, LockFile) }
