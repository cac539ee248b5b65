package transform

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
)

// ErrCompilerUnavailable is returned by a StyleCompiler that cannot run at
// all, as opposed to failing on one stylesheet.
var ErrCompilerUnavailable = errors.New("style compiler unavailable")

// Stylesheet is the result of compiling one SCSS entry point.
type Stylesheet struct {
	CSS       []byte
	SourceMap []byte
}

// StyleCompiler turns an SCSS entry point into CSS. path is the absolute
// source path, used to resolve relative imports; src is its content.
type StyleCompiler interface {
	Compile(path string, src []byte, sourceMap bool) (Stylesheet, error)
}

// ///////////////////////////////////////////////
// Dart Sass
// ///////////////////////////////////////////////

// SassCompiler compiles SCSS through a Dart Sass process speaking the
// embedded protocol. The process is started on first use and shared by
// concurrent compilations.
type SassCompiler struct {
	binary       string
	includePaths []string

	once       sync.Once
	transpiler *godartsass.Transpiler
	startErr   error
}

// NewSassCompiler returns a compiler that runs binary with the given extra
// load paths.
func NewSassCompiler(binary string, includePaths []string) *SassCompiler {
	return &SassCompiler{
		binary:       binary,
		includePaths: append([]string(nil), includePaths...),
	}
}

func (c *SassCompiler) start() error {
	c.once.Do(func() {
		c.transpiler, c.startErr = godartsass.Start(godartsass.Options{
			DartSassEmbeddedFilename: c.binary,
			LogEventHandler: func(e godartsass.LogEvent) {
				slog.Warn("sass", "message", e.Message)
			},
		})
		if c.startErr != nil {
			c.startErr = fmt.Errorf("%w: start %s: %v", ErrCompilerUnavailable, c.binary, c.startErr)
		}
	})
	return c.startErr
}

// Compile implements StyleCompiler.
func (c *SassCompiler) Compile(path string, src []byte, sourceMap bool) (Stylesheet, error) {
	if err := c.start(); err != nil {
		return Stylesheet{}, err
	}

	loadPaths := make([]string, 0, 1+len(c.includePaths))
	loadPaths = append(loadPaths, filepath.Dir(path))
	loadPaths = append(loadPaths, c.includePaths...)

	res, err := c.transpiler.Execute(godartsass.Args{
		Source:                  string(src),
		URL:                     fileURL(path),
		SourceSyntax:            godartsass.SourceSyntaxSCSS,
		OutputStyle:             godartsass.OutputStyleExpanded,
		EnableSourceMap:         sourceMap,
		SourceMapIncludeSources: sourceMap,
		IncludePaths:            loadPaths,
	})
	if err != nil {
		return Stylesheet{}, fmt.Errorf("compile scss: %w", err)
	}

	out := Stylesheet{CSS: []byte(res.CSS)}
	if res.SourceMap != "" {
		out.SourceMap = []byte(res.SourceMap)
	}
	return out, nil
}

// Close stops the Dart Sass process if it was started.
func (c *SassCompiler) Close() error {
	if c.transpiler == nil {
		return nil
	}
	return c.transpiler.Close()
}

func fileURL(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// ///////////////////////////////////////////////
// Source Maps
// ///////////////////////////////////////////////

// InlineSourceMap appends sourceMap to css as a base64 data URL comment.
func InlineSourceMap(css, sourceMap []byte) []byte {
	var b strings.Builder
	b.Grow(len(css) + base64.StdEncoding.EncodedLen(len(sourceMap)) + 64)
	b.Write(css)
	if len(css) > 0 && css[len(css)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("/*# sourceMappingURL=data:application/json;charset=utf-8;base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(sourceMap))
	b.WriteString(" */\n")
	return []byte(b.String())
}
