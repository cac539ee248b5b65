package transform

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// ///////////////////////////////////////////////
// Targets
// ///////////////////////////////////////////////

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineRe = regexp.MustCompile(`^([a-z]+)([0-9]+(?:\.[0-9]+)*)$`)

// ParseEngines converts browser targets such as "safari11" into esbuild
// engine constraints.
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := engineRe.FindStringSubmatch(strings.ToLower(t))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", m[1], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

var scriptTargets = map[string]api.Target{
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseScriptTarget converts an ECMAScript version name into an esbuild target.
func ParseScriptTarget(s string) (api.Target, error) {
	t, ok := scriptTargets[strings.ToLower(s)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown script target %q", s)
	}
	return t, nil
}

// ///////////////////////////////////////////////
// Vendor Prefixes
// ///////////////////////////////////////////////

// Prefix adds the vendor-prefixed declarations the given engines need.
// Existing declarations are left in place, so the output only grows.
func Prefix(src []byte, engines []api.Engine) ([]byte, error) {
	res := api.Transform(string(src), api.TransformOptions{
		Loader:   api.LoaderCSS,
		Engines:  engines,
		LogLevel: api.LogLevelSilent,
	})
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("prefix css: %w", messagesError(res.Errors))
	}
	return res.Code, nil
}

// ///////////////////////////////////////////////
// Bundling
// ///////////////////////////////////////////////

// BundleOptions configures a single-entry browser bundle.
type BundleOptions struct {
	// Entry is the absolute path of the entry module.
	Entry string
	// Outfile is the absolute output path. It names the linked source map
	// and anchors relative source paths; nothing is written to disk.
	Outfile string
	// Target is the syntax level the bundle is lowered to.
	Target api.Target
	// SourceMap emits a linked source map alongside the bundle.
	SourceMap bool
}

// Bundle is the in-memory output of [BuildBundle].
type Bundle struct {
	JS  []byte
	Map []byte
}

// BuildBundle resolves Entry and its imports into one IIFE script.
func BuildBundle(opts BundleOptions) (Bundle, error) {
	bo := api.BuildOptions{
		EntryPoints: []string{opts.Entry},
		Outfile:     opts.Outfile,
		Bundle:      true,
		Write:       false,
		Platform:    api.PlatformBrowser,
		Format:      api.FormatIIFE,
		Target:      opts.Target,
		Charset:     api.CharsetUTF8,
		LogLevel:    api.LogLevelSilent,
	}
	if opts.SourceMap {
		bo.Sourcemap = api.SourceMapLinked
	}

	res := api.Build(bo)
	if len(res.Errors) > 0 {
		return Bundle{}, fmt.Errorf("bundle %s: %w", opts.Entry, messagesError(res.Errors))
	}

	var out Bundle
	for _, f := range res.OutputFiles {
		if strings.HasSuffix(f.Path, ".map") {
			out.Map = f.Contents
		} else {
			out.JS = f.Contents
		}
	}
	return out, nil
}

// messagesError flattens esbuild diagnostics into one error.
func messagesError(msgs []api.Message) error {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			parts = append(parts, m.Text)
		}
	}
	return errors.New(strings.Join(parts, "; "))
}
