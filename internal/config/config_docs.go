package config

// ///////////////////////////////////////////////
// Documentation Types
// ///////////////////////////////////////////////

// FieldDoc holds documentation and alternative examples for a single config field.
// The genconfig tool uses [FieldDoc] values to annotate the generated config.default.toml.
type FieldDoc struct {
	// Comment is shown as a header comment above the field in the example config.
	Comment string

	// Alternatives are shown as commented-out lines below the active value.
	Alternatives []string
}

// ///////////////////////////////////////////////
// Field Documentation Map
// ///////////////////////////////////////////////

// ConfigDocs maps TOML field paths (dot-separated, e.g. "styles.targets")
// to their [FieldDoc] entries.
var ConfigDocs = map[string]FieldDoc{
	// Root
	"version": {
		Comment: "Config schema version. Do not edit.",
	},

	// Server
	"server.host": {
		Comment: "Address the development server binds to.\nUse 0.0.0.0 to reach it from other devices on the network.",
		Alternatives: []string{
			`host = "0.0.0.0"`,
		},
	},
	"server.port": {},
	"server.live_reload": {
		Comment: "Push rebuilt files to open browser tabs over a websocket.\nStylesheet changes are swapped in place; everything else reloads the page.",
	},

	// Styles
	"styles.sass_binary": {
		Comment: "Dart Sass executable used to compile SCSS. It must support --embedded;\nthe standalone release from https://github.com/sass/dart-sass/releases does.",
		Alternatives: []string{
			`sass_binary = "/usr/local/bin/sass"`,
		},
	},
	"styles.include_paths": {
		Comment: "Extra load paths for @use and @import, relative to the project root.",
		Alternatives: []string{
			`include_paths = ["node_modules"]`,
		},
	},
	"styles.targets": {
		Comment: "Browsers that production stylesheets are prefixed for.\nNames: chrome, edge, firefox, ie, ios, opera, safari.",
	},

	// Scripts
	"scripts.target": {
		Comment: "ECMAScript version production bundles are lowered to.\nDevelopment bundles are never lowered.",
		Alternatives: []string{
			`target = "es2020"`,
			`target = "esnext"`,
		},
	},

	// Images
	"images.jpeg_quality": {
		Comment: "Quality (1-100) used when re-encoding JPEGs in production.\nThe original is kept whenever re-encoding does not make it smaller.",
	},
	"images.webp_quality": {
		Comment: "WebP quality (1-100) for production and development builds.",
	},
	"images.webp_dev_quality": {},

	// Watch
	"watch.debounce_ms": {
		Comment: "Delay before a changed category is rebuilt, so editor save bursts trigger one build.",
	},
	"watch.poll_interval_ms": {
		Comment: "Polling interval used when native filesystem events are unavailable.",
	},

	// Log
	"log.level": {
		Comment: "Log verbosity: trace, debug, info, warn, error",
	},
	"log.file": {
		Comment: "Also write logs to this file (relative to the project root). Rotated at max_size_mb.",
		Alternatives: []string{
			`file = "assetpipe.log"`,
		},
	},
	"log.max_size_mb": {},
}
