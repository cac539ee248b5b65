// Package assetpipe provides embedded assets for the assetpipe CLI.
//
// The root package exists solely to embed [config.default.toml] via
// [DefaultConfigTOML], which `assetpipe init` writes into new projects.
package assetpipe

import _ "embed"

// DefaultConfigTOML holds the raw bytes of config.default.toml, embedded at
// build time.
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
