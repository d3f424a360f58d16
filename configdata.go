// Package sigloop embeds the annotated default configuration.
//
// The root package exists solely to embed config.default.toml via
// [DefaultConfigTOML], which the daemon copies into the data directory on
// first run.
package sigloop

import _ "embed"

// DefaultConfigTOML holds config.default.toml, regenerated by
// "go generate ./internal/config".
//
//go:embed config.default.toml
var DefaultConfigTOML []byte
