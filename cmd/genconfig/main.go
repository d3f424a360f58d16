// Package main implements the genconfig tool that writes config.default.toml
// from config.ExampleConfig().
//
// It is invoked by go generate via the directive in internal/config/config.go.
package main

import (
	"flag"
	"fmt"
	"os"

	"tools.zach/dev/sigloop/internal/config"
)

func main() {
	// go generate runs from internal/config/, so ../../ is the repo root
	// where configdata.go embeds the file.
	out := flag.String("o", "../../config.default.toml", "output path")
	flag.Parse()

	if err := generate(*out); err != nil {
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", *out)
}

// generate renders the example config and writes it to path.
func generate(path string) error {
	data, err := config.Render(config.ExampleConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
