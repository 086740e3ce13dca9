// Package main provides the speechclip CLI.
//
// Usage:
//
//	speechclip [--config file] run [--audio-id id] [--output dir] FILE...
//	speechclip [--config file] fetch-model
//
// Each recording is normalized, scanned for speech and cut into numbered
// clips under <output>/audio_<id>/. One JSON line per recording is printed
// to stdout; logs go to stderr.
package main

import (
	"fmt"
	"os"

	"github.com/maauso/speechclip/cmd/speechclip/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
