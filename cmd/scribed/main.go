// Package main is the entry point for the scribed gateway CLI.
//
// Usage:
//
//	scribed [flags] <command> [args]
//
// Commands:
//
//	serve      - Run the transcription gateway server
//	records    - Inspect stored transcriptions (list, get, delete)
//	version    - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/scribe/cmd/scribed/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
