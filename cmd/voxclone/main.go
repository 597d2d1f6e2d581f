// Package main provides the voxclone server and CLI.
//
// Usage:
//
//	voxclone [flags] <command> [args]
//
// Commands:
//
//	serve   - Run the HTTP API (and the optional gRPC health server)
//	embed   - Extract a speaker embedding from an audio file
//	clone   - Clone a voice from an audio file and synthesize text with it
//	version - Print the version
package main

import (
	"fmt"
	"os"

	"github.com/ekisa-team/voxclone/cmd/voxclone/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
