// Package main is the entry point for the Strudel agent server CLI.
package main

import (
	"os"

	"github.com/strudel-ai/strudel/cmd/strudel/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
