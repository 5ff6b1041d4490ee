// Package main provides the entry point for the causantic CLI.
package main

import (
	"os"

	"github.com/causantic/causantic/cmd/causantic/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
