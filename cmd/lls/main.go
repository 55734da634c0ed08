// Package main provides the entry point for the lls CLI.
package main

import (
	"os"

	"github.com/marklambrecht/lightning-local-search/cmd/lls/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
