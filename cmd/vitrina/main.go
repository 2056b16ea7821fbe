// Package main provides the entry point for the vitrina CLI.
package main

import (
	"os"

	"github.com/vitrina-search/vitrina/cmd/vitrina/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
