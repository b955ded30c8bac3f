// Package main is the storage-cost CLI entry point.
package main

import (
	"os"

	"storage-cost/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
