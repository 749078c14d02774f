// Package main is the ddgscan command-line entry point.
package main

import (
	"os"

	"github.com/structbio/ddgscan/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
