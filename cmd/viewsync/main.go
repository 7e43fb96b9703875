// Package main is the entry point for the viewsync CLI binary.
package main

import (
	"os"

	"bq-viewsync/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
