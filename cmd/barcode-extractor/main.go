package main

import (
	"fmt"
	"os"

	"github.com/spherical/barcode-extractor/cmd/barcode-extractor/commands"
)

var (
	version = "1.0.0"
)

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
