// Familiar is a terminal client for the Familiar sidecar backend.
package main

import (
	"fmt"
	"os"

	"github.com/familiar-ai/familiar/cmd/familiar/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
