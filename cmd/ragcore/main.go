// Command ragcore is the entry point for the retrieval core. It provides a
// CLI (via Cobra) for managing vector indexes, ingesting and searching
// documents, and an HTTP server exposing the same operations.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragcore-go/cmd/ragcore/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
