package main

import (
	"fmt"
	"os"

	"github.com/otell-io/otell/internal/cli/otell"
)

func main() {
	if err := otell.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
