package main

import (
	"fmt"
	"os"

	"github.com/sitehawk/sitehawk/pkg/ui"
)

// exitWithError prints a formatted error and exits with code 1.
func exitWithError(format string, args ...any) {
	ui.PrintError(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// exitWithUsage prints an error followed by a usage hint, then exits.
func exitWithUsage(msg, usage string) {
	ui.PrintError(msg)
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:", usage)
	os.Exit(1)
}
