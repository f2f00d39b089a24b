// Command cli is the sitehawk entry point. Subcommands follow the
// flag.FlagSet pattern: each run function owns its flag set and parses
// os.Args[2:].
package main

import (
	"fmt"
	"os"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/ui"
)

func printUsage() {
	ui.PrintBanner(defaults.Version)

	fmt.Fprintln(os.Stderr, "Usage: sitehawk <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  scan       Crawl a site and record security findings")
	fmt.Fprintln(os.Stderr, "  report     Render a stored scan as jsonl, markdown, html, pdf, or sarif")
	fmt.Fprintln(os.Stderr, "  serve-mcp  Expose scans as MCP tools over stdio or HTTP")
	fmt.Fprintln(os.Stderr, "  version    Print the version")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Examples:")
	fmt.Fprintln(os.Stderr, "  sitehawk scan -u https://example.com")
	fmt.Fprintln(os.Stderr, "  sitehawk scan -u https://example.com -depth 3 -pages 100 -o report.html -format html")
	fmt.Fprintln(os.Stderr, "  sitehawk report -list")
	fmt.Fprintln(os.Stderr, "  sitehawk report -scan <id> -format markdown")
	fmt.Fprintln(os.Stderr, "  sitehawk serve-mcp -http :8080")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run 'sitehawk <command> -h' for command flags.")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "scan", "crawl":
		runScan()
	case "report", "reports":
		runReport()
	case "serve-mcp", "mcp":
		runServeMCP()
	case "-v", "--version", "version":
		fmt.Printf("%s %s\n", defaults.ToolName, defaults.Version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}
