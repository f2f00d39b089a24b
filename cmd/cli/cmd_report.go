package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sitehawk/sitehawk/pkg/defaults"
	"github.com/sitehawk/sitehawk/pkg/report"
	"github.com/sitehawk/sitehawk/pkg/ui"
)

// runReport renders a stored scan, or lists what the database holds.
func runReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)

	scanID := fs.String("scan", "", "Scan id (default: the most recent scan)")
	dbPath := fs.String("db", defaults.DBPath, "SQLite results database")
	list := fs.Bool("list", false, "List stored scans and exit")

	var outPath, outFormat string
	fs.StringVar(&outPath, "o", "", "Output file (default: stdout)")
	fs.StringVar(&outPath, "output", "", "Output file (alias)")
	fs.StringVar(&outFormat, "format", "", "Report format: "+strings.Join(report.Formats(), ", "))

	noColor := fs.Bool("no-color", false, "Disable colored output")
	fs.BoolVar(noColor, "nc", false, "No color (alias)")

	fs.Parse(os.Args[2:])
	ui.SetNoColor(*noColor)

	st, err := openStore(*dbPath)
	if err != nil {
		exitWithError("Opening results store: %v", err)
	}
	defer st.Close()

	ctx := context.Background()

	if *list {
		scans, err := st.ListScans(ctx)
		if err != nil {
			exitWithError("Listing scans: %v", err)
		}
		if len(scans) == 0 {
			ui.PrintInfo("No scans recorded.")
			return
		}
		ui.PrintSection("Stored Scans")
		for _, rec := range scans {
			ui.PrintConfigLine(rec.ID, fmt.Sprintf("%s  %s %d%%  %s",
				rec.StartURL, rec.Status, rec.Progress,
				rec.CreatedAt.Local().Format("2006-01-02 15:04")))
		}
		return
	}

	id := *scanID
	if id == "" {
		scans, err := st.ListScans(ctx)
		if err != nil {
			exitWithError("Listing scans: %v", err)
		}
		if len(scans) == 0 {
			exitWithError("No scans in %s; run 'sitehawk scan' first", *dbPath)
		}
		id = scans[0].ID
	}

	rep, err := report.Load(ctx, st, id)
	if err != nil {
		exitWithError("%v", err)
	}

	format := formatForPath(outPath, outFormat)
	if err := writeReport(rep, outPath, format); err != nil {
		exitWithError("%v", err)
	}
	if outPath != "" {
		ui.PrintSuccess(fmt.Sprintf("Report written to %s (%s)", outPath, format))
	}
}
