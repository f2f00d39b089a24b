package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// PrintPage prints a live crawled-page line in httpx style.
// Format: url [status] [title] [tech, tech] [score]
func PrintPage(url string, statusCode int, title string, technologies []string, score int) {
	if IsSilent() {
		return
	}

	var output strings.Builder
	output.WriteString(URLStyle.Render(url))
	output.WriteString(" ")
	output.WriteString(BracketStyle.Render("["))
	output.WriteString(StatusCodeStyle(statusCode).Render(fmt.Sprintf("%d", statusCode)))
	output.WriteString(BracketStyle.Render("]"))

	if title != "" {
		output.WriteString(" ")
		output.WriteString(BracketStyle.Render("["))
		output.WriteString(ConfigValueStyle.Render(truncateString(title, 40)))
		output.WriteString(BracketStyle.Render("]"))
	}
	if len(technologies) > 0 {
		output.WriteString(" ")
		output.WriteString(BracketStyle.Render("["))
		output.WriteString(TechStyle.Render(strings.Join(technologies, ", ")))
		output.WriteString(BracketStyle.Render("]"))
	}
	output.WriteString(" ")
	output.WriteString(BracketStyle.Render("["))
	output.WriteString(ScoreStyle(score).Render(fmt.Sprintf("%d", score)))
	output.WriteString(BracketStyle.Render("]"))

	fmt.Fprintln(os.Stderr, output.String())
}

// PrintFinding prints a live finding line in nuclei style.
// Format: [severity] [cwe] title url
func PrintFinding(severity, cwe, title, url string) {
	if IsSilent() {
		return
	}

	var output strings.Builder
	output.WriteString(BracketStyle.Render("["))
	output.WriteString(SeverityStyle(severity).Render(strings.ToLower(severity)))
	output.WriteString(BracketStyle.Render("] "))

	if cwe != "" {
		output.WriteString(BracketStyle.Render("["))
		output.WriteString(TechStyle.Render(cwe))
		output.WriteString(BracketStyle.Render("] "))
	}

	output.WriteString(StatValueStyle.Render(title))
	output.WriteString(" ")
	output.WriteString(URLStyle.Render(url))

	fmt.Fprintln(os.Stderr, output.String())
}

// ScanSummary holds the end-of-scan numbers the CLI renders.
type ScanSummary struct {
	Target   string
	Status   string
	Pages    int
	Findings int

	Critical int
	High     int
	Medium   int
	Low      int
	Info     int

	AvgScore int
	Duration time.Duration
}

// PrintScanSummary prints the end-of-scan summary box.
func PrintScanSummary(s ScanSummary) {
	if IsSilent() {
		return
	}

	fmt.Fprintln(os.Stderr)
	PrintSection("Scan Summary")
	fmt.Fprintln(os.Stderr)

	fmt.Fprintf(os.Stderr, "  %s %s\n",
		ConfigLabelStyle.Render("Target:"),
		URLStyle.Render(s.Target),
	)
	if s.Status != "" {
		fmt.Fprintf(os.Stderr, "  %s %s\n",
			ConfigLabelStyle.Render("Status:"),
			StatValueStyle.Render(s.Status),
		)
	}
	fmt.Fprintln(os.Stderr)

	// Results box - simple ASCII to avoid Unicode width issues
	const boxWidth = 50
	border := "+" + strings.Repeat("-", boxWidth-2) + "+"

	printRow := func(label string, value string, valueStyle lipgloss.Style) {
		const labelW = 18
		const totalInner = 46

		labelPadded := label
		for len(labelPadded) < labelW {
			labelPadded += " "
		}
		valuePadded := value
		for len([]rune(valuePadded)) < totalInner-labelW {
			valuePadded += " "
		}

		fmt.Fprintf(os.Stderr, "  |  %s%s|\n",
			StatLabelStyle.Render(labelPadded),
			valueStyle.Render(valuePadded),
		)
	}

	fmt.Fprintln(os.Stderr, BracketStyle.Render("  "+border))
	printRow("Pages crawled:", fmt.Sprintf("%d", s.Pages), StatValueStyle)
	printRow("Findings:", fmt.Sprintf("%d", s.Findings), StatValueStyle)

	if s.Findings > 0 {
		fmt.Fprintln(os.Stderr, BracketStyle.Render("  "+border))
		severityRow := func(label string, count int, color lipgloss.Color) {
			if count == 0 {
				return
			}
			printRow(label+":", fmt.Sprintf("%d", count), lipgloss.NewStyle().Foreground(color).Bold(true))
		}
		severityRow("Critical", s.Critical, Critical)
		severityRow("High", s.High, High)
		severityRow("Medium", s.Medium, Medium)
		severityRow("Low", s.Low, Low)
		severityRow("Info", s.Info, Info)
	}

	fmt.Fprintln(os.Stderr, BracketStyle.Render("  "+border))
	printRow("Duration:", formatDuration(s.Duration), StatValueStyle)
	if s.Pages > 0 {
		printRow("Avg score:", fmt.Sprintf("%d/100", s.AvgScore), ScoreStyle(s.AvgScore))
	}
	fmt.Fprintln(os.Stderr, BracketStyle.Render("  "+border))

	if s.Pages > 0 {
		fmt.Fprintln(os.Stderr)
		PrintScoreMeter(s.AvgScore)
	}

	fmt.Fprintln(os.Stderr)
	highImpact := s.Critical + s.High
	switch {
	case highImpact > 0:
		PrintError(fmt.Sprintf("%d high-impact findings need review", highImpact))
	case s.Findings > 0:
		PrintWarning(fmt.Sprintf("%d findings reported, none high impact", s.Findings))
	default:
		PrintSuccess("No security findings reported")
	}
	fmt.Fprintln(os.Stderr)
}

// PrintScoreMeter prints a visual security score meter.
func PrintScoreMeter(score int) {
	const barWidth = 25

	var color lipgloss.Color
	var rating string
	switch {
	case score >= 90:
		color, rating = Success, "Excellent"
	case score >= 75:
		color, rating = Low, "Good"
	case score >= 60:
		color, rating = Medium, "Fair"
	case score >= 40:
		color, rating = Warning, "Poor"
	default:
		color, rating = Error, "Critical"
	}

	filled := barWidth * score / 100
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Builder{}
	fullStyle := lipgloss.NewStyle().Foreground(color)
	for i := 0; i < barWidth; i++ {
		if i < filled {
			bar.WriteString(fullStyle.Render("#"))
		} else {
			bar.WriteString(ProgressEmptyStyle.Render("."))
		}
	}

	fmt.Fprintf(os.Stderr, "  %s%s %s %s\n",
		StatLabelStyle.Render("Security Score: "),
		bar.String(),
		lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%d/100", score)),
		lipgloss.NewStyle().Foreground(color).Render(rating),
	)
}
