// package formatter renders transfer reports for the terminal and for
// export (JSON, Markdown, plain text).
package formatter

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	dim   lipgloss.Style
}

func NewPalette(t, s, e, w, d string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		dim:   NewEm(d),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// ReportText renders a styled terminal summary of a transfer.
func ReportText(report *models.TransferReport) string {
	var b strings.Builder

	b.WriteString(styles.title.Render(fmt.Sprintf("Transfer: %s → %s", report.Source.Platform, report.Destination)))
	b.WriteString("\n")

	if report.SourceName != "" {
		b.WriteString(fmt.Sprintf("Source playlist: %s\n", report.SourceName))
	}
	if report.PlaylistName != "" {
		b.WriteString(fmt.Sprintf("Created playlist: %s\n", report.PlaylistName))
	}
	if report.PlaylistURL != "" {
		b.WriteString(fmt.Sprintf("URL: %s\n", report.PlaylistURL))
	}

	b.WriteString("\n")
	b.WriteString(styles.ok.Render(fmt.Sprintf("%d matched", report.Counts.Matched)))
	b.WriteString("  ")
	b.WriteString(styles.warn.Render(fmt.Sprintf("%d unmatched", report.Counts.Unmatched)))
	b.WriteString("  ")
	b.WriteString(styles.err.Render(fmt.Sprintf("%d errored", report.Counts.Errored)))
	b.WriteString(styles.dim.Render(fmt.Sprintf("  (%d total)", report.Counts.Total)))
	b.WriteString("\n")

	if missing := report.Missing(); len(missing) > 0 {
		b.WriteString("\nNot transferred:\n")
		for _, track := range missing {
			reason := reasonFor(report, track)
			b.WriteString(fmt.Sprintf("  %d. %s - %s %s\n",
				track.SourceIndex+1, track.Artist, track.Title, styles.dim.Render(reason)))
		}
	}

	status := styles.ok
	if report.Status != models.StatusCompleted {
		status = styles.err
	}
	b.WriteString("\nStatus: ")
	b.WriteString(status.Render(report.Status.String()))
	b.WriteString("\n")

	return b.String()
}

func reasonFor(report *models.TransferReport, track models.Track) string {
	for _, result := range report.Results {
		if result.Track.SourceIndex != track.SourceIndex {
			continue
		}
		if result.Outcome == models.OutcomeErrored && result.Error != "" {
			return "(" + result.Error + ")"
		}
		return "(" + result.Strategy.String() + ")"
	}
	return ""
}

// ReportJSON serializes the full report, pretty-printed for human reading.
func ReportJSON(report *models.TransferReport) ([]byte, error) {
	return shared.MarshalJSON(report, true)
}

// ReportMarkdown converts a report to Markdown with a per-track outcome table.
func ReportMarkdown(report *models.TransferReport) ([]byte, error) {
	var buf bytes.Buffer

	name := report.PlaylistName
	if name == "" {
		name = report.SourceName
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", name))
	buf.WriteString(fmt.Sprintf("**Transfer**: %s → %s\n", report.Source.Platform, report.Destination))
	if report.PlaylistURL != "" {
		buf.WriteString(fmt.Sprintf("**URL**: %s\n", report.PlaylistURL))
	}
	buf.WriteString(fmt.Sprintf("**Matched**: %d/%d\n\n", report.Counts.Matched, report.Counts.Total))

	buf.WriteString("## Tracks\n\n")
	buf.WriteString("| # | Track | Outcome | Strategy |\n")
	buf.WriteString("|---|-------|---------|----------|\n")
	for _, result := range report.Results {
		duration := ""
		if result.Track.Duration > 0 {
			duration = " [" + shared.FormatDuration(result.Track.Duration) + "]"
		}
		buf.WriteString(fmt.Sprintf("| %d | %s - %s%s | %s | %s |\n",
			result.Track.SourceIndex+1, result.Track.Artist, result.Track.Title, duration,
			result.Outcome, result.Strategy))
	}

	if missing := report.Missing(); len(missing) > 0 {
		buf.WriteString("\n## Missing\n\n")
		for _, track := range missing {
			buf.WriteString(fmt.Sprintf("- %s - %s\n", track.Artist, track.Title))
		}
	}

	return buf.Bytes(), nil
}

// ReportToText converts a report to plain unstyled text.
func ReportToText(report *models.TransferReport) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Transfer: %s -> %s\n", report.Source.Platform, report.Destination))
	buf.WriteString(fmt.Sprintf("Playlist: %s\n", report.SourceName))
	buf.WriteString(fmt.Sprintf("Matched: %d/%d\n\n", report.Counts.Matched, report.Counts.Total))

	for _, result := range report.Results {
		buf.WriteString(fmt.Sprintf("%d. %s - %s: %s\n",
			result.Track.SourceIndex+1, result.Track.Artist, result.Track.Title, result.Outcome))
	}

	return buf.Bytes()
}

// WriteReport writes the report to path in the given format ("json",
// "markdown", or "text"). Defaults the filename to the destination
// playlist ID when path is empty.
func WriteReport(report *models.TransferReport, path, format string) (string, error) {
	var (
		data []byte
		err  error
		ext  string
	)

	switch format {
	case "json", "":
		data, err = ReportJSON(report)
		ext = "json"
	case "markdown", "md":
		data, err = ReportMarkdown(report)
		ext = "md"
	case "text", "txt":
		data = ReportToText(report)
		ext = "txt"
	default:
		return "", fmt.Errorf("%w: unknown report format %q", shared.ErrInvalidArgument, format)
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	if path == "" {
		base := report.PlaylistID
		if base == "" {
			base = "transfer"
		}
		path = fmt.Sprintf("%s_report.%s", base, ext)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}
