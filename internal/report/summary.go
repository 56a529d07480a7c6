package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/prodscrape/internal/model"
)

// SummaryWriter prints a short plain-text summary of a run for the
// terminal. It never prints the records themselves.
type SummaryWriter struct {
	baseWriter

	// showFailures lists every skipped page.
	showFailures bool
}

// SummaryWriterOption configures a SummaryWriter.
type SummaryWriterOption func(*SummaryWriter)

// WithFailures lists each failed page below the counts.
func WithFailures(show bool) SummaryWriterOption {
	return func(w *SummaryWriter) {
		w.showFailures = show
	}
}

// NewSummaryWriter creates a SummaryWriter that outputs to the given writer.
func NewSummaryWriter(output io.Writer, opts ...SummaryWriterOption) *SummaryWriter {
	w := &SummaryWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary.
func (w *SummaryWriter) Write(run *model.Run) (int, error) {
	s := Summarize(run)

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")
	if run.ID != 0 {
		fmt.Fprintf(&sb, "Run:             #%d\n", run.ID)
	}
	fmt.Fprintf(&sb, "Listing URL:     %s\n", s.ListingURL)
	fmt.Fprintf(&sb, "Links found:     %d\n", s.LinksFound)
	fmt.Fprintf(&sb, "Records scraped: %d\n", s.RecordsScraped)
	fmt.Fprintf(&sb, "Failed pages:    %d\n", s.PagesFailed)
	fmt.Fprintf(&sb, "Columns:         %d\n", len(s.Columns))
	fmt.Fprintf(&sb, "Duration:        %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(&sb, "Status:          %s\n", s.Status)
	if run.Error != "" {
		fmt.Fprintf(&sb, "Error:           %s\n", run.Error)
	}

	if w.showFailures && len(run.Failures) > 0 {
		sb.WriteString("\nFailed pages:\n")
		for _, f := range run.Failures {
			fmt.Fprintf(&sb, "  %3d. %s\n       %s\n", f.Index, f.URL, f.Reason)
		}
	}
	sb.WriteString(strings.Repeat("=", 60))
	sb.WriteString("\n")

	return io.WriteString(w.output, sb.String())
}
