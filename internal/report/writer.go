package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/prodscrape/internal/model"
)

// ErrUnsupportedFormat is returned by New for an unknown format name.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Writer defines the interface for report output.
//
// Design decision: an interface lets the CLI pick a format at runtime and
// write to a file or stdout with the same call.
type Writer interface {
	// Write outputs the run and returns the number of bytes written.
	Write(run *model.Run) (int, error)
}

// New returns the writer for a format name: "csv", "json" or "markdown".
func New(format string, output io.Writer) (Writer, error) {
	switch format {
	case "csv":
		return NewCSVWriter(output), nil
	case "json":
		return NewJSONWriter(output, WithPrettyPrint()), nil
	case "markdown", "md":
		return NewMarkdownWriter(output), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// MultiWriter writes to multiple Writers in turn.
//
// Design decision: io.MultiWriter does not fit because Writer writes runs,
// not raw bytes.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the run to all Writers and stops on the first error.
func (m *MultiWriter) Write(run *model.Run) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(run)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Summary holds the counts shown in every report.
type Summary struct {
	// ListingURL is the catalog page of the run.
	ListingURL string `json:"listing_url"`

	// LinksFound is the number of discovered product links.
	LinksFound int `json:"links_found"`

	// RecordsScraped is the number of records in the dataset.
	RecordsScraped int `json:"records_scraped"`

	// PagesFailed is the number of skipped pages.
	PagesFailed int `json:"pages_failed"`

	// Columns is the export header.
	Columns []string `json:"columns"`

	// Duration is the run time.
	Duration time.Duration `json:"duration_ns"`

	// Status is "complete", "interrupted" or "failed".
	Status string `json:"status"`
}

// Summarize computes the Summary of run.
func Summarize(run *model.Run) Summary {
	status := "complete"
	switch {
	case run.Failed():
		status = "failed"
	case run.Interrupted:
		status = "interrupted"
	}

	columns := run.Dataset.Columns()
	if columns == nil {
		columns = []string{}
	}

	return Summary{
		ListingURL:     run.ListingURL,
		LinksFound:     run.LinksFound(),
		RecordsScraped: run.RecordsScraped(),
		PagesFailed:    len(run.Failures),
		Columns:        columns,
		Duration:       run.Duration(),
		Status:         status,
	}
}
