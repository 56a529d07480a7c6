package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/bubbles/progress"

	"github.com/nao1215/prodscrape/internal/crawler"
	"github.com/nao1215/prodscrape/internal/model"
	"github.com/nao1215/prodscrape/internal/pipeline"
)

// terminal is the operator-facing surface of a scrape: a spinner while the
// listing page loads, then a status line and progress bar per product.
// Messages go to w, which is stderr in the CLI so that "-o -" keeps stdout
// for the dataset.
type terminal struct {
	w           io.Writer
	interactive bool

	mu      sync.Mutex
	spin    *spinner.Spinner
	bar     progress.Model
	lineLen int
}

func newTerminal(w io.Writer, interactive bool) *terminal {
	return &terminal{
		w:           w,
		interactive: interactive,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// startSpinner shows msg with a spinner until stopSpinner.
func (t *terminal) startSpinner(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.interactive {
		fmt.Fprintln(t.w, msg)
		return
	}
	t.spin = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(t.w))
	t.spin.Suffix = " " + msg
	t.spin.Start()
}

func (t *terminal) stopSpinner() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.spin != nil {
		t.spin.Stop()
		t.spin = nil
	}
}

// Success prints a success message.
func (t *terminal) Success(format string, args ...any) {
	t.message("✔ ", format, args...)
}

// Warning prints a warning message.
func (t *terminal) Warning(format string, args ...any) {
	t.message("⚠ ", format, args...)
}

// Error prints an error message.
func (t *terminal) Error(format string, args ...any) {
	t.message("✖ ", format, args...)
}

func (t *terminal) message(prefix, format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.clearLine()
	fmt.Fprintf(t.w, prefix+format+"\n", args...)
}

// PageStarted implements crawler.Observer.
func (t *terminal) PageStarted(p crawler.Progress) {
	if !t.interactive {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	t.drawLine(p.Status(), t.bar.ViewAs(float64(p.Current-1)/float64(max(p.Total, 1))))
}

// PageDone implements crawler.Observer.
func (t *terminal) PageDone(p crawler.Progress) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !p.Result.OK() && p.Result.Err != nil {
		t.clearLine()
		fmt.Fprintf(t.w, "✖ An error occurred while scraping %s: %v\n", p.URL, p.Result.Err)
	}
	if !t.interactive {
		return
	}

	t.drawLine(p.Status(), t.bar.ViewAs(p.Fraction()))
	if p.Current == p.Total {
		fmt.Fprintln(t.w)
		t.lineLen = 0
	}
}

func (t *terminal) drawLine(status, bar string) {
	line := fmt.Sprintf("%s %s", bar, status)
	pad := ""
	if n := t.lineLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(t.w, "\r%s%s", line, pad)
	t.lineLen = len(line)
}

// clearLine moves past an unfinished progress line.
func (t *terminal) clearLine() {
	if t.lineLen > 0 {
		fmt.Fprintln(t.w)
		t.lineLen = 0
	}
}

// announcingSpider wraps the spider so discovery is shown on the terminal.
type announcingSpider struct {
	pipeline.Spider
	term *terminal
}

// Discover shows a spinner while the listing page is fetched and reports
// the outcome.
func (s *announcingSpider) Discover(ctx context.Context, listingURL string) ([]string, error) {
	s.term.startSpinner("Fetching product links...")
	links, err := s.Spider.Discover(ctx, listingURL)
	s.term.stopSpinner()

	switch {
	case err != nil:
		s.term.Error("An error occurred while fetching links: %v", err)
	case len(links) == 0:
		s.term.Warning("No product links were found.")
	default:
		s.term.Success("Found %d product links. Starting to scrape...", len(links))
	}
	return links, err
}

// reportOutcome prints the closing message of a scrape.
func (t *terminal) reportOutcome(run *model.Run, output string) {
	switch {
	case run.Failed() && run.LinksFound() == 0:
		// The discovery error was already shown.
	case run.Failed():
		t.Error("Scraping stopped: %s", run.Error)
	case run.Interrupted:
		t.Warning("Interrupted after %d of %d product pages.",
			run.RecordsScraped()+len(run.Failures), run.LinksFound())
	case run.LinksFound() == 0:
		// "No product links were found." was already shown.
	case run.Dataset.IsEmpty():
		t.Warning("No data was scraped. Please check the log for error messages.")
	default:
		t.Success("Scraped %d of %d products.", run.RecordsScraped(), run.LinksFound())
	}

	if !run.Dataset.IsEmpty() && output != "" {
		t.Success("Data written to %s", output)
	}
}
