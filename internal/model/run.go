package model

import "time"

// Run captures a single scrape invocation from discovery to export.
// The pipeline steps fill it in as they execute, and the database stores
// it for later re-export.
//
// Design decision: We keep failures next to the dataset rather than as
// placeholder records because failed pages must not appear as rows in the
// export, yet operators still need to know which links were dropped.
type Run struct {
	// ID is the database identifier. Zero until the run is saved.
	ID int64 `json:"id,omitempty"`

	// ListingURL is the catalog page that links were discovered from.
	ListingURL string `json:"listing_url"`

	// StartedAt is when discovery began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last step completed.
	FinishedAt time.Time `json:"finished_at"`

	// Links are the product page URLs found on the listing page.
	Links []string `json:"links"`

	// Dataset holds the scraped records.
	Dataset *Dataset `json:"dataset"`

	// Failures lists the pages that were skipped, in crawl order.
	Failures []Failure `json:"failures,omitempty"`

	// Error is the fatal error message, if the run aborted.
	Error string `json:"error,omitempty"`

	// Interrupted is set when the run was cancelled before finishing.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Failure describes one page that produced no record.
type Failure struct {
	// Index is the 1-based position of the link in the crawl.
	Index int `json:"index"`

	// URL is the link that failed.
	URL string `json:"url"`

	// Reason is the error message.
	Reason string `json:"reason"`
}

// NewRun creates a run for the given listing page.
func NewRun(listingURL string) *Run {
	return &Run{
		ListingURL: listingURL,
		StartedAt:  time.Now(),
		Links:      make([]string, 0),
		Dataset:    NewDataset(),
		Failures:   make([]Failure, 0),
	}
}

// AddFailure records a skipped page.
func (r *Run) AddFailure(index int, url string, err error) {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	r.Failures = append(r.Failures, Failure{Index: index, URL: url, Reason: reason})
}

// LinksFound returns the number of discovered links.
func (r *Run) LinksFound() int {
	return len(r.Links)
}

// RecordsScraped returns the number of records in the dataset.
func (r *Run) RecordsScraped() int {
	return r.Dataset.Len()
}

// Failed reports whether the run aborted with a fatal error.
func (r *Run) Failed() bool {
	return r.Error != ""
}

// Duration returns how long the run took. Zero if unfinished.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
