package crawler

import (
	"fmt"

	"github.com/nao1215/prodscrape/internal/model"
)

// Outcome classifies what happened to one product page.
type Outcome int

const (
	// OutcomeScraped means a record was extracted.
	OutcomeScraped Outcome = iota

	// OutcomeSkipped means the page failed and the crawl moved on.
	OutcomeSkipped

	// OutcomeFatal means the crawl stopped at this page.
	OutcomeFatal
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeScraped:
		return "scraped"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// PageResult is the result of visiting one product URL.
type PageResult struct {
	// Index is the 1-based position of the URL in the crawl.
	Index int

	// URL is the product page address.
	URL string

	// Outcome classifies the result.
	Outcome Outcome

	// Record is set for OutcomeScraped.
	Record *model.Record

	// Err is set for OutcomeSkipped and OutcomeFatal.
	Err error
}

// OK reports whether a record was produced.
func (r PageResult) OK() bool {
	return r.Outcome == OutcomeScraped && r.Record != nil
}

// Progress describes the crawl position around one page.
type Progress struct {
	// Current is the 1-based index of the page.
	Current int

	// Total is the number of product URLs in the crawl.
	Total int

	// URL is the product page address.
	URL string

	// Result is the page result. It is zero in PageStarted.
	Result PageResult
}

// Status is the human-readable position, e.g. "Scraping product 2 of 10".
func (p Progress) Status() string {
	return fmt.Sprintf("Scraping product %d of %d", p.Current, p.Total)
}

// Fraction is Current/Total in the range [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Current) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Observer is notified as the crawl moves through product pages.
type Observer interface {
	// PageStarted is called before a page is fetched.
	PageStarted(p Progress)

	// PageDone is called after a page was scraped or skipped.
	PageDone(p Progress)
}

// ObserverFunc adapts a function to Observer. It is only called from
// PageDone.
type ObserverFunc func(p Progress)

// PageStarted does nothing.
func (f ObserverFunc) PageStarted(Progress) {}

// PageDone calls f(p).
func (f ObserverFunc) PageDone(p Progress) { f(p) }

type nopObserver struct{}

func (nopObserver) PageStarted(Progress) {}
func (nopObserver) PageDone(Progress)    {}
