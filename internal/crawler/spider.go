package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/prodscrape/internal/fetcher"
	"github.com/nao1215/prodscrape/internal/model"
)

// DefaultDelay is the pause after each product page.
const DefaultDelay = time.Second

// ErrDiscovery wraps every failure while reading the listing page.
var ErrDiscovery = errors.New("product discovery failed")

// ErrTruncated is returned when the listing page is larger than the body
// size limit. Links past the cut would be lost silently.
var ErrTruncated = errors.New("page exceeds the body size limit")

// errExtractorPanic is reported when a custom Extractor panics.
var errExtractorPanic = errors.New("extractor panicked")

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Spider discovers product pages and scrapes them one by one.
//
// Design decision: pages are visited strictly sequentially with a delay
// after each one. Record order in the dataset equals link order, and the
// target site sees at most one request per delay.
type Spider struct {
	// fetcher retrieves pages.
	fetcher fetcher.Fetcher

	// links turns the listing page into product URLs.
	links *LinkExtractor

	// extractor turns a product page into a record.
	extractor Extractor

	// rules are the selectors used when no custom extractor is set.
	rules Rules

	// skipInvalid is forwarded to the LinkExtractor.
	skipInvalid bool

	// delay is the pause after each product page.
	delay time.Duration

	// sleep implements the pause.
	sleep Sleeper

	// observer receives progress updates.
	observer Observer

	logger *slog.Logger
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithRules replaces the selector set.
func WithRules(rules Rules) SpiderOption {
	return func(s *Spider) {
		s.rules = rules
	}
}

// WithExtractor replaces the product page extractor.
func WithExtractor(e Extractor) SpiderOption {
	return func(s *Spider) {
		s.extractor = e
	}
}

// WithDelay sets the pause after each product page.
func WithDelay(d time.Duration) SpiderOption {
	return func(s *Spider) {
		if d >= 0 {
			s.delay = d
		}
	}
}

// WithSleeper replaces the function used to pause between pages.
func WithSleeper(sleep Sleeper) SpiderOption {
	return func(s *Spider) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithObserver sets the progress observer.
func WithObserver(o Observer) SpiderOption {
	return func(s *Spider) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSkipInvalid makes discovery skip product containers without a link
// instead of failing.
func WithSkipInvalid(skip bool) SpiderOption {
	return func(s *Spider) {
		s.skipInvalid = skip
	}
}

// NewSpider creates a Spider for the site at origin.
func NewSpider(f fetcher.Fetcher, origin string, opts ...SpiderOption) (*Spider, error) {
	s := &Spider{
		fetcher:  f,
		rules:    DefaultRules(),
		delay:    DefaultDelay,
		sleep:    Sleep,
		observer: nopObserver{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	links, err := NewLinkExtractor(origin, s.rules,
		WithSkipInvalidContainers(s.skipInvalid),
		WithLinkLogger(s.logger),
	)
	if err != nil {
		return nil, err
	}
	s.links = links

	if s.extractor == nil {
		fields, err := NewFieldExtractor(s.rules)
		if err != nil {
			return nil, err
		}
		s.extractor = fields
	}

	return s, nil
}

// Delay returns the configured pause between pages.
func (s *Spider) Delay() time.Duration {
	return s.delay
}

// Discover fetches the listing page and returns the product URLs on it.
// Any failure returns no links and an error wrapping ErrDiscovery.
func (s *Spider) Discover(ctx context.Context, listingURL string) ([]string, error) {
	s.logger.Debug("fetching listing page", "url", listingURL)

	page, err := s.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}
	if page.Truncated {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscovery, listingURL, ErrTruncated)
	}

	doc, err := ParseBytes(page.Body, listingURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscovery, err)
	}

	links, err := s.links.Extract(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDiscovery, listingURL, err)
	}

	s.logger.Debug("listing page parsed", "url", listingURL, "title", doc.Title(), "links", len(links))
	return links, nil
}

// ScrapePage fetches and extracts a single product page. index is the
// 1-based position reported in the result.
func (s *Spider) ScrapePage(ctx context.Context, index int, pageURL string) (result PageResult) {
	result = PageResult{Index: index, URL: pageURL}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = OutcomeSkipped
			result.Record = nil
			result.Err = fmt.Errorf("%w: %s: %v", errExtractorPanic, pageURL, r)
		}
	}()

	page, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result.Outcome = OutcomeFatal
			result.Err = ctxErr
			return result
		}
		result.Outcome = OutcomeSkipped
		result.Err = err
		return result
	}

	if page.Truncated {
		s.logger.Warn("product page truncated at the body size limit, fields may be missing", "url", pageURL)
	}

	doc, err := ParseBytes(page.Body, pageURL)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Err = err
		return result
	}

	record, err := s.extractor.Extract(doc)
	if err != nil {
		result.Outcome = OutcomeSkipped
		result.Err = fmt.Errorf("extracting %s: %w", pageURL, err)
		return result
	}

	result.Outcome = OutcomeScraped
	result.Record = record
	return result
}

// Crawl visits links in order and returns the records that were scraped
// along with one PageResult per visited link. Skipped pages do not stop
// the crawl. On cancellation the partial dataset is returned together with
// the context error.
func (s *Spider) Crawl(ctx context.Context, links []string) (*model.Dataset, []PageResult, error) {
	dataset := model.NewDataset()
	results := make([]PageResult, 0, len(links))
	total := len(links)

	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return dataset, results, err
		}

		progress := Progress{Current: i + 1, Total: total, URL: link}
		s.observer.PageStarted(progress)

		result := s.ScrapePage(ctx, i+1, link)
		results = append(results, result)
		if result.Outcome == OutcomeFatal {
			return dataset, results, result.Err
		}

		if result.OK() {
			dataset.Append(result.Record)
			s.logger.Debug("product scraped", "index", i+1, "url", link, "fields", result.Record.Len())
		} else {
			s.logger.Debug("product skipped", "index", i+1, "url", link, "error", result.Err)
		}

		progress.Result = result
		s.observer.PageDone(progress)

		if err := s.sleep(ctx, s.delay); err != nil {
			return dataset, results, err
		}
	}

	return dataset, results, nil
}
