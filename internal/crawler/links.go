package crawler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Link extraction errors.
var (
	// ErrMissingAnchor is returned when a product container has no link.
	ErrMissingAnchor = errors.New("product container has no anchor")

	// ErrMissingHref is returned when a product link has no href.
	ErrMissingHref = errors.New("product anchor has no href")

	// ErrInvalidOrigin is returned when the site origin is not an absolute URL.
	ErrInvalidOrigin = errors.New("invalid site origin")
)

// LinkExtractor collects product URLs from a listing page.
type LinkExtractor struct {
	// origin is the base for relative hrefs.
	origin *url.URL

	rules *compiledRules

	// skipInvalid drops broken containers instead of failing.
	skipInvalid bool

	logger *slog.Logger
}

// LinkOption configures a LinkExtractor.
type LinkOption func(*LinkExtractor)

// WithSkipInvalidContainers makes containers without a usable link get
// logged and skipped. By default a single broken container fails the whole
// extraction.
func WithSkipInvalidContainers(skip bool) LinkOption {
	return func(e *LinkExtractor) {
		e.skipInvalid = skip
	}
}

// WithLinkLogger sets the logger used for skipped containers.
func WithLinkLogger(logger *slog.Logger) LinkOption {
	return func(e *LinkExtractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewLinkExtractor creates a LinkExtractor for the given site origin.
func NewLinkExtractor(origin string, rules Rules, opts ...LinkOption) (*LinkExtractor, error) {
	base, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, origin)
	}

	compiled, err := rules.compile()
	if err != nil {
		return nil, err
	}

	e := &LinkExtractor{
		origin: base,
		rules:  compiled,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

// Extract returns one absolute URL per product container in document order.
// A page without containers yields an empty slice and no error.
func (e *LinkExtractor) Extract(doc *Document) ([]string, error) {
	containers := doc.findMatcher(e.rules.product)
	links := make([]string, 0, containers.Length())

	for i := range containers.Nodes {
		anchor := containers.Eq(i).FindMatcher(e.rules.anchor).First()

		var err error
		href, ok := anchor.Attr("href")
		switch {
		case anchor.Length() == 0:
			err = fmt.Errorf("%w: container %d", ErrMissingAnchor, i+1)
		case !ok:
			err = fmt.Errorf("%w: container %d", ErrMissingHref, i+1)
		}

		if err != nil {
			if !e.skipInvalid {
				return nil, err
			}
			e.logger.Warn("skipping product container", "error", err)
			continue
		}

		links = append(links, e.Normalize(href))
	}

	return links, nil
}

// Normalize turns an href into an absolute URL. Hrefs that already start
// with "http" are returned unchanged; everything else is resolved against
// the origin.
func (e *LinkExtractor) Normalize(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "http") {
		return href
	}

	ref, err := url.Parse(href)
	if err != nil {
		return strings.TrimSuffix(e.origin.String(), "/") + href
	}
	return e.origin.ResolveReference(ref).String()
}
