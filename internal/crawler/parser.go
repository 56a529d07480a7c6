package crawler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ErrParse is returned when a page body cannot be parsed as HTML.
var ErrParse = errors.New("failed to parse HTML")

// Document is a parsed HTML page together with the URL it came from.
//
// Design decision: We parse with golang.org/x/net/html ourselves and hand
// the node tree to goquery instead of calling goquery.NewDocumentFromReader
// so that parse failures surface as ErrParse with the page URL attached.
type Document struct {
	// URL is the address the page was fetched from.
	URL string

	doc *goquery.Document
}

// Parse reads an HTML document from r.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, pageURL, err)
	}

	return &Document{
		URL: pageURL,
		doc: goquery.NewDocumentFromNode(root),
	}, nil
}

// ParseBytes parses an in-memory page body.
func ParseBytes(body []byte, pageURL string) (*Document, error) {
	return Parse(bytes.NewReader(body), pageURL)
}

// Find returns all elements matching a CSS selector in document order.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// findMatcher returns all elements matched by a compiled selector.
func (d *Document) findMatcher(m goquery.Matcher) *goquery.Selection {
	return d.doc.FindMatcher(m)
}

// Title returns the trimmed <title> text, mostly useful in log output.
func (d *Document) Title() string {
	return cleanText(d.doc.Find("title").First())
}
