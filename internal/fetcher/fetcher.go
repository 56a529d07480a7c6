package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Fetch errors.
var (
	// ErrFetch is returned when the request could not be completed at the
	// network level (DNS failure, refused connection, timeout, ...).
	ErrFetch = errors.New("fetch failed")

	// ErrUnexpectedStatus is returned in strict status mode when the server
	// answers with a non-2xx status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")
)

// DefaultUserAgent is sent when no User-Agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

// DefaultMaxBodySize limits how much of a response body is read.
const DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

// Fetcher retrieves a single page.
//
// Design decision: The crawl loop depends on this interface rather than on
// *HTTPFetcher so tests can substitute canned pages and failures without a
// network listener.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// Page is a fetched response body decoded to UTF-8.
type Page struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status code. It is informational unless the
	// fetcher runs in strict status mode.
	StatusCode int

	// ContentType is the Content-Type response header.
	ContentType string

	// Body is the response body converted to UTF-8.
	Body []byte

	// Truncated is set when the body hit the size limit.
	Truncated bool
}

// HTTPFetcher issues plain GET requests.
type HTTPFetcher struct {
	// client performs the requests.
	client *http.Client

	// userAgent is the User-Agent header value.
	userAgent string

	// cookie is sent as the Cookie header when non-empty.
	cookie string

	// headers are extra request headers.
	headers map[string]string

	// maxBodySize caps the number of body bytes read.
	maxBodySize int64

	// timeout bounds each request. Zero means no per-request timeout.
	timeout time.Duration

	// strictStatus turns non-2xx responses into errors.
	strictStatus bool
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithCookie sets the Cookie header sent with every request.
func WithCookie(cookie string) Option {
	return func(f *HTTPFetcher) {
		f.cookie = cookie
	}
}

// WithHeaders adds custom request headers.
func WithHeaders(headers map[string]string) Option {
	return func(f *HTTPFetcher) {
		if f.headers == nil {
			f.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			f.headers[k] = v
		}
	}
}

// WithMaxBodySize sets the maximum number of body bytes to read.
func WithMaxBodySize(size int64) Option {
	return func(f *HTTPFetcher) {
		if size > 0 {
			f.maxBodySize = size
		}
	}
}

// WithTimeout bounds each request. Zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = timeout
	}
}

// WithStrictStatus makes non-2xx responses return ErrUnexpectedStatus.
// By default the status code is ignored and error pages are returned as
// ordinary content.
func WithStrictStatus(strict bool) Option {
	return func(f *HTTPFetcher) {
		f.strictStatus = strict
	}
}

// New creates an HTTPFetcher. A nil client means http.DefaultClient.
func New(client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}

	f := &HTTPFetcher{
		client:      client,
		userAgent:   DefaultUserAgent,
		maxBodySize: DefaultMaxBodySize,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch performs one GET request and returns the decoded body.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid request for %s: %w", ErrFetch, pageURL, err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	if f.cookie != "" {
		req.Header.Set("Cookie", f.cookie)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetch, pageURL, err)
	}
	defer resp.Body.Close()

	if f.strictStatus && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		return nil, fmt.Errorf("%w: %s returned %d", ErrUnexpectedStatus, pageURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")

	// Read one extra byte so truncation can be detected.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body of %s: %w", ErrFetch, pageURL, err)
	}

	truncated := int64(len(raw)) > f.maxBodySize
	if truncated {
		raw = raw[:f.maxBodySize]
	}

	body, err := decodeBody(raw, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding body of %s: %w", ErrFetch, pageURL, err)
	}

	return &Page{
		URL:         pageURL,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        body,
		Truncated:   truncated,
	}, nil
}

// decodeBody converts raw to UTF-8 using a BOM, the Content-Type charset,
// or a <meta charset> declaration, in that order of precedence. Bodies
// without a certain declaration that are already valid UTF-8 pass through.
func decodeBody(raw []byte, contentType string) ([]byte, error) {
	enc, name, certain := charset.DetermineEncoding(raw, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(raw)) {
		return raw, nil
	}
	return enc.NewDecoder().Bytes(raw)
}
