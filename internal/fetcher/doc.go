// Package fetcher retrieves catalog pages over HTTP.
//
// A fetch is a single synchronous GET. There are no retries: a network
// failure is returned to the caller, which decides whether it is fatal
// (listing page) or skippable (product page).
//
// Status codes are not inspected by default, so the body of a 404 or 500
// page is handed to the extractors like any other page. WithStrictStatus
// turns such responses into ErrUnexpectedStatus instead.
//
// Bodies are converted to UTF-8 with golang.org/x/net/html/charset so that
// catalog sites served in legacy encodings extract cleanly.
package fetcher
