package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while users still get a readable message.
var (
	// ErrNoListingURL is returned when no listing page URL is configured.
	ErrNoListingURL = errors.New("no listing URL specified")

	// ErrInvalidListingURL is returned when the listing URL is not an
	// absolute http or https URL.
	ErrInvalidListingURL = errors.New("invalid listing URL: must be an absolute http(s) URL")

	// ErrInvalidOrigin is returned when the site origin is not an absolute
	// http or https URL, or when it carries a path or query.
	ErrInvalidOrigin = errors.New("invalid origin: must be an http(s) scheme and host without a path")

	// ErrInvalidTimeout is returned when the timeout is negative.
	// Zero is allowed and disables the per-request timeout.
	ErrInvalidTimeout = errors.New("invalid timeout: must be non-negative")

	// ErrInvalidDelay is returned when the delay between pages is negative.
	ErrInvalidDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// A negative body size is invalid; use 0 to use the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrUnsupportedFormat is returned for an unknown output format.
	ErrUnsupportedFormat = errors.New("unsupported output format: use csv, json or markdown")

	// ErrNoOutputFile is returned when the output path is empty.
	ErrNoOutputFile = errors.New("no output file specified: use a path or - for stdout")
)
