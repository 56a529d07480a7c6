// Package log builds the slog loggers used by prodscrape.
//
// Loggers wrap their handler in a RedactHandler, which masks values that
// should not end up in shared logs:
//   - request credentials logged by key (cookie, authorization, token, ...)
//   - bearer and basic authorization values wherever they appear
//   - credential-like query parameters inside logged URLs
//
// Masking also applies in verbose mode.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//
//	logger.Debug("fetching", "url", "https://shop.example/p?token=abc")
//	// url=https://shop.example/p?token=***REDACTED***
package log
