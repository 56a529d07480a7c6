// Package database provides SQLite-based run history for prodscrape.
//
// Every scrape can be saved as a run: the listing URL, timing, the
// discovered links, the pages that failed and every scraped record with
// its field order intact. Saved runs can be listed, re-exported in any
// format, and queried per product URL to follow a product (its price, for
// example) across runs.
//
// Design decision: We use SQLite via modernc.org/sqlite because the
// history is a single local file and the driver is CGO-free, which keeps
// cross-compilation simple.
package database
