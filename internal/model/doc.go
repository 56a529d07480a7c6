// Package model defines the core data structures used throughout prodscrape.
//
// This package contains the following main types:
//   - Record: The ordered fields extracted from one product page
//   - Dataset: The ordered records of one crawl, exported as a table
//   - Run: One scrape invocation with its links, dataset and failures
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, pipeline, report and database packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
