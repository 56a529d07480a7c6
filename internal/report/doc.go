// Package report writes scrape results.
//
// This package contains writers for different output formats:
//   - CSVWriter: the dataset as a table, one row per record (default export)
//   - JSONWriter: the whole run, including failures, for tool integration
//   - MarkdownWriter: a readable document with a summary and the data table
//   - SummaryWriter: a short plain-text summary for the terminal
//
// ReadCSV parses a file produced by CSVWriter back into a dataset, which
// lets an existing export be converted to another format.
//
// Design decision: report writing is kept apart from the data structures
// in the model package, so new formats never touch the model.
package report
