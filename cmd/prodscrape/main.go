// Package main provides the entry point for the prodscrape CLI.
//
// prodscrape reads the product links from a catalog listing page, visits
// each product page in turn and exports the extracted fields as a table.
//
// Usage:
//
//	prodscrape scrape [listing-url]
//	prodscrape history
//	prodscrape convert <file.csv>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
