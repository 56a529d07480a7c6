// Package crawler turns catalog HTML into product records.
//
// # Architecture
//
// A crawl has two phases. Discover fetches the listing page and collects
// one absolute product URL per product container. Crawl then visits those
// URLs strictly in order, one at a time, extracting a Record from each.
//
// The package is built from small pieces that can be tested alone:
//
//   - Document: a parsed page queried with CSS selectors (goquery)
//   - Rules: the selector set that describes where fields live on a page
//   - LinkExtractor: listing page to product URLs
//   - FieldExtractor: product page to Record
//   - Spider: the sequential loop with politeness delay and progress
//
// # Failure policy
//
// Discovery is all-or-nothing: any error while fetching or reading the
// listing page yields no links at all and wraps ErrDiscovery. A product
// page that fails to fetch or parse is reported as OutcomeSkipped and the
// loop moves on. Only context cancellation stops a crawl early, in which
// case the records gathered so far are still returned.
//
// # Politeness
//
// The Spider sleeps after every product page, including the last one, so
// the request rate never exceeds one page per delay. The sleep is an
// injectable Sleeper so tests run without real waiting.
//
// # Usage
//
//	f := fetcher.New(nil)
//	spider, err := crawler.NewSpider(f, "https://www.i-machine.net")
//	if err != nil {
//	    return err
//	}
//	links, err := spider.Discover(ctx, "https://www.i-machine.net/")
//	if err != nil {
//	    return err
//	}
//	dataset, results, err := spider.Crawl(ctx, links)
package crawler
