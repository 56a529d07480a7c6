// Package pipeline runs a scrape as a sequence of steps over a model.Run.
//
// The default pipeline discovers product links on the listing page,
// scrapes each link in order, then exports and saves whatever was
// collected. Export and save are finally steps: they also run after a
// fatal error or an interrupt, so a partial dataset is never lost.
//
// Design decision: We keep the step pattern instead of calling the
// spider directly from the CLI so that logging, cancellation handling and
// run bookkeeping live in one place and each step can be tested alone.
package pipeline
