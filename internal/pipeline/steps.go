package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/nao1215/prodscrape/internal/crawler"
	"github.com/nao1215/prodscrape/internal/model"
	"github.com/nao1215/prodscrape/internal/report"
)

// Discoverer finds product links on a listing page.
// *crawler.Spider implements it.
type Discoverer interface {
	Discover(ctx context.Context, listingURL string) ([]string, error)
}

// Crawler scrapes product links in order.
// *crawler.Spider implements it.
type Crawler interface {
	Crawl(ctx context.Context, links []string) (*model.Dataset, []crawler.PageResult, error)
}

// RunSaver persists a finished run.
// *database.RunDB implements it.
type RunSaver interface {
	SaveRun(ctx context.Context, run *model.Run) (int64, error)
}

// OpenFunc opens the export destination. It is called only when there is
// something to write, so no empty file is left behind.
type OpenFunc func() (io.WriteCloser, error)

// stepBase holds what every step shares.
type stepBase struct {
	logger *slog.Logger
}

// StepOption configures any of the steps in this package.
type StepOption func(*stepBase)

// WithStepLogger sets a custom logger for a step.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(b *stepBase) {
		if logger != nil {
			b.logger = logger
		}
	}
}

func newStepBase(opts []StepOption) stepBase {
	b := stepBase{logger: slog.Default()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// DiscoverStep fetches the listing page and stores the product links in
// the run. A discovery failure is fatal to the run.
type DiscoverStep struct {
	stepBase
	discoverer Discoverer
}

// NewDiscoverStep creates a discovery step.
func NewDiscoverStep(d Discoverer, opts ...StepOption) *DiscoverStep {
	return &DiscoverStep{stepBase: newStepBase(opts), discoverer: d}
}

// Name returns the step name.
func (s *DiscoverStep) Name() string {
	return "discover"
}

// Do executes the discovery step.
func (s *DiscoverStep) Do(ctx context.Context, run *model.Run) error {
	links, err := s.discoverer.Discover(ctx, run.ListingURL)
	if err != nil {
		return err
	}

	run.Links = links
	if len(links) == 0 {
		s.logger.Warn("no product links found", "listing", run.ListingURL)
		return nil
	}
	s.logger.Info("product links found", "listing", run.ListingURL, "count", len(links))
	return nil
}

// ScrapeStep visits every discovered link and fills the run's dataset.
// Skipped pages become run failures; the step itself only fails on a
// fatal crawl error or cancellation.
type ScrapeStep struct {
	stepBase
	crawl Crawler
}

// NewScrapeStep creates a scrape step.
func NewScrapeStep(c Crawler, opts ...StepOption) *ScrapeStep {
	return &ScrapeStep{stepBase: newStepBase(opts), crawl: c}
}

// Name returns the step name.
func (s *ScrapeStep) Name() string {
	return "scrape"
}

// Do executes the scrape step.
func (s *ScrapeStep) Do(ctx context.Context, run *model.Run) error {
	if len(run.Links) == 0 {
		s.logger.Debug("skipping scrape, no links")
		return nil
	}

	dataset, results, err := s.crawl.Crawl(ctx, run.Links)
	if dataset != nil {
		run.Dataset = dataset
	}
	for _, r := range results {
		if r.Outcome == crawler.OutcomeSkipped {
			run.AddFailure(r.Index, r.URL, r.Err)
		}
	}

	s.logger.Info("scrape finished",
		"records", run.RecordsScraped(),
		"failed", len(run.Failures),
		"visited", len(results),
	)

	if run.Dataset.IsEmpty() && err == nil {
		s.logger.Warn("no data was scraped")
	}
	return err
}

// ExportStep writes the dataset in one report format. Nothing is opened
// or written when the dataset is empty.
type ExportStep struct {
	stepBase
	format string
	open   OpenFunc

	// written is the byte count of the last export.
	written int
}

// NewExportStep creates an export step. The format is checked on first
// use by report.New.
func NewExportStep(format string, open OpenFunc, opts ...StepOption) *ExportStep {
	return &ExportStep{stepBase: newStepBase(opts), format: format, open: open}
}

// Name returns the step name.
func (s *ExportStep) Name() string {
	return "export"
}

// Written returns the number of bytes written by the last export.
func (s *ExportStep) Written() int {
	return s.written
}

// Do executes the export step.
func (s *ExportStep) Do(_ context.Context, run *model.Run) (err error) {
	s.written = 0
	if run.Dataset.IsEmpty() {
		s.logger.Debug("skipping export, dataset is empty")
		return nil
	}

	out, err := s.open()
	if err != nil {
		return fmt.Errorf("failed to open export output: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close export output: %w", cerr)
		}
	}()

	w, err := report.New(s.format, out)
	if err != nil {
		return err
	}

	n, err := w.Write(run)
	s.written = n
	if err != nil {
		return fmt.Errorf("failed to write %s export: %w", s.format, err)
	}

	s.logger.Info("dataset exported", "format", s.format, "records", run.RecordsScraped(), "bytes", n)
	return nil
}

// SaveStep stores the run in the history database.
type SaveStep struct {
	stepBase
	saver RunSaver
}

// NewSaveStep creates a save step.
func NewSaveStep(saver RunSaver, opts ...StepOption) *SaveStep {
	return &SaveStep{stepBase: newStepBase(opts), saver: saver}
}

// Name returns the step name.
func (s *SaveStep) Name() string {
	return "save"
}

// Do executes the save step.
func (s *SaveStep) Do(ctx context.Context, run *model.Run) error {
	if s.saver == nil {
		return errors.New("no run saver configured")
	}

	id, err := s.saver.SaveRun(ctx, run)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved", "id", id)
	return nil
}

// Spider is what DefaultPipeline needs from the crawler.
// *crawler.Spider implements it.
type Spider interface {
	Discoverer
	Crawler
}

// DefaultPipelineConfig holds configuration for the default pipeline.
type DefaultPipelineConfig struct {
	// Export writes the dataset after the crawl. Nil disables export.
	Export *ExportStep

	// Saver persists the run. Nil disables history.
	Saver RunSaver

	// StepOptions are applied to every step built by DefaultPipeline.
	StepOptions []StepOption
}

// DefaultPipelineOption configures a DefaultPipelineConfig.
type DefaultPipelineOption func(*DefaultPipelineConfig)

// WithExport adds an export step.
func WithExport(step *ExportStep) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Export = step
	}
}

// WithSaver adds a save step backed by the given saver.
func WithSaver(saver RunSaver) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.Saver = saver
	}
}

// WithStepOptions sets options applied to each step.
func WithStepOptions(opts ...StepOption) DefaultPipelineOption {
	return func(c *DefaultPipelineConfig) {
		c.StepOptions = append(c.StepOptions, opts...)
	}
}

// DefaultPipeline creates the standard discover, scrape, export and save
// pipeline. Export and save run as finally steps so an interrupted or
// failed crawl still keeps its partial dataset.
//
// The first parameter accepts pipeline options (WithLogger, etc).
// The variadic parameter accepts pipeline config options (WithExport, etc).
func DefaultPipeline(spider Spider, pipelineOpts []Option, configOpts ...DefaultPipelineOption) *Pipeline {
	p := New(pipelineOpts...)

	cfg := &DefaultPipelineConfig{}
	for _, opt := range configOpts {
		opt(cfg)
	}

	p.AddSteps(
		NewDiscoverStep(spider, cfg.StepOptions...),
		NewScrapeStep(spider, cfg.StepOptions...),
	)
	if cfg.Export != nil {
		p.AddFinally(cfg.Export)
	}
	if cfg.Saver != nil {
		p.AddFinally(NewSaveStep(cfg.Saver, cfg.StepOptions...))
	}

	return p
}
