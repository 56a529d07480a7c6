package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/prodscrape/internal/config"
	"github.com/nao1215/prodscrape/internal/crawler"
	"github.com/nao1215/prodscrape/internal/database"
	"github.com/nao1215/prodscrape/internal/fetcher"
	plog "github.com/nao1215/prodscrape/internal/log"
	"github.com/nao1215/prodscrape/internal/model"
	"github.com/nao1215/prodscrape/internal/pipeline"
	"github.com/nao1215/prodscrape/internal/report"
)

// errInterrupted is returned when the user stops a scrape.
var errInterrupted = errors.New("scrape interrupted")

// NewScrapeCmd creates the scrape command.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [listing-url]",
		Short: "Scrape every product linked from a listing page",
		Long: `Scrape fetches the listing page, collects the link of every product
container, then visits each product page in order and extracts its model,
price, detail fields and specification.

A page that cannot be fetched or parsed is skipped and reported; the rest
of the products are still scraped. Pages are visited one at a time with a
fixed delay after each page.

Examples:
  # Scrape the default catalog into i_machine_product_data.csv
  prodscrape scrape

  # Scrape another listing page and write JSON to stdout
  prodscrape scrape -f json -o - https://www.i-machine.net/category/pumps

  # Be gentler with the site and treat HTTP errors as failed pages
  prodscrape scrape --delay 3s --strict-status

Configuration file (.prodscrape) example:
  defaults:
    delay: 2s
  sites:
    www.i-machine.net:
      cookie: "session=abc123"
      selectors:
        price: "div.price"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runScrapeCmd,
	}

	// Request flags
	cmd.Flags().String("origin", "",
		"Scheme and host for relative product links, no path (default: scheme and host of the listing URL)")
	cmd.Flags().DurationP("delay", "d", config.DefaultDelay,
		"Pause after each product page")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request (0 disables)")
	cmd.Flags().StringP("user-agent", "u", config.DefaultUserAgent,
		"User-Agent header sent with requests")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Failure handling flags
	cmd.Flags().Bool("strict-status", false,
		"Treat non-2xx responses as failed pages")
	cmd.Flags().Bool("skip-invalid", false,
		"Skip product containers without a link instead of failing")

	// Output flags
	cmd.Flags().StringP("format", "f", config.FormatCSV,
		"Output format: "+strings.Join(config.Formats(), ", "))
	cmd.Flags().StringP("output", "o", config.DefaultOutputFile,
		`Output file path ("-" for stdout)`)
	cmd.Flags().Bool("no-progress", false,
		"Disable the spinner and progress bar")

	// Config and history flags
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .prodscrape in current or home directory)")
	cmd.Flags().Bool("no-save", false,
		"Do not save this run to the history database")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")

	return cmd
}

// runScrapeCmd executes the scrape command.
func runScrapeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := plog.NewLogger(cmd.ErrOrStderr(), cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runScrape(ctx, cmd, cfg, logger)
}

// buildConfig creates a Config from flags, the config file and the site
// overrides for the listing host. Flags that were set explicitly win.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()
	var err error

	if len(args) > 0 {
		cfg.ListingURL = args[0]
	}

	if cfg.Origin, err = flags.GetString("origin"); err != nil {
		return nil, err
	}
	if cfg.Delay, err = flags.GetDuration("delay"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.StrictStatus, err = flags.GetBool("strict-status"); err != nil {
		return nil, err
	}
	if cfg.SkipInvalid, err = flags.GetBool("skip-invalid"); err != nil {
		return nil, err
	}
	if cfg.Format, err = flags.GetString("format"); err != nil {
		return nil, err
	}
	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.NoProgress, err = flags.GetBool("no-progress"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	noSave, err := flags.GetBool("no-save")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noSave

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	cfg.Verbose = getVerboseFlag(cmd)
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Format == "md" {
		cfg.Format = config.FormatMarkdown
	}
	applyOutputDefaults(cfg, flags.Changed("format"), flags.Changed("output"))

	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	// Site values fill in whatever the user did not set on the command line.
	site := cfg.Site()
	if !flags.Changed("delay") && site.Delay > 0 {
		cfg.Delay = site.Delay
	}
	if !flags.Changed("user-agent") && site.UserAgent != "" {
		cfg.UserAgent = site.UserAgent
	}

	return cfg, nil
}

// applyOutputDefaults keeps the format and output path consistent when only
// one of them was given: "-o data.json" implies JSON, and "-f json" writes
// i_machine_product_data.json.
func applyOutputDefaults(cfg *config.Config, formatSet, outputSet bool) {
	switch {
	case outputSet && !formatSet:
		switch strings.ToLower(filepath.Ext(cfg.OutputFile)) {
		case ".json":
			cfg.Format = config.FormatJSON
		case ".md", ".markdown":
			cfg.Format = config.FormatMarkdown
		}
	case formatSet && !outputSet:
		ext := map[string]string{
			config.FormatCSV:      ".csv",
			config.FormatJSON:     ".json",
			config.FormatMarkdown: ".md",
		}[cfg.Format]
		if ext != "" {
			cfg.OutputFile = strings.TrimSuffix(config.DefaultOutputFile, ".csv") + ext
		}
	}
}

// loadSiteConfigs reads the config file. An explicit path must exist; a
// missing file in the default locations is not an error.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	switch {
	case path != "":
		return config.LoadConfigFile(path)
	case explicitPath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
	default:
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}
}

// newSpider builds the fetcher and spider for cfg.
func newSpider(cfg *config.Config, observer crawler.Observer, logger *slog.Logger) (*crawler.Spider, error) {
	site := cfg.Site()

	f := fetcher.New(&http.Client{},
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithCookie(site.Cookie),
		fetcher.WithHeaders(site.Headers),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithStrictStatus(cfg.StrictStatus),
	)

	rules := crawler.DefaultRules().Merge(crawler.Rules{
		Product:       site.Selectors.Product,
		Anchor:        site.Selectors.Anchor,
		Model:         site.Selectors.Model,
		Price:         site.Selectors.Price,
		Detail:        site.Selectors.Detail,
		Specification: site.Selectors.Specification,
	})

	return crawler.NewSpider(f, cfg.EffectiveOrigin(),
		crawler.WithRules(rules),
		crawler.WithDelay(cfg.Delay),
		crawler.WithObserver(observer),
		crawler.WithLogger(logger),
		crawler.WithSkipInvalid(cfg.SkipInvalid),
	)
}

// runScrape executes the scrape pipeline.
func runScrape(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	term := newTerminal(cmd.ErrOrStderr(), !cfg.NoProgress)

	spider, err := newSpider(cfg, term, logger)
	if err != nil {
		return fmt.Errorf("failed to create spider: %w", err)
	}

	logger.Info("starting scrape",
		"listing", cfg.ListingURL,
		"origin", cfg.EffectiveOrigin(),
		"delay", spider.Delay(),
		"format", cfg.Format,
		"saveToDB", cfg.SaveToDB,
	)

	export := pipeline.NewExportStep(cfg.Format, openOutput(cfg.OutputFile, cmd.OutOrStdout()),
		pipeline.WithStepLogger(logger))
	configOpts := []pipeline.DefaultPipelineOption{
		pipeline.WithExport(export),
		pipeline.WithStepOptions(pipeline.WithStepLogger(logger)),
	}

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()
		configOpts = append(configOpts, pipeline.WithSaver(db))
	}

	p := pipeline.DefaultPipeline(&announcingSpider{Spider: spider, term: term},
		[]pipeline.Option{pipeline.WithLogger(logger)}, configOpts...)

	run := model.NewRun(cfg.ListingURL)
	execErr := p.Execute(ctx, run)

	output := cfg.OutputFile
	if output == config.StdoutOutput || export.Written() == 0 {
		output = ""
	}
	term.reportOutcome(run, output)

	if _, err := report.NewSummaryWriter(cmd.ErrOrStderr(), report.WithFailures(cfg.Verbose)).Write(run); err != nil {
		logger.Warn("failed to write summary", "error", err)
	}

	if run.Interrupted {
		return errInterrupted
	}
	return execErr
}

// openOutput returns the export destination for path. "-" writes to
// stdout without closing it.
func openOutput(path string, stdout io.Writer) pipeline.OpenFunc {
	return func() (io.WriteCloser, error) {
		if path == config.StdoutOutput {
			return nopWriteCloser{stdout}, nil
		}

		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create output directory: %w", err)
			}
		}
		return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
