package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/prodscrape/internal/config"
	"github.com/nao1215/prodscrape/internal/database"
	"github.com/nao1215/prodscrape/internal/model"
	"github.com/nao1215/prodscrape/internal/report"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [listing-url]",
		Short: "List, export or delete saved runs",
		Long: `History works with the runs saved by 'prodscrape scrape'.

Without flags it lists saved runs, newest first. A listing URL argument
limits --latest to runs of that listing page.

Examples:
  # List the 20 most recent runs
  prodscrape history

  # Export run 5 again as Markdown
  prodscrape history --run 5 -f markdown -o run5.md

  # Export the latest run of a listing page as CSV to stdout
  prodscrape history --latest https://www.i-machine.net/

  # Show how one product changed across runs
  prodscrape history --product https://www.i-machine.net/product/123

  # Delete run 5
  prodscrape history --delete 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().Int64P("run", "r", 0, "Export the run with this ID")
	cmd.Flags().BoolP("latest", "l", false, "Export the most recent run")
	cmd.Flags().Int64("delete", 0, "Delete the run with this ID")
	cmd.Flags().StringP("product", "p", "", "Show the saved records of one product URL")
	cmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().StringP("format", "f", config.FormatCSV,
		"Export format: "+strings.Join(config.Formats(), ", "))
	cmd.Flags().StringP("output", "o", config.StdoutOutput, `Export file path ("-" for stdout)`)
	cmd.Flags().String("db-dir", "", "Directory of the history database (default: XDG data directory)")

	cmd.MarkFlagsMutuallyExclusive("run", "latest", "delete", "product")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	runID, err := flags.GetInt64("run")
	if err != nil {
		return err
	}
	latest, err := flags.GetBool("latest")
	if err != nil {
		return err
	}
	deleteID, err := flags.GetInt64("delete")
	if err != nil {
		return err
	}
	productURL, err := flags.GetString("product")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	format, err := flags.GetString("format")
	if err != nil {
		return err
	}
	output, err := flags.GetString("output")
	if err != nil {
		return err
	}

	// Validate before opening the database so a bad flag never creates one.
	if (runID != 0 || latest) && !isKnownFormat(format) {
		return fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, format)
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case deleteID != 0:
		if err := db.DeleteRun(ctx, deleteID); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted run #%d\n", deleteID)
		return nil
	case productURL != "":
		return showProductHistory(ctx, out, db, productURL)
	case runID != 0:
		run, err := db.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		return exportRun(cmd, run, format, output)
	case latest:
		listing := ""
		if len(args) > 0 {
			listing = args[0]
		}
		run, err := db.LatestRun(ctx, listing)
		if err != nil {
			return err
		}
		return exportRun(cmd, run, format, output)
	default:
		return listRuns(ctx, out, db, limit)
	}
}

// openHistoryDB opens the existing history database. It never creates one.
func openHistoryDB(cmd *cobra.Command) (*database.RunDB, error) {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir == "" {
		dbDir = config.XDGDataDir()
	}

	opts := database.DefaultOptions()
	opts.CreateIfNotExists = false
	db, err := database.Open(dbDir, opts)
	if errors.Is(err, database.ErrDatabaseNotFound) {
		return nil, errors.New("no saved runs yet (run 'prodscrape scrape' first)")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

func isKnownFormat(format string) bool {
	switch format {
	case config.FormatCSV, config.FormatJSON, config.FormatMarkdown, "md":
		return true
	}
	return false
}

// exportRun writes a saved run in the given format.
func exportRun(cmd *cobra.Command, run *model.Run, format, output string) (err error) {
	w, err := openOutput(output, cmd.OutOrStdout())()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	rw, err := report.New(format, w)
	if err != nil {
		return err
	}
	if _, err := rw.Write(run); err != nil {
		return fmt.Errorf("failed to export run #%d: %w", run.ID, err)
	}

	if output != config.StdoutOutput {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported run #%d (%d records) to %s\n",
			run.ID, run.RecordsScraped(), output)
	}
	return nil
}

// listRuns prints saved runs, newest first.
func listRuns(ctx context.Context, out io.Writer, db *database.RunDB, limit int) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No saved runs.")
		return nil
	}

	fmt.Fprintf(out, "Saved runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %-7s  %-7s  %-6s  %-11s  %s\n",
		"ID", "Date", "Links", "Records", "Failed", "Status", "Listing URL")
	for _, r := range runs {
		fmt.Fprintf(out, "  %-6d  %-20s  %-7d  %-7d  %-6d  %-11s  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.LinksFound,
			r.RecordsScraped,
			r.PagesFailed,
			runStatus(r),
			r.ListingURL,
		)
	}
	return nil
}

func runStatus(r database.RunMetadata) string {
	switch {
	case r.Error != "":
		return "failed"
	case r.Interrupted:
		return "interrupted"
	default:
		return "complete"
	}
}

// showProductHistory prints the model and price of one product per run.
func showProductHistory(ctx context.Context, out io.Writer, db *database.RunDB, productURL string) error {
	history, err := db.ProductHistory(ctx, productURL)
	if err != nil {
		return err
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No saved records for %s\n", productURL)
		return nil
	}

	fmt.Fprintf(out, "History for %s (%d runs):\n\n", productURL, len(history))
	fmt.Fprintf(out, "  %-6s  %-20s  %-24s  %s\n", "Run", "Date", "Model", "Price")
	prev := ""
	for _, snap := range history {
		price := snap.Record.Value(model.KeyPrice)
		marker := ""
		if prev != "" && price != prev {
			marker = "  (changed)"
		}
		prev = price

		fmt.Fprintf(out, "  %-6d  %-20s  %-24s  %s%s\n",
			snap.RunID,
			snap.ScrapedAt.Local().Format("2006-01-02 15:04:05"),
			snap.Record.Value(model.KeyModel),
			price,
			marker,
		)
	}
	return nil
}
