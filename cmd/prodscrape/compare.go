package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/prodscrape/internal/database"
	"github.com/nao1215/prodscrape/internal/model"
)

// RunRef identifies one side of a comparison.
type RunRef struct {
	ID        int64     `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Records   int       `json:"records"`
}

// ProductRef is a product that exists in only one of the compared runs.
type ProductRef struct {
	URL   string `json:"url"`
	Model string `json:"model"`
	Price string `json:"price"`
}

// FieldChange is one field whose value differs between runs. An empty Old
// or New value means the field was absent on that side.
type FieldChange struct {
	Key string `json:"key"`
	Old string `json:"old"`
	New string `json:"new"`
}

// ProductChange lists the changed fields of one product.
type ProductChange struct {
	URL     string        `json:"url"`
	Model   string        `json:"model"`
	Changes []FieldChange `json:"changes"`
}

// Comparison is the difference between two runs of the same listing page.
type Comparison struct {
	ListingURL string          `json:"listing_url"`
	Previous   RunRef          `json:"previous"`
	Current    RunRef          `json:"current"`
	Added      []ProductRef    `json:"added"`
	Removed    []ProductRef    `json:"removed"`
	Changed    []ProductChange `json:"changed"`
	Unchanged  int             `json:"unchanged"`
}

// NewCompareCmd creates the compare command.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare [listing-url]",
		Short: "Compare the latest run with an earlier one",
		Long: `Compare shows how the products of a listing page changed between two
saved runs:
- products that appeared since the earlier run
- products that are no longer listed
- products whose price or other fields changed

Without a listing URL the listing page of the most recent run is used.

Examples:
  # Compare the latest two runs
  prodscrape compare

  # Compare the latest run with run 3
  prodscrape compare --with-run 3 https://www.i-machine.net/

  # Output the comparison as Markdown
  prodscrape compare --markdown > changes.md`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().Int64P("with-run", "w", 0, "Compare with the run with this ID instead of the previous one")
	cmd.Flags().BoolP("json", "j", false, "Output comparison in JSON format")
	cmd.Flags().BoolP("markdown", "m", false, "Output comparison in Markdown format")
	cmd.Flags().String("db-dir", "", "Directory of the history database (default: XDG data directory)")

	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	withRun, err := cmd.Flags().GetInt64("with-run")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	db, err := openHistoryDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	listing := ""
	if len(args) > 0 {
		listing = args[0]
	}

	previous, current, err := selectRuns(cmd.Context(), db, listing, withRun)
	if err != nil {
		return err
	}

	result := compareRuns(previous, current)
	out := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	case markdownOutput:
		return writeComparisonMarkdown(out, result)
	default:
		writeComparisonText(out, result)
		return nil
	}
}

// selectRuns returns the earlier and the later run to compare.
func selectRuns(ctx context.Context, db *database.RunDB, listing string, withRun int64) (*model.Run, *model.Run, error) {
	current, err := db.LatestRun(ctx, listing)
	if errors.Is(err, database.ErrRunNotFound) {
		return nil, nil, errors.New("no saved runs to compare")
	}
	if err != nil {
		return nil, nil, err
	}

	if withRun != 0 {
		previous, err := db.GetRun(ctx, withRun)
		if err != nil {
			return nil, nil, err
		}
		if previous.ID == current.ID {
			return nil, nil, fmt.Errorf("run #%d is already the latest run", withRun)
		}
		return previous, current, nil
	}

	runs, err := db.ListRuns(ctx, 0)
	if err != nil {
		return nil, nil, err
	}
	for _, meta := range runs {
		if meta.ID != current.ID && meta.ListingURL == current.ListingURL {
			previous, err := db.GetRun(ctx, meta.ID)
			if err != nil {
				return nil, nil, err
			}
			return previous, current, nil
		}
	}
	return nil, nil, fmt.Errorf("at least 2 runs of %s are required for comparison", current.ListingURL)
}

// compareRuns computes the product differences between two runs. Products
// are matched by URL.
func compareRuns(previous, current *model.Run) *Comparison {
	result := &Comparison{
		ListingURL: current.ListingURL,
		Previous:   RunRef{ID: previous.ID, StartedAt: previous.StartedAt, Records: previous.RecordsScraped()},
		Current:    RunRef{ID: current.ID, StartedAt: current.StartedAt, Records: current.RecordsScraped()},
		Added:      make([]ProductRef, 0),
		Removed:    make([]ProductRef, 0),
		Changed:    make([]ProductChange, 0),
	}

	before := indexByURL(previous.Dataset)
	after := indexByURL(current.Dataset)

	for _, rec := range current.Dataset.Records {
		old, ok := before[rec.URL()]
		if !ok {
			result.Added = append(result.Added, productRef(rec))
			continue
		}
		changes := diffFields(old, rec)
		if len(changes) == 0 {
			result.Unchanged++
			continue
		}
		result.Changed = append(result.Changed, ProductChange{
			URL:     rec.URL(),
			Model:   rec.Value(model.KeyModel),
			Changes: changes,
		})
	}

	for _, rec := range previous.Dataset.Records {
		if _, ok := after[rec.URL()]; !ok {
			result.Removed = append(result.Removed, productRef(rec))
		}
	}

	return result
}

func indexByURL(ds *model.Dataset) map[string]*model.Record {
	index := make(map[string]*model.Record, ds.Len())
	for _, rec := range ds.Records {
		if _, dup := index[rec.URL()]; !dup {
			index[rec.URL()] = rec
		}
	}
	return index
}

func productRef(rec *model.Record) ProductRef {
	return ProductRef{URL: rec.URL(), Model: rec.Value(model.KeyModel), Price: rec.Value(model.KeyPrice)}
}

// diffFields compares two records key by key, in the order the keys first
// appear in old then new.
func diffFields(old, cur *model.Record) []FieldChange {
	var changes []FieldChange
	for _, key := range old.Keys() {
		if o, n := old.Value(key), cur.Value(key); o != n {
			changes = append(changes, FieldChange{Key: key, Old: o, New: n})
		}
	}
	for _, key := range cur.Keys() {
		if !old.Has(key) {
			changes = append(changes, FieldChange{Key: key, New: cur.Value(key)})
		}
	}
	return changes
}

// writeComparisonText prints the comparison for the terminal.
func writeComparisonText(out io.Writer, result *Comparison) {
	fmt.Fprintf(out, "Comparison: %s\n\n", result.ListingURL)
	fmt.Fprintf(out, "Previous run: #%d  %s  (%d records)\n",
		result.Previous.ID, result.Previous.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Previous.Records)
	fmt.Fprintf(out, "Current run:  #%d  %s  (%d records)\n",
		result.Current.ID, result.Current.StartedAt.Local().Format("2006-01-02 15:04:05"), result.Current.Records)

	if len(result.Added) > 0 {
		fmt.Fprintf(out, "\nNew products (%d):\n", len(result.Added))
		for _, p := range result.Added {
			fmt.Fprintf(out, "  [+] %s  %s  %s\n", p.Model, p.Price, p.URL)
		}
	}

	if len(result.Removed) > 0 {
		fmt.Fprintf(out, "\nRemoved products (%d):\n", len(result.Removed))
		for _, p := range result.Removed {
			fmt.Fprintf(out, "  [-] %s  %s  %s\n", p.Model, p.Price, p.URL)
		}
	}

	if len(result.Changed) > 0 {
		fmt.Fprintf(out, "\nChanged products (%d):\n", len(result.Changed))
		for _, p := range result.Changed {
			fmt.Fprintf(out, "  [~] %s  %s\n", p.Model, p.URL)
			for _, c := range p.Changes {
				fmt.Fprintf(out, "        %s: %s -> %s\n", c.Key, orDash(c.Old), orDash(c.New))
			}
		}
	}

	fmt.Fprintf(out, "\nUnchanged: %d products\n", result.Unchanged)
}

// writeComparisonMarkdown writes the comparison as a Markdown document.
func writeComparisonMarkdown(out io.Writer, result *Comparison) error {
	md := markdown.NewMarkdown(out)

	md.H1("Product Comparison: " + result.ListingURL)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Run", "Date", "Records"},
		Rows: [][]string{
			{"Previous", fmt.Sprintf("#%d", result.Previous.ID), result.Previous.StartedAt.Format("2006-01-02 15:04"), fmt.Sprint(result.Previous.Records)},
			{"Current", fmt.Sprintf("#%d", result.Current.ID), result.Current.StartedAt.Format("2006-01-02 15:04"), fmt.Sprint(result.Current.Records)},
		},
	})
	md.PlainText("")

	writeProductTable(md, fmt.Sprintf("New Products (%d)", len(result.Added)), result.Added)
	writeProductTable(md, fmt.Sprintf("Removed Products (%d)", len(result.Removed)), result.Removed)

	if len(result.Changed) > 0 {
		md.H2(fmt.Sprintf("Changed Products (%d)", len(result.Changed)))
		md.PlainText("")
		rows := make([][]string, 0, len(result.Changed))
		for _, p := range result.Changed {
			for _, c := range p.Changes {
				rows = append(rows, []string{p.Model, c.Key, orDash(c.Old), orDash(c.New)})
			}
		}
		md.Table(markdown.TableSet{Header: []string{"Model", "Field", "Previous", "Current"}, Rows: rows})
		md.PlainText("")
	}

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*%d products unchanged*", result.Unchanged)

	return md.Build()
}

func writeProductTable(md *markdown.Markdown, title string, products []ProductRef) {
	if len(products) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")
	rows := make([][]string, len(products))
	for i, p := range products {
		rows[i] = []string{p.Model, p.Price, p.URL}
	}
	md.Table(markdown.TableSet{Header: []string{"Model", "Price", "URL"}, Rows: rows})
	md.PlainText("")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
