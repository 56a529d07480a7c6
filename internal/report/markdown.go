package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/nao1215/prodscrape/internal/model"
)

// MarkdownWriter outputs runs in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for markdown
// generation, which gives us tables and GitHub-flavored alerts without
// hand-built pipes and escaping rules.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run as a Markdown document.
func (w *MarkdownWriter) Write(run *model.Run) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, run)
	w.writeAlert(md, run)
	w.writeProducts(md, run.Dataset)
	w.writeFailures(md, run.Failures)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, run *model.Run) {
	summary := Summarize(run)

	md.H1("Product Data")
	md.PlainText("")

	started := "-"
	if !run.StartedAt.IsZero() {
		started = run.StartedAt.Format("2006-01-02 15:04:05 MST")
	}
	listing := "-"
	if summary.ListingURL != "" {
		listing = "`" + summary.ListingURL + "`"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Listing URL", listing},
			{"Started", started},
			{"Duration", summary.Duration.Round(time.Millisecond).String()},
			{"Links Found", strconv.Itoa(summary.LinksFound)},
			{"Records Scraped", strconv.Itoa(summary.RecordsScraped)},
			{"Failed Pages", strconv.Itoa(summary.PagesFailed)},
			{"Status", summary.Status},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, run *model.Run) {
	switch {
	case run.Failed():
		md.Cautionf("The run aborted: %s", run.Error)
	case run.Dataset.IsEmpty():
		md.Warningf("No data was scraped. Please check the log for error messages.")
	case run.Interrupted:
		md.Importantf("The run was interrupted after %d of %d product pages.",
			run.RecordsScraped()+len(run.Failures), run.LinksFound())
	case len(run.Failures) > 0:
		md.Note("Some product pages could not be scraped. See Failed Pages below.")
	default:
		md.Tip("All product pages were scraped.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeProducts(md *markdown.Markdown, dataset *model.Dataset) {
	md.H2("Products")
	md.PlainText("")

	if dataset.IsEmpty() {
		md.PlainText("No records.")
		md.PlainText("")
		return
	}

	columns := dataset.Columns()
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = escapeCell(c)
	}

	rows := dataset.Rows()
	for _, row := range rows {
		for i, cell := range row {
			row[i] = escapeCell(cell)
		}
	}

	md.Table(markdown.TableSet{Header: header, Rows: rows})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFailures(md *markdown.Markdown, failures []model.Failure) {
	if len(failures) == 0 {
		return
	}

	md.H2("Failed Pages")
	md.PlainText("")

	rows := make([][]string, len(failures))
	for i, f := range failures {
		rows[i] = []string{strconv.Itoa(f.Index), escapeCell(f.URL), escapeCell(truncateString(f.Reason, 120))}
	}
	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by prodscrape*")
}

// escapeCell keeps a value on one table row.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	return strings.ReplaceAll(s, "\n", "<br>")
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
