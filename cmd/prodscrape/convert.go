package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nao1215/prodscrape/internal/config"
	"github.com/nao1215/prodscrape/internal/model"
	"github.com/nao1215/prodscrape/internal/report"
)

// NewConvertCmd creates the convert command.
func NewConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <file.csv>",
		Short: "Convert an exported CSV file to JSON or Markdown",
		Long: `Convert reads a CSV file written by 'prodscrape scrape' and writes the
same records in another format.

Empty cells are read as absent fields, so a field that was scraped with an
empty value does not survive the conversion. "N/A" values are kept as is.

Examples:
  # Print the CSV export as a Markdown table
  prodscrape convert i_machine_product_data.csv -f markdown

  # Write JSON to a file
  prodscrape convert i_machine_product_data.csv -f json -o products.json`,
		Args: cobra.ExactArgs(1),
		RunE: runConvertCmd,
	}

	cmd.Flags().StringP("format", "f", config.FormatJSON,
		"Output format: "+strings.Join(config.Formats(), ", "))
	cmd.Flags().StringP("output", "o", config.StdoutOutput, `Output file path ("-" for stdout)`)

	return cmd
}

// runConvertCmd executes the convert command.
func runConvertCmd(cmd *cobra.Command, args []string) (err error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if !isKnownFormat(format) {
		return fmt.Errorf("%w: %q", config.ErrUnsupportedFormat, format)
	}

	in, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer in.Close()

	dataset, err := report.ReadCSV(in)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	run := model.NewRun("")
	run.FinishedAt = run.StartedAt
	run.Dataset = dataset
	for _, rec := range dataset.Records {
		run.Links = append(run.Links, rec.URL())
	}

	out, err := openOutput(output, cmd.OutOrStdout())()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w, err := report.New(format, out)
	if err != nil {
		return err
	}
	if _, err := w.Write(run); err != nil {
		return fmt.Errorf("failed to write %s: %w", format, err)
	}

	if output != config.StdoutOutput {
		fmt.Fprintf(cmd.ErrOrStderr(), "Converted %d records to %s\n", dataset.Len(), output)
	}
	return nil
}
