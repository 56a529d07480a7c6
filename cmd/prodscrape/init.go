package main

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/prodscrape/internal/config"
)

//go:embed templates/prodscrape.yaml
var configTemplate []byte

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a prodscrape configuration file",
		Long: `Init writes a commented .prodscrape configuration file with the
default catalog selectors and examples of per-site cookies, headers and
delays.

scrape reads the first file it finds among ./.prodscrape, ~/.prodscrape and
the XDG config file, so init tells you when another file would be read
instead of the new one.

Examples:
  # Create .prodscrape in the current directory
  prodscrape init

  # Create the XDG config file (~/.config/prodscrape/config.yaml on Linux)
  prodscrape init --xdg

  # Overwrite an existing file
  prodscrape init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile, "Output file path for the configuration")
	cmd.Flags().Bool("xdg", false, "Write to the XDG config directory instead of --output")
	cmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")

	cmd.MarkFlagsMutuallyExclusive("output", "xdg")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if useXDG {
		outputPath = filepath.Join(config.XDGConfigDir(), "config.yaml")
	}

	if err := writeConfigTemplate(outputPath, force); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	if active := shadowingConfig(outputPath, config.FindConfigFile); active != "" {
		fmt.Fprintf(out, "Note: 'prodscrape scrape' reads %s first; pass -c %s to use the new file.\n",
			active, outputPath)
	}
	printTemplateHints(out)

	return nil
}

// writeConfigTemplate writes the embedded template to path. An existing
// file is only replaced when force is set.
func writeConfigTemplate(path string, force bool) error {
	if !force {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", path)
		case !errors.Is(err, fs.ErrNotExist):
			return fmt.Errorf("failed to check %s: %w", path, err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// 0600: the file may hold cookies and authorization headers.
	if err := os.WriteFile(path, configTemplate, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}
	return nil
}

// shadowingConfig returns the config file scrape would load instead of
// written, or "" when written is the one found first.
func shadowingConfig(written string, find func(string) string) string {
	active := find("")
	if active == "" {
		return ""
	}
	a, errA := filepath.Abs(active)
	w, errW := filepath.Abs(written)
	if errA == nil && errW == nil && a == w {
		return ""
	}
	return active
}

func printTemplateHints(out io.Writer) {
	fmt.Fprintln(out, "\nEdit this file to configure per-site settings such as:")
	fmt.Fprintln(out, "  - Cookies and request headers")
	fmt.Fprintln(out, "  - The delay between product pages")
	fmt.Fprintln(out, "  - CSS selectors for product fields")
}
