package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultListingURL is the catalog page product links are read from.
	DefaultListingURL = "https://www.i-machine.net/"

	// DefaultOrigin is prepended to relative product links.
	DefaultOrigin = "https://www.i-machine.net"

	// DefaultTimeout bounds each HTTP request. 0 disables the bound.
	DefaultTimeout = 60 * time.Second

	// DefaultDelay is the pause after each product page.
	// 1 second keeps the load on the catalog site low.
	DefaultDelay = 1 * time.Second

	// DefaultUserAgent is a desktop browser User-Agent. Some catalog sites
	// serve reduced markup to unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/115.0"

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultOutputFile is where the dataset is written.
	DefaultOutputFile = "i_machine_product_data.csv"

	// StdoutOutput selects standard output instead of a file.
	StdoutOutput = "-"

	// AppName is the application name used for XDG directory paths.
	AppName = "prodscrape"
)

// Output formats.
const (
	FormatCSV      = "csv"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Formats lists the supported output formats.
func Formats() []string {
	return []string{FormatCSV, FormatJSON, FormatMarkdown}
}

// Config holds all configuration options for a scrape.
// It is populated from CLI flags and the config file and passed through the
// application instead of living in global state.
//
// Design decision: a single flat struct, as the number of options is small.
type Config struct {
	// ListingURL is the page product containers are read from.
	ListingURL string

	// Origin is the base URL for relative product links. Empty means the
	// scheme and host of ListingURL.
	Origin string

	// Timeout bounds each HTTP request. 0 means no per-request timeout.
	Timeout time.Duration

	// Delay is the pause after each product page.
	Delay time.Duration

	// UserAgent is the User-Agent header sent with HTTP requests.
	UserAgent string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use the default (5MB).
	MaxBodySize int64

	// StrictStatus turns non-2xx product pages into skipped pages and a
	// non-2xx listing page into a discovery failure. By default error pages
	// are parsed like any other page.
	StrictStatus bool

	// SkipInvalid makes discovery skip product containers without a link
	// instead of failing.
	SkipInvalid bool

	// Format is the output format: csv, json or markdown.
	Format string

	// OutputFile is the export path. "-" writes to stdout.
	OutputFile string

	// NoProgress disables the spinner and progress bar.
	NoProgress bool

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, the usual locations are searched (see FindConfigFile).
	ConfigFilePath string

	// SiteConfigs holds site-specific configurations loaded from the config file.
	SiteConfigs *File

	// DBDir is the directory of the SQLite run history.
	// Defaults to the XDG data directory (~/.local/share/prodscrape on Linux).
	DBDir string

	// SaveToDB stores every run in the history database.
	SaveToDB bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ListingURL:  DefaultListingURL,
		Timeout:     DefaultTimeout,
		Delay:       DefaultDelay,
		UserAgent:   DefaultUserAgent,
		MaxBodySize: DefaultMaxBodySize,
		Format:      FormatCSV,
		OutputFile:  DefaultOutputFile,
		DBDir:       XDGDataDir(),
		SaveToDB:    true,
	}
}

// XDGDataDir returns the XDG data directory for prodscrape.
// On Linux: ~/.local/share/prodscrape
// On macOS: ~/Library/Application Support/prodscrape
// On Windows: %LOCALAPPDATA%\prodscrape
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for prodscrape.
// On Linux: ~/.config/prodscrape
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// EffectiveOrigin returns Origin, or the scheme and host of ListingURL when
// Origin is empty.
func (c *Config) EffectiveOrigin() string {
	if c.Origin != "" {
		return strings.TrimSuffix(c.Origin, "/")
	}
	u, err := url.Parse(c.ListingURL)
	if err != nil || u.Host == "" {
		return DefaultOrigin
	}
	return u.Scheme + "://" + u.Host
}

// Site returns the merged site configuration for the listing URL host.
// The zero SiteConfig is returned when no config file was loaded.
func (c *Config) Site() SiteConfig {
	if c.SiteConfigs == nil {
		return SiteConfig{}
	}
	host := ""
	if u, err := url.Parse(c.ListingURL); err == nil {
		host = u.Hostname()
	}
	return c.SiteConfigs.GetSiteConfig(host)
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListingURL) == "" {
		return ErrNoListingURL
	}
	if !isHTTPURL(c.ListingURL) {
		return ErrInvalidListingURL
	}

	if c.Origin != "" && !isOriginURL(c.Origin) {
		return ErrInvalidOrigin
	}

	if c.Timeout < 0 {
		return ErrInvalidTimeout
	}

	if c.Delay < 0 {
		return ErrInvalidDelay
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if !isSupportedFormat(c.Format) {
		return ErrUnsupportedFormat
	}

	if strings.TrimSpace(c.OutputFile) == "" {
		return ErrNoOutputFile
	}

	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isOriginURL reports whether raw is a scheme and host with nothing after
// them except an optional trailing slash. Relative hrefs are resolved
// against the host root, so a path in the origin would be dropped.
func isOriginURL(raw string) bool {
	if !isHTTPURL(raw) {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Path == "" || u.Path == "/") && u.RawQuery == "" && u.Fragment == ""
}

func isSupportedFormat(format string) bool {
	for _, f := range Formats() {
		if f == format {
			return true
		}
	}
	return false
}
