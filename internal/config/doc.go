// Package config provides configuration structures and utilities for
// prodscrape: crawl settings, export preferences, the optional YAML file
// with per-site overrides, and XDG directories.
package config
