package config

import "time"

// SiteConfig holds configuration for a single catalog host.
type SiteConfig struct {
	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie to send to this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// Delay overrides the pause between product pages. Zero means unset.
	Delay time.Duration `yaml:"delay,omitempty"`

	// Selectors override individual CSS locators.
	Selectors Selectors `yaml:"selectors,omitempty"`
}

// Selectors are CSS selector overrides. Empty fields keep the built-in
// locator.
type Selectors struct {
	Product       string `yaml:"product,omitempty"`
	Anchor        string `yaml:"anchor,omitempty"`
	Model         string `yaml:"model,omitempty"`
	Price         string `yaml:"price,omitempty"`
	Detail        string `yaml:"detail,omitempty"`
	Specification string `yaml:"specification,omitempty"`
}

// File represents the structure of the .prodscrape configuration file.
type File struct {
	// Sites maps host names (e.g. "www.i-machine.net") to their
	// configuration.
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults apply to every site unless overridden in Sites.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for host merged over the
// defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	// Copy so merging never mutates the defaults.
	if cf.Defaults.Headers != nil {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	siteConfig, ok := cf.Sites[host]
	if !ok {
		return result
	}

	if siteConfig.UserAgent != "" {
		result.UserAgent = siteConfig.UserAgent
	}
	if siteConfig.Cookie != "" {
		result.Cookie = siteConfig.Cookie
	}
	if siteConfig.Delay != 0 {
		result.Delay = siteConfig.Delay
	}
	if len(siteConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range siteConfig.Headers {
			result.Headers[k] = v
		}
	}
	result.Selectors = result.Selectors.merge(siteConfig.Selectors)

	return result
}

func (s Selectors) merge(override Selectors) Selectors {
	pick := func(base, over string) string {
		if over != "" {
			return over
		}
		return base
	}
	return Selectors{
		Product:       pick(s.Product, override.Product),
		Anchor:        pick(s.Anchor, override.Anchor),
		Model:         pick(s.Model, override.Model),
		Price:         pick(s.Price, override.Price),
		Detail:        pick(s.Detail, override.Detail),
		Specification: pick(s.Specification, override.Specification),
	}
}
