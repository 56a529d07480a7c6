package crawler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

// ErrInvalidSelector is returned when a rule is not a valid CSS selector.
var ErrInvalidSelector = errors.New("invalid CSS selector")

// Rules are the CSS selectors that locate data on catalog pages.
//
// The defaults describe i-machine.net. Multi-class locators are written as
// compound class selectors, so an element carrying the classes in a
// different order or with extra classes still matches.
type Rules struct {
	// Product matches one container per product on the listing page.
	Product string

	// Anchor matches the link inside a product container. The first match
	// is used.
	Anchor string

	// Model matches the model heading on a product page.
	Model string

	// Price matches the price block on a product page.
	Price string

	// Detail matches every "Key: Value" detail line on a product page.
	Detail string

	// Specification matches the highlighted specification line.
	Specification string
}

// DefaultRules returns the selectors for i-machine.net.
func DefaultRules() Rules {
	return Rules{
		Product:       "div.product",
		Anchor:        "a",
		Model:         `h1[style="margin: auto;"]`,
		Price:         "div.col-xs-12.color_orange.fs36.bolder.detailresfs3",
		Detail:        "div.col-xs-12.paddTB10.product_detail_divider.paddL20",
		Specification: `span[style="font-weight: bolder;color: red;"]`,
	}
}

// Merge returns r with every non-empty field of override applied.
func (r Rules) Merge(override Rules) Rules {
	merged := r
	if s := strings.TrimSpace(override.Product); s != "" {
		merged.Product = s
	}
	if s := strings.TrimSpace(override.Anchor); s != "" {
		merged.Anchor = s
	}
	if s := strings.TrimSpace(override.Model); s != "" {
		merged.Model = s
	}
	if s := strings.TrimSpace(override.Price); s != "" {
		merged.Price = s
	}
	if s := strings.TrimSpace(override.Detail); s != "" {
		merged.Detail = s
	}
	if s := strings.TrimSpace(override.Specification); s != "" {
		merged.Specification = s
	}
	return merged
}

// Validate checks that every selector compiles.
func (r Rules) Validate() error {
	_, err := r.compile()
	return err
}

// compiledRules holds selectors ready for matching.
type compiledRules struct {
	product       goquery.Matcher
	anchor        goquery.Matcher
	model         goquery.Matcher
	price         goquery.Matcher
	detail        goquery.Matcher
	specification goquery.Matcher
}

func (r Rules) compile() (*compiledRules, error) {
	var c compiledRules
	targets := []struct {
		name     string
		selector string
		dst      *goquery.Matcher
	}{
		{"product", r.Product, &c.product},
		{"anchor", r.Anchor, &c.anchor},
		{"model", r.Model, &c.model},
		{"price", r.Price, &c.price},
		{"detail", r.Detail, &c.detail},
		{"specification", r.Specification, &c.specification},
	}

	for _, t := range targets {
		if strings.TrimSpace(t.selector) == "" {
			return nil, fmt.Errorf("%w: %s selector is empty", ErrInvalidSelector, t.name)
		}
		sel, err := cascadia.Compile(t.selector)
		if err != nil {
			return nil, fmt.Errorf("%w: %s selector %q: %w", ErrInvalidSelector, t.name, t.selector, err)
		}
		*t.dst = sel
	}

	return &c, nil
}
