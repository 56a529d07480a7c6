package crawler

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/nao1215/prodscrape/internal/model"
)

// ErrNilDocument is returned when an extractor receives no document.
var ErrNilDocument = errors.New("nil document")

// Extractor builds a record from a product page.
type Extractor interface {
	Extract(doc *Document) (*model.Record, error)
}

// FieldExtractor pulls model, price, detail lines and the specification
// out of a product page.
//
// Key order in the produced record is always URL, Model, Price, the detail
// keys in document order, then Specification. A detail key that repeats an
// earlier one overwrites its value in place.
type FieldExtractor struct {
	rules *compiledRules
}

// NewFieldExtractor creates a FieldExtractor from rules.
func NewFieldExtractor(rules Rules) (*FieldExtractor, error) {
	compiled, err := rules.compile()
	if err != nil {
		return nil, err
	}
	return &FieldExtractor{rules: compiled}, nil
}

// Extract builds the record for doc. Missing model or price become "N/A";
// a missing specification is omitted.
func (e *FieldExtractor) Extract(doc *Document) (*model.Record, error) {
	if doc == nil {
		return nil, ErrNilDocument
	}

	record := model.NewRecord(doc.URL)
	record.Set(model.KeyModel, firstText(doc, e.rules.model, model.NotAvailable))
	record.Set(model.KeyPrice, firstText(doc, e.rules.price, model.NotAvailable))

	doc.findMatcher(e.rules.detail).Each(func(_ int, s *goquery.Selection) {
		addDetail(record, cleanText(s))
	})

	if spec := doc.findMatcher(e.rules.specification).First(); spec.Length() > 0 {
		record.Set(model.KeySpecification, cleanText(spec))
	}

	return record, nil
}

// addDetail stores one detail line. "Key: Value" lines are split on the
// first colon. Lines without a colon are stored under "Additional Info N",
// where N is the number of keys in the record at that moment.
func addDetail(record *model.Record, text string) {
	if key, value, ok := strings.Cut(text, ":"); ok {
		record.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		return
	}
	record.Set(fmt.Sprintf("%s%d", model.AdditionalInfoPrefix, record.Len()), text)
}

func firstText(doc *Document, m goquery.Matcher, fallback string) string {
	sel := doc.findMatcher(m).First()
	if sel.Length() == 0 {
		return fallback
	}
	return cleanText(sel)
}

// cleanText is the concatenated text of a selection with surrounding
// whitespace removed.
func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
