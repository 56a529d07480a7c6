package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Well-known record keys.
const (
	// KeyURL holds the product page URL the record was extracted from.
	KeyURL = "URL"

	// KeyModel holds the product model heading.
	KeyModel = "Model"

	// KeyPrice holds the displayed price text.
	KeyPrice = "Price"

	// KeySpecification holds the highlighted specification text, if any.
	KeySpecification = "Specification"

	// AdditionalInfoPrefix prefixes keys synthesized for detail rows
	// that carry no "key: value" separator.
	AdditionalInfoPrefix = "Additional Info "
)

// NotAvailable is stored for required fields whose locator matched nothing.
const NotAvailable = "N/A"

// ErrInvalidRecordJSON is returned when a record cannot be decoded from JSON.
var ErrInvalidRecordJSON = errors.New("invalid record JSON: expected an object of string values")

// Record is the set of fields extracted from one product page.
// Keys keep their first insertion order. Setting an existing key replaces
// the value without moving the key.
//
// Design decision: We keep an explicit key slice next to the map because
// the CSV header and the synthesized "Additional Info N" keys both depend
// on insertion order, which a plain Go map does not preserve.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord creates a record whose first field is the source URL.
func NewRecord(pageURL string) *Record {
	r := &Record{
		keys:   make([]string, 0, 8),
		values: make(map[string]string, 8),
	}
	r.Set(KeyURL, pageURL)
	return r
}

// Set stores value under key. Last write wins.
func (r *Record) Set(key, value string) {
	if r.values == nil {
		r.values = make(map[string]string)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

// Get returns the value stored under key and whether it is present.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Value returns the value stored under key, or an empty string.
func (r *Record) Value(key string) string {
	return r.values[key]
}

// Has reports whether key is present.
func (r *Record) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Len returns the number of keys currently in the record.
func (r *Record) Len() int {
	return len(r.keys)
}

// Keys returns the keys in insertion order.
// The returned slice is a copy.
func (r *Record) Keys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// URL returns the source page URL.
func (r *Record) URL() string {
	return r.values[KeyURL]
}

// Fields returns the record as key/value pairs in insertion order.
func (r *Record) Fields() []Field {
	fields := make([]Field, len(r.keys))
	for i, k := range r.keys {
		fields[i] = Field{Key: k, Value: r.values[k]}
	}
	return fields
}

// Field is a single key/value pair of a record.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MarshalJSON encodes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping the key order of the input.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrInvalidRecordJSON
	}

	r.keys = make([]string, 0, 8)
	r.values = make(map[string]string, 8)

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return ErrInvalidRecordJSON
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("%w: key %q: %v", ErrInvalidRecordJSON, key, err)
		}
		r.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}
