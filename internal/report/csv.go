package report

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/nao1215/prodscrape/internal/model"
)

// ErrInvalidCSV is returned when an export cannot be read back.
var ErrInvalidCSV = errors.New("invalid CSV export")

// CSVWriter writes the dataset as comma-separated values.
//
// The header is the union of all record keys in first-seen order and each
// record is one row. Keys a record does not have are written as empty
// cells. Failures and run metadata are not part of the CSV.
//
// Design decision: encoding/csv handles quoting of commas, quotes and
// newlines inside cell values, which product descriptions contain.
type CSVWriter struct {
	baseWriter
}

// NewCSVWriter creates a CSVWriter that outputs to the given writer.
func NewCSVWriter(output io.Writer) *CSVWriter {
	return &CSVWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the run's dataset. An empty dataset writes nothing.
func (w *CSVWriter) Write(run *model.Run) (int, error) {
	return w.WriteDataset(run.Dataset)
}

// WriteDataset outputs a dataset without run metadata.
func (w *CSVWriter) WriteDataset(dataset *model.Dataset) (int, error) {
	if dataset.IsEmpty() {
		return 0, nil
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(dataset.Columns()); err != nil {
		return 0, err
	}
	if err := cw.WriteAll(dataset.Rows()); err != nil {
		return 0, err
	}

	return w.output.Write(buf.Bytes())
}

// ReadCSV parses a CSVWriter export back into a dataset.
//
// An empty cell becomes an absent key. A key that was present with an
// empty value therefore does not survive the round trip, since both are
// written as empty cells. Literal values such as "N/A" are kept as is.
func ReadCSV(r io.Reader) (*model.Dataset, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrInvalidCSV)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	dataset := model.NewDataset()
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCSV, err)
		}

		record := &model.Record{}
		for i, value := range row {
			if value == "" {
				continue
			}
			record.Set(header[i], value)
		}
		dataset.Append(record)
	}

	return dataset, nil
}

// checkHeader rejects duplicate column names. A single empty name is
// allowed: a detail row such as ": 220V" is stored under the empty key.
func checkHeader(header []string) error {
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		if seen[name] && name == "" {
			return fmt.Errorf("%w: more than one empty column name (position %d)", ErrInvalidCSV, i+1)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidCSV, name)
		}
		seen[name] = true
	}
	return nil
}
