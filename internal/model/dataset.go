package model

// Dataset is the ordered collection of records produced by one crawl.
// Records appear in the same relative order as the links they came from;
// pages that failed leave no entry.
type Dataset struct {
	// Records holds one entry per successfully scraped page.
	Records []*Record `json:"records"`
}

// NewDataset creates an empty dataset.
func NewDataset() *Dataset {
	return &Dataset{
		Records: make([]*Record, 0),
	}
}

// Append adds a record to the end of the dataset. Nil records are ignored.
func (d *Dataset) Append(r *Record) {
	if r == nil {
		return
	}
	d.Records = append(d.Records, r)
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// IsEmpty reports whether the dataset has no records.
func (d *Dataset) IsEmpty() bool {
	return d.Len() == 0
}

// Columns returns the union of all record keys in first-seen order.
// This is the header used for tabular exports.
func (d *Dataset) Columns() []string {
	if d == nil {
		return nil
	}

	seen := make(map[string]bool)
	columns := make([]string, 0)
	for _, r := range d.Records {
		for _, k := range r.keys {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	return columns
}

// Rows returns the dataset as a table aligned to Columns.
// Cells for keys a record does not have are empty strings.
func (d *Dataset) Rows() [][]string {
	columns := d.Columns()
	rows := make([][]string, 0, d.Len())
	if d == nil {
		return rows
	}

	for _, r := range d.Records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = r.Value(c)
		}
		rows = append(rows, row)
	}
	return rows
}
