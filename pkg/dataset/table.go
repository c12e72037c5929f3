package dataset

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Missing is the sentinel stored in cells that have no usable value.
// Unprocessed output cells always hold this sentinel rather than being
// absent from the column.
const Missing = "NA"

// IsMissing reports whether a cell value counts as missing. Empty and
// whitespace-only values are treated the same as the sentinel.
func IsMissing(v string) bool {
	return v == Missing || strings.TrimSpace(v) == ""
}

// Table is an ordered, row-aligned collection of string columns. Rows are
// addressed by index, columns by name. All cells are text.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New creates an empty table with the given column order.
func New(columns []string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		t.index[c] = i
	}
	return t
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

func (t *Table) NumRows() int {
	return len(t.rows)
}

func (t *Table) NumColumns() int {
	return len(t.columns)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's values.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	values := make([]string, len(t.rows))
	for r, row := range t.rows {
		values[r] = row[i]
	}
	return values, nil
}

// AddColumn appends a new column filled with the given value.
func (t *Table) AddColumn(name, fill string) error {
	if _, ok := t.index[name]; ok {
		return fmt.Errorf("column %q already exists", name)
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, name)
	for r := range t.rows {
		t.rows[r] = append(t.rows[r], fill)
	}
	return nil
}

// EnsureColumn adds the column filled with Missing if it does not exist yet.
func (t *Table) EnsureColumn(name string) {
	if !t.HasColumn(name) {
		t.AddColumn(name, Missing)
	}
}

// Get returns the cell at (row, column).
func (t *Table) Get(row int, column string) (string, error) {
	i, ok := t.index[column]
	if !ok {
		return "", fmt.Errorf("column %q not found", column)
	}
	if row < 0 || row >= len(t.rows) {
		return "", fmt.Errorf("row %d out of range (%d rows)", row, len(t.rows))
	}
	return t.rows[row][i], nil
}

// Set writes the cell at (row, column).
func (t *Table) Set(row int, column, value string) error {
	i, ok := t.index[column]
	if !ok {
		return fmt.Errorf("column %q not found", column)
	}
	if row < 0 || row >= len(t.rows) {
		return fmt.Errorf("row %d out of range (%d rows)", row, len(t.rows))
	}
	t.rows[row][i] = value
	return nil
}

// AppendRow adds a row. The value count must match the column count.
func (t *Table) AppendRow(values []string) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.columns))
	}
	t.rows = append(t.rows, append([]string(nil), values...))
	return nil
}

// Row returns a copy of the row at the given index.
func (t *Table) Row(i int) ([]string, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("row %d out of range (%d rows)", i, len(t.rows))
	}
	return append([]string(nil), t.rows[i]...), nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := New(t.columns)
	for _, row := range t.rows {
		c.rows = append(c.rows, append([]string(nil), row...))
	}
	return c
}

type tableJSON struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// MarshalJSON serializes the table with explicit column order so the
// checkpoint store round-trips losslessly.
func (t *Table) MarshalJSON() ([]byte, error) {
	doc := tableJSON{Columns: t.columns, Rows: t.rows}
	if doc.Columns == nil {
		doc.Columns = []string{}
	}
	if doc.Rows == nil {
		doc.Rows = [][]string{}
	}
	return json.Marshal(doc)
}

func (t *Table) UnmarshalJSON(data []byte) error {
	var doc tableJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	*t = *New(doc.Columns)
	for _, row := range doc.Rows {
		if err := t.AppendRow(row); err != nil {
			return err
		}
	}
	return nil
}
