package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadCSV reads a delimited table with a header row.
func ReadCSV(r io.Reader, comma rune) (*Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading records: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no header row found")
	}

	t := New(records[0])
	for i, rec := range records[1:] {
		// Ragged rows are padded with the missing sentinel.
		for len(rec) < t.NumColumns() {
			rec = append(rec, Missing)
		}
		if err := t.AppendRow(rec[:t.NumColumns()]); err != nil {
			return nil, fmt.Errorf("error on row %d: %w", i+1, err)
		}
	}
	return t, nil
}

// WriteCSV writes the table with a header row.
func WriteCSV(w io.Writer, t *Table, comma rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma
	if err := writer.Write(t.Columns()); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for i := 0; i < t.NumRows(); i++ {
		row, err := t.Row(i)
		if err != nil {
			return err
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Read parses a table from a stream in the named format (csv, tsv, xlsx).
// Object-store sources use this to avoid staging temp files.
func Read(r io.Reader, format string) (*Table, error) {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "csv":
		return ReadCSV(r, ',')
	case "tsv":
		return ReadCSV(r, '\t')
	case "xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("error opening workbook: %w", err)
		}
		defer f.Close()
		return readFirstSheet(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", format)
	}
}

// ReadFile loads a table from disk, picking the format by extension
// (.csv, .tsv, .xlsx).
func ReadFile(path string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, ',')
	case ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("error opening %s: %w", path, err)
		}
		defer f.Close()
		return ReadCSV(f, '\t')
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
}

// WriteFile saves a table to disk, picking the format by extension.
func WriteFile(path string, t *Table) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating %s: %w", path, err)
		}
		defer f.Close()
		return WriteCSV(f, t, ',')
	case ".tsv":
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating %s: %w", path, err)
		}
		defer f.Close()
		return WriteCSV(f, t, '\t')
	case ".xlsx":
		return writeXLSX(path, t)
	default:
		return fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
}

func readXLSX(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening workbook %s: %w", path, err)
	}
	defer f.Close()
	return readFirstSheet(f)
}

func readFirstSheet(f *excelize.File) (*Table, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("error reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %s has no header row", sheets[0])
	}

	t := New(rows[0])
	for i, rec := range rows[1:] {
		for len(rec) < t.NumColumns() {
			rec = append(rec, Missing)
		}
		if err := t.AppendRow(rec[:t.NumColumns()]); err != nil {
			return nil, fmt.Errorf("error on row %d: %w", i+1, err)
		}
	}
	return t, nil
}

func writeXLSX(path string, t *Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	header := make([]interface{}, t.NumColumns())
	for i, c := range t.Columns() {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for i := 0; i < t.NumRows(); i++ {
		row, err := t.Row(i)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("error computing cell name: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("error writing row %d: %w", i, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("error saving workbook %s: %w", path, err)
	}
	return nil
}
