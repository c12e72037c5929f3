package dataset

import "fmt"

// Merge aligns right onto left by the values of joinColumn and returns a new
// table. Both inputs are left unchanged.
//
// Semantics are an outer join where the left side wins:
//   - result columns are left's columns followed by columns that exist only
//     on the right
//   - left rows keep their order and their values; a matching right row (the
//     k-th occurrence of a join value on the left matches the k-th occurrence
//     on the right) contributes values for right-only columns
//   - left rows with no match get Missing in right-only columns
//   - right rows with no match are appended after the left rows, with Missing
//     in columns the right side does not have
func Merge(left, right *Table, joinColumn string) (*Table, error) {
	if !left.HasColumn(joinColumn) {
		return nil, fmt.Errorf("join column %q not found in left table", joinColumn)
	}
	if !right.HasColumn(joinColumn) {
		return nil, fmt.Errorf("join column %q not found in right table", joinColumn)
	}

	var rightOnly []string
	columns := left.Columns()
	for _, c := range right.Columns() {
		if !left.HasColumn(c) {
			rightOnly = append(rightOnly, c)
			columns = append(columns, c)
		}
	}

	// Index right rows by join value, in order of occurrence.
	rightRows := make(map[string][]int)
	for j := 0; j < right.NumRows(); j++ {
		v, err := right.Get(j, joinColumn)
		if err != nil {
			return nil, err
		}
		rightRows[v] = append(rightRows[v], j)
	}

	out := New(columns)
	used := make([]bool, right.NumRows())
	next := make(map[string]int)

	for i := 0; i < left.NumRows(); i++ {
		row, err := left.Row(i)
		if err != nil {
			return nil, err
		}
		v, err := left.Get(i, joinColumn)
		if err != nil {
			return nil, err
		}
		matches := rightRows[v]
		if k := next[v]; k < len(matches) {
			j := matches[k]
			next[v] = k + 1
			used[j] = true
			for _, c := range rightOnly {
				cell, err := right.Get(j, c)
				if err != nil {
					return nil, err
				}
				row = append(row, cell)
			}
		} else {
			for range rightOnly {
				row = append(row, Missing)
			}
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}

	// Unmatched right rows are adopted at the end.
	for j := 0; j < right.NumRows(); j++ {
		if used[j] {
			continue
		}
		row := make([]string, 0, len(columns))
		for _, c := range columns {
			if right.HasColumn(c) {
				cell, err := right.Get(j, c)
				if err != nil {
					return nil, err
				}
				row = append(row, cell)
			} else {
				row = append(row, Missing)
			}
		}
		if err := out.AppendRow(row); err != nil {
			return nil, err
		}
	}

	return out, nil
}
