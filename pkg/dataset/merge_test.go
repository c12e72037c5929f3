package dataset

import "testing"

func mustTable(t *testing.T, columns []string, rows ...[]string) *Table {
	t.Helper()
	tbl := New(columns)
	for _, r := range rows {
		if err := tbl.AppendRow(r); err != nil {
			t.Fatalf("AppendRow(%v) error = %v", r, err)
		}
	}
	return tbl
}

func TestMergeAdoptsRightOnlyColumns(t *testing.T) {
	left := mustTable(t, []string{"id", "text"},
		[]string{"1", "alpha"},
		[]string{"2", "beta"},
	)
	right := mustTable(t, []string{"id", "text_sent1"},
		[]string{"1", "positive"},
		[]string{"2", "negative"},
	)

	out, err := Merge(left, right, "id")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	if out.NumRows() != 2 || out.NumColumns() != 3 {
		t.Fatalf("got %dx%d, want 2x3", out.NumRows(), out.NumColumns())
	}
	v, _ := out.Get(0, "text_sent1")
	if v != "positive" {
		t.Errorf("row 0 text_sent1 = %q, want positive", v)
	}
	v, _ = out.Get(1, "text")
	if v != "beta" {
		t.Errorf("left values must survive: got %q", v)
	}
}

func TestMergeLeftWinsOnConflict(t *testing.T) {
	left := mustTable(t, []string{"id", "text"},
		[]string{"1", "left value"},
	)
	right := mustTable(t, []string{"id", "text"},
		[]string{"1", "right value"},
	)

	out, err := Merge(left, right, "id")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if out.NumColumns() != 2 {
		t.Fatalf("NumColumns() = %d, want 2", out.NumColumns())
	}
	v, _ := out.Get(0, "text")
	if v != "left value" {
		t.Errorf("conflicting column = %q, want left value", v)
	}
}

func TestMergeUnmatchedRows(t *testing.T) {
	left := mustTable(t, []string{"id", "note"},
		[]string{"1", "only left"},
	)
	right := mustTable(t, []string{"id", "score"},
		[]string{"2", "only right"},
	)

	out, err := Merge(left, right, "id")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", out.NumRows())
	}

	// Left row with no match gets Missing in adopted columns.
	v, _ := out.Get(0, "score")
	if v != Missing {
		t.Errorf("unmatched left score = %q, want %q", v, Missing)
	}

	// Right row with no match is appended with Missing in left-only columns.
	v, _ = out.Get(1, "id")
	if v != "2" {
		t.Errorf("appended right id = %q, want 2", v)
	}
	v, _ = out.Get(1, "note")
	if v != Missing {
		t.Errorf("appended right note = %q, want %q", v, Missing)
	}
	v, _ = out.Get(1, "score")
	if v != "only right" {
		t.Errorf("appended right score = %q, want only right", v)
	}
}

func TestMergeDuplicateJoinValues(t *testing.T) {
	left := mustTable(t, []string{"k", "pos"},
		[]string{"x", "first"},
		[]string{"x", "second"},
	)
	right := mustTable(t, []string{"k", "out"},
		[]string{"x", "A"},
		[]string{"x", "B"},
	)

	out, err := Merge(left, right, "k")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("NumRows() = %d, want 2", out.NumRows())
	}
	v, _ := out.Get(0, "out")
	if v != "A" {
		t.Errorf("first occurrence = %q, want A", v)
	}
	v, _ = out.Get(1, "out")
	if v != "B" {
		t.Errorf("second occurrence = %q, want B", v)
	}
}

func TestMergeMissingJoinColumn(t *testing.T) {
	left := mustTable(t, []string{"a"}, []string{"1"})
	right := mustTable(t, []string{"b"}, []string{"2"})

	if _, err := Merge(left, right, "a"); err == nil {
		t.Error("Merge() should fail when right side lacks the join column")
	}
	if _, err := Merge(left, right, "b"); err == nil {
		t.Error("Merge() should fail when left side lacks the join column")
	}
}
