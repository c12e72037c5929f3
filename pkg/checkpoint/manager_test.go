package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

func testSnapshot(t *testing.T) *dataset.Table {
	t.Helper()
	tbl := dataset.New([]string{"id", "text", "text_ff00aa11"})
	rows := [][]string{
		{"1", "alpha", dataset.Missing},
		{"2", "beta", dataset.Missing},
	}
	for _, r := range rows {
		if err := tbl.AppendRow(r); err != nil {
			t.Fatalf("AppendRow() error = %v", err)
		}
	}
	return tbl
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid path", path: filepath.Join(t.TempDir(), "store.json"), wantErr: false},
		{name: "empty path", path: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, err := NewManager(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && mgr == nil {
				t.Error("NewManager() returned nil manager without error")
			}
		})
	}
}

func TestLoadMissingStoreIsEmpty(t *testing.T) {
	mgr, err := NewManager(filepath.Join(t.TempDir(), "never-written.json"))
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	store, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load() on a missing file should not fail, got %v", err)
	}
	if store == nil || len(store.Data) != 0 {
		t.Errorf("Load() on a missing file should return an empty store, got %+v", store)
	}
	if store.Version != StoreVersion {
		t.Errorf("empty store version = %q, want %q", store.Version, StoreVersion)
	}
}

func TestLoadCorruptedStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("corrupted json{{{"), 0600); err != nil {
		t.Fatalf("Failed to write corrupted store: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}
	if _, err := mgr.Load(); err == nil {
		t.Error("Load() should fail when the store is corrupted")
	}
}

func TestSaveAndLoadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() failed: %v", err)
	}

	store := NewStore()
	if err := store.UpsertOutput("reviews_abcd1234", testSnapshot(t), "id"); err != nil {
		t.Fatalf("UpsertOutput() failed: %v", err)
	}
	store.UpsertBatch("reviews_abcd1234", "text_ff00aa11", 1, BatchRecord{
		Status:      StatusCompleted,
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		TotalTime:   12.5,
		Prompt:      "Classify the sentiment",
		Provider:    "openai",
		Model:       "gpt-4o-mini",
		Temperature: 0.2,
	})

	if err := mgr.Save(store); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatalf("store file not created: %s", path)
	}

	loaded, err := mgr.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	rec := loaded.GetRun("reviews_abcd1234")
	if rec == nil {
		t.Fatal("GetRun() returned nil after round trip")
	}
	if rec.Output.NumRows() != 2 {
		t.Errorf("output rows = %d, want 2", rec.Output.NumRows())
	}
	batch, ok := rec.Column("text_ff00aa11").Batches["1"]
	if !ok {
		t.Fatal("batch 1 record lost in round trip")
	}
	if batch.Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", batch.Status, StatusCompleted)
	}
	if batch.TotalTime != 12.5 {
		t.Errorf("TotalTime = %v, want 12.5", batch.TotalTime)
	}
	if batch.Timestamp.IsZero() {
		t.Error("batch timestamp lost in round trip")
	}
}

func TestUpsertOutputMergesExisting(t *testing.T) {
	store := NewStore()
	if err := store.UpsertOutput("k", testSnapshot(t), "id"); err != nil {
		t.Fatalf("UpsertOutput() failed: %v", err)
	}

	// Fill one output cell, then upsert a snapshot where that cell is
	// still missing. The existing side must win.
	rec := store.GetRun("k")
	if err := rec.Output.Set(0, "text_ff00aa11", "positive"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	incoming := testSnapshot(t)
	incoming.AddColumn("text_22334455", dataset.Missing)
	if err := store.UpsertOutput("k", incoming, "id"); err != nil {
		t.Fatalf("UpsertOutput() merge failed: %v", err)
	}

	rec = store.GetRun("k")
	v, err := rec.Output.Get(0, "text_ff00aa11")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if v != "positive" {
		t.Errorf("existing output lost in merge: got %q", v)
	}
	if !rec.Output.HasColumn("text_22334455") {
		t.Error("new column not adopted in merge")
	}
	if rec.Output.NumRows() != 2 {
		t.Errorf("merge changed row count: %d", rec.Output.NumRows())
	}
}

func TestUpsertBatchOverwrites(t *testing.T) {
	store := NewStore()
	store.UpsertBatch("k", "col", 2, BatchRecord{Status: StatusInProgress})
	store.UpsertBatch("k", "col", 2, BatchRecord{Status: StatusCompleted, TotalTime: 4.2})

	col := store.GetRun("k").Column("col")
	if len(col.Batches) != 1 {
		t.Fatalf("batches = %d, want 1", len(col.Batches))
	}
	if col.Batches["2"].Status != StatusCompleted {
		t.Errorf("Status = %s, want %s", col.Batches["2"].Status, StatusCompleted)
	}
}

func TestGetRunAbsent(t *testing.T) {
	if rec := NewStore().GetRun("nope"); rec != nil {
		t.Errorf("GetRun() on empty store = %+v, want nil", rec)
	}
}

func TestHighestCompleted(t *testing.T) {
	tests := []struct {
		name    string
		batches map[string]BatchRecord
		want    int
	}{
		{name: "nil column", batches: nil, want: 0},
		{
			name: "mixed statuses",
			batches: map[string]BatchRecord{
				"1": {Status: StatusCompleted},
				"2": {Status: StatusCompleted},
				"3": {Status: StatusInterrupted},
			},
			want: 2,
		},
		{
			name: "only in progress",
			batches: map[string]BatchRecord{
				"1": {Status: StatusInProgress},
			},
			want: 0,
		},
		{
			name: "double digit batch numbers",
			batches: map[string]BatchRecord{
				"9":  {Status: StatusCompleted},
				"10": {Status: StatusCompleted},
			},
			want: 10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var col *ColumnRun
			if tt.batches != nil {
				col = &ColumnRun{Batches: tt.batches}
			}
			if got := col.HighestCompleted(); got != tt.want {
				t.Errorf("HighestCompleted() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBatchNumbersSorted(t *testing.T) {
	col := &ColumnRun{Batches: map[string]BatchRecord{
		"10": {}, "2": {}, "1": {},
	}}

	got := col.BatchNumbers()
	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("BatchNumbers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BatchNumbers() = %v, want %v", got, want)
		}
	}
}

func TestAtomicWrite(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.json")
	testData := []byte(`{"test": "data"}`)

	if err := WriteAtomic(testFile, testData); err != nil {
		t.Fatalf("WriteAtomic() failed: %v", err)
	}

	readData, err := os.ReadFile(testFile)
	if err != nil {
		t.Fatalf("Failed to read written file: %v", err)
	}
	if string(readData) != string(testData) {
		t.Errorf("File content = %s, want %s", readData, testData)
	}

	// Overwrite must replace the previous content and leave no temp file.
	if err := WriteAtomic(testFile, []byte(`{"v":2}`)); err != nil {
		t.Fatalf("WriteAtomic() overwrite failed: %v", err)
	}
	readData, _ = os.ReadFile(testFile)
	if string(readData) != `{"v":2}` {
		t.Errorf("File content after overwrite = %s", readData)
	}
	if _, err := os.Stat(testFile + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after atomic write")
	}
}
