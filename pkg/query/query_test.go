package query

import (
	"testing"
	"time"

	"github.com/dylanpieper/batchGPT/pkg/checkpoint"
	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

func testStore(t *testing.T) *checkpoint.Store {
	t.Helper()
	store := checkpoint.NewStore()

	table := dataset.New([]string{"id", "text", "text_aa11"})
	if err := table.AppendRow([]string{"1", "good", "positive"}); err != nil {
		t.Fatal(err)
	}
	if err := table.AppendRow([]string{"2", "bad", "negative"}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertOutput("reviews_0011", table, "text"); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.UpsertBatch("reviews_0011", "text_aa11", 1, checkpoint.BatchRecord{
		Status: checkpoint.StatusCompleted, Timestamp: base, TotalTime: 4.5,
		Prompt: "Classify", Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.2,
	})
	store.UpsertBatch("reviews_0011", "text_aa11", 2, checkpoint.BatchRecord{
		Status: checkpoint.StatusInterrupted, Timestamp: base.Add(time.Minute), TotalTime: 9.0,
		Prompt: "Classify", Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.2,
	})
	store.UpsertBatch("reviews_0011", "text_bb22", 1, checkpoint.BatchRecord{
		Status: checkpoint.StatusCompleted, Timestamp: base.Add(2 * time.Minute), TotalTime: 3.0,
		Prompt: "Classify", Provider: "anthropic", Model: "claude-sonnet-4-20250514", Temperature: 0.7,
	})
	store.UpsertBatch("articles_ff00", "body_cc33", 1, checkpoint.BatchRecord{
		Status: checkpoint.StatusCompleted, Timestamp: base.Add(time.Hour), TotalTime: 2.0,
		Prompt: "Summarize", Provider: "google", Model: "gemini-2.0-flash", Temperature: 0.0,
	})
	return store
}

func TestListBatchesOrder(t *testing.T) {
	rows := ListBatches(testStore(t), Filter{})
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	type key struct {
		dataset string
		column  string
		batch   int
	}
	got := make([]key, len(rows))
	for i, r := range rows {
		got[i] = key{r.Dataset, r.Column, r.BatchNumber}
	}
	want := []key{
		{"articles_ff00", "body_cc33", 1},
		{"reviews_0011", "text_aa11", 1},
		{"reviews_0011", "text_aa11", 2},
		{"reviews_0011", "text_bb22", 1},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %+v, want %+v", i, got[i], want[i])
		}
	}

	if rows[2].Status != "interrupted" {
		t.Errorf("expected interrupted status, got %q", rows[2].Status)
	}
	if rows[1].TotalTime != 4.5 {
		t.Errorf("expected total time 4.5, got %v", rows[1].TotalTime)
	}
}

func TestListBatchesFilter(t *testing.T) {
	store := testStore(t)

	rows := ListBatches(store, Filter{RunKey: "reviews_0011"})
	if len(rows) != 3 {
		t.Fatalf("run key filter: expected 3 rows, got %d", len(rows))
	}

	rows = ListBatches(store, Filter{RunKey: "reviews_0011", Column: "text_bb22"})
	if len(rows) != 1 {
		t.Fatalf("column filter: expected 1 row, got %d", len(rows))
	}
	if rows[0].Provider != "anthropic" {
		t.Errorf("expected anthropic row, got %q", rows[0].Provider)
	}

	rows = ListBatches(store, Filter{RunKey: "absent"})
	if len(rows) != 0 {
		t.Fatalf("absent filter: expected 0 rows, got %d", len(rows))
	}
}

func TestGetOutput(t *testing.T) {
	store := testStore(t)

	table, err := GetOutput(store, "reviews_0011")
	if err != nil {
		t.Fatal(err)
	}
	if table.NumRows() != 2 {
		t.Errorf("expected 2 rows, got %d", table.NumRows())
	}

	// The returned table is a copy.
	if err := table.Set(0, "text_aa11", "changed"); err != nil {
		t.Fatal(err)
	}
	stored, err := GetOutput(store, "reviews_0011")
	if err != nil {
		t.Fatal(err)
	}
	v, err := stored.Get(0, "text_aa11")
	if err != nil {
		t.Fatal(err)
	}
	if v != "positive" {
		t.Errorf("stored output mutated: got %q", v)
	}

	if _, err := GetOutput(store, "absent"); err == nil {
		t.Error("expected error for absent run key")
	}
}

func TestRuns(t *testing.T) {
	summaries := Runs(testStore(t))
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	if summaries[0].RunKey != "articles_ff00" {
		t.Errorf("expected articles first, got %q", summaries[0].RunKey)
	}
	reviews := summaries[1]
	if reviews.Rows != 2 || reviews.Columns != 2 || reviews.Batches != 3 {
		t.Errorf("unexpected summary: %+v", reviews)
	}
	want := time.Date(2025, 6, 1, 12, 2, 0, 0, time.UTC)
	if !reviews.Updated.Equal(want) {
		t.Errorf("expected updated %v, got %v", want, reviews.Updated)
	}
}
