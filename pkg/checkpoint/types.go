package checkpoint

import (
	"sort"
	"strconv"
	"time"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// StoreVersion identifies the persisted store layout.
const StoreVersion = "1.0"

// BatchStatus is the persisted state of one batch.
type BatchStatus string

const (
	StatusInProgress  BatchStatus = "in_progress"
	StatusCompleted   BatchStatus = "completed"
	StatusInterrupted BatchStatus = "interrupted"
)

// BatchRecord is the durable trace of one batch attempt. A record is written
// once per attempt of its batch and overwritten on retry with fresh status.
type BatchRecord struct {
	Status      BatchStatus `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	TotalTime   float64     `json:"total_time"`
	Prompt      string      `json:"prompt"`
	Provider    string      `json:"provider"`
	Model       string      `json:"model"`
	Temperature float64     `json:"temperature"`
}

// ColumnRun holds the batch records for one output column, keyed by the
// 1-based batch number rendered as a string.
type ColumnRun struct {
	Batches map[string]BatchRecord `json:"batches"`
}

// BatchNumbers returns the recorded batch numbers in ascending order.
func (c *ColumnRun) BatchNumbers() []int {
	if c == nil {
		return nil
	}
	numbers := make([]int, 0, len(c.Batches))
	for k := range c.Batches {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// HighestCompleted returns the highest batch number with status completed,
// or 0 when none is. Batches at or below this number are fully processed.
func (c *ColumnRun) HighestCompleted() int {
	highest := 0
	if c == nil {
		return highest
	}
	for k, rec := range c.Batches {
		if rec.Status != StatusCompleted {
			continue
		}
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest
}

// RunRecord is everything persisted for one RunKey: the full dataset
// snapshot including every output column ever computed for it, and the
// per-column batch metadata.
type RunRecord struct {
	Output   *dataset.Table        `json:"output"`
	Metadata map[string]*ColumnRun `json:"metadata"`
}

// Column returns the ColumnRun for an output column, or nil.
func (r *RunRecord) Column(name string) *ColumnRun {
	if r == nil {
		return nil
	}
	return r.Metadata[name]
}

// Store is the whole persisted log: a mapping from RunKey to RunRecord.
// Records are created on first use and mutated in place by later runs
// sharing the same keys; the engine never deletes them.
type Store struct {
	Version string                `json:"version"`
	Data    map[string]*RunRecord `json:"data"`
}

// NewStore returns an empty store at the current layout version.
func NewStore() *Store {
	return &Store{
		Version: StoreVersion,
		Data:    make(map[string]*RunRecord),
	}
}

// GetRun returns the record for runKey, or nil when absent.
func (s *Store) GetRun(runKey string) *RunRecord {
	return s.Data[runKey]
}

// RunKeys returns all run keys in sorted order.
func (s *Store) RunKeys() []string {
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpsertOutput inserts the snapshot verbatim when the RunKey is new.
// When a record already exists the snapshot is merged into it by aligning
// on joinColumn: the existing side wins on conflicting column names, new
// columns from the snapshot are adopted.
func (s *Store) UpsertOutput(runKey string, snapshot *dataset.Table, joinColumn string) error {
	rec := s.Data[runKey]
	if rec == nil {
		s.Data[runKey] = &RunRecord{
			Output:   snapshot.Clone(),
			Metadata: make(map[string]*ColumnRun),
		}
		return nil
	}
	if rec.Output == nil {
		rec.Output = snapshot.Clone()
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]*ColumnRun)
		}
		return nil
	}

	merged, err := dataset.Merge(rec.Output, snapshot, joinColumn)
	if err != nil {
		return err
	}
	rec.Output = merged
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]*ColumnRun)
	}
	return nil
}

// UpsertBatch inserts or overwrites the BatchRecord for one batch of one
// output column, creating the intermediate records as needed.
func (s *Store) UpsertBatch(runKey, outputColumn string, batchNumber int, record BatchRecord) {
	rec := s.Data[runKey]
	if rec == nil {
		rec = &RunRecord{Metadata: make(map[string]*ColumnRun)}
		s.Data[runKey] = rec
	}
	if rec.Metadata == nil {
		rec.Metadata = make(map[string]*ColumnRun)
	}
	col := rec.Metadata[outputColumn]
	if col == nil {
		col = &ColumnRun{Batches: make(map[string]BatchRecord)}
		rec.Metadata[outputColumn] = col
	}
	if col.Batches == nil {
		col.Batches = make(map[string]BatchRecord)
	}
	col.Batches[strconv.Itoa(batchNumber)] = record
}
