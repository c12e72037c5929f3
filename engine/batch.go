package engine

import (
	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// span is one batch's contiguous range of row indices, half-open.
type span struct {
	start int
	end   int
}

func (s span) size() int {
	return s.end - s.start
}

// partition splits numRows rows into fixed-size batches in order. The final
// batch may be short. Batch numbers are the 1-based span indices.
func partition(numRows, batchSize int) []span {
	var spans []span
	for start := 0; start < numRows; start += batchSize {
		end := start + batchSize
		if end > numRows {
			end = numRows
		}
		spans = append(spans, span{start: start, end: end})
	}
	return spans
}

// rowsToProcess returns the rows of one batch whose output cell is still
// missing, in ascending order. The scan runs fresh per attempt, so rows
// filled by a partially completed earlier attempt are not recomputed.
func rowsToProcess(table *dataset.Table, outputColumn string, sp span) ([]int, error) {
	var rows []int
	for row := sp.start; row < sp.end; row++ {
		v, err := table.Get(row, outputColumn)
		if err != nil {
			return nil, err
		}
		if dataset.IsMissing(v) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
