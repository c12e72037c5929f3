package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

func TestPartition(t *testing.T) {
	tests := []struct {
		name      string
		numRows   int
		batchSize int
		want      []span
	}{
		{name: "even split", numRows: 4, batchSize: 2, want: []span{{0, 2}, {2, 4}}},
		{name: "short final batch", numRows: 25, batchSize: 10, want: []span{{0, 10}, {10, 20}, {20, 25}}},
		{name: "single batch", numRows: 3, batchSize: 10, want: []span{{0, 3}}},
		{name: "batch size one", numRows: 2, batchSize: 1, want: []span{{0, 1}, {1, 2}}},
		{name: "no rows", numRows: 0, batchSize: 10, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, partition(tt.numRows, tt.batchSize))
		})
	}
}

func TestRowsToProcess(t *testing.T) {
	table := dataset.New([]string{"text", "out"})
	require.NoError(t, table.AppendRow([]string{"a", "done"}))
	require.NoError(t, table.AppendRow([]string{"b", dataset.Missing}))
	require.NoError(t, table.AppendRow([]string{"c", ""}))
	require.NoError(t, table.AppendRow([]string{"d", "done"}))

	rows, err := rowsToProcess(table, "out", span{start: 0, end: 4})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, rows)

	rows, err = rowsToProcess(table, "out", span{start: 0, end: 2})
	require.NoError(t, err)
	assert.Equal(t, []int{1}, rows)

	_, err = rowsToProcess(table, "nope", span{start: 0, end: 1})
	assert.Error(t, err)
}
