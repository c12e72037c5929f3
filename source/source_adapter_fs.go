package source

import (
	"context"
	"log"

	"github.com/pkg/errors"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// FSSourceAdapter reads a dataset file from the local filesystem. The
// format is picked by extension (.csv, .tsv, .xlsx).
type FSSourceAdapter struct {
	path string
}

func NewFSSourceAdapter(config map[string]interface{}) (DatasetSource, error) {
	path, ok := config["path"].(string)
	if !ok {
		return nil, errors.New("path must be specified")
	}

	return &FSSourceAdapter{path: path}, nil
}

func (a *FSSourceAdapter) Load(ctx context.Context) (*dataset.Table, error) {
	log.Printf("Loading dataset from %s", a.path)

	table, err := dataset.ReadFile(a.path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading dataset %s", a.path)
	}

	log.Printf("Loaded %d rows, %d columns from %s",
		table.NumRows(), table.NumColumns(), a.path)
	return table, nil
}
