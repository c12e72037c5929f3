package source

import (
	"context"
	"fmt"

	"github.com/dylanpieper/batchGPT/pkg/dataset"
)

// DatasetSource loads the tabular dataset a run operates on. Sources are
// one-shot: Load returns the whole table, the engine owns it afterwards.
type DatasetSource interface {
	Load(ctx context.Context) (*dataset.Table, error)
}

type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// NewDatasetSource builds a source from its config block.
func NewDatasetSource(config SourceConfig) (DatasetSource, error) {
	switch config.Type {
	case "fs":
		return NewFSSourceAdapter(config.Config)
	case "s3":
		return NewS3SourceAdapter(config.Config)
	case "gcs":
		return NewGCSSourceAdapter(config.Config)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", config.Type)
	}
}
