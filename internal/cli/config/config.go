package config

import (
	"github.com/spf13/viper"
)

// CLIConfig holds batchctl's own settings, distinct from job files. Values
// come from the config file, BATCHCTL_* environment variables, or defaults.
type CLIConfig struct {
	CheckpointPath string `mapstructure:"checkpoint_path"`
	OutputFormat   string `mapstructure:"output_format"`
	ExportFormat   string `mapstructure:"export_format"`
}

func Load() (*CLIConfig, error) {
	var cfg CLIConfig

	viper.SetDefault("checkpoint_path", "checkpoints.json")
	viper.SetDefault("output_format", "table")
	viper.SetDefault("export_format", "csv")

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
