// Package fingerprint derives the deterministic identity keys the engine
// uses to recognize previously processed work: a content hash over a
// dataset column and a configuration hash over the processing parameters.
// Hashes identify work for deduplication; they are not integrity checks.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Config is the ordered tuple of parameters that identify a processing
// configuration. Any field change produces a new key and therefore a new
// output column.
type Config struct {
	Provider    string  `json:"provider"`
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	Prompt      string  `json:"prompt"`
	BatchSize   int     `json:"batch_size"`
	BatchDelay  string  `json:"batch_delay"`
	MaxTokens   int     `json:"max_tokens"`
	Sanitize    bool    `json:"sanitize"`
}

// HashColumn returns an order-sensitive hash of the column's cell values.
// Each value is length-prefixed before hashing so that value boundaries
// cannot collide. Identical input always yields identical output across
// process runs.
func HashColumn(values []string) string {
	h := sha256.New()
	var prefix [8]byte
	for _, v := range values {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(v)))
		h.Write(prefix[:])
		h.Write([]byte(v))
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}

// HashConfig returns a deterministic hash over the configuration tuple.
func HashConfig(cfg Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

// RunKey composes the identity of a (dataset, column contents) pair. Two
// datasets with the same label and identical values in the target column
// share a key and therefore share checkpoint state.
func RunKey(datasetLabel string, columnValues []string) string {
	return datasetLabel + "_" + HashColumn(columnValues)
}

// OutputColumn namespaces an output column by its configuration key, so a
// re-run with different parameters writes a new column instead of
// overwriting the old one.
func OutputColumn(sourceColumn, configKey string) string {
	return sourceColumn + "_" + configKey
}
