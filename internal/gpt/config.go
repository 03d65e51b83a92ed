package gpt

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config defines the shape of the model.
type Config struct {
	VocabSize       int     `json:"vocab_size"`
	NumTokens       int     `json:"num_tokens"`       // context length
	EmbeddingDegree int     `json:"embedding_degree"` // d_model
	NumLayers       int     `json:"num_layers"`
	NumHeads        int     `json:"num_heads"`
	HeadSize        int     `json:"head_size"` // NumHeads * HeadSize == EmbeddingDegree
	Dropout         float32 `json:"dropout"`
	BatchSize       int     `json:"batch_size"` // sequences per forward pass
}

// DefaultConfig returns the stock 4-layer model for a vocabulary.
func DefaultConfig(vocabSize int) Config {
	return Config{
		VocabSize:       vocabSize,
		NumTokens:       64,
		EmbeddingDegree: 64,
		NumLayers:       4,
		NumHeads:        4,
		HeadSize:        16,
		Dropout:         0,
		BatchSize:       32,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.VocabSize <= 0:
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	case c.NumTokens <= 0:
		return fmt.Errorf("num_tokens must be positive, got %d", c.NumTokens)
	case c.NumLayers < 0:
		return fmt.Errorf("num_layers must be >= 0, got %d", c.NumLayers)
	case c.NumHeads <= 0 || c.HeadSize <= 0:
		return fmt.Errorf("num_heads and head_size must be positive, got %d and %d", c.NumHeads, c.HeadSize)
	case c.NumHeads*c.HeadSize != c.EmbeddingDegree:
		return fmt.Errorf("num_heads * head_size = %d, want embedding_degree %d", c.NumHeads*c.HeadSize, c.EmbeddingDegree)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0, 1), got %v", c.Dropout)
	case c.BatchSize <= 0:
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// LoadConfig reads a JSON config file. Missing fields keep the defaults
// for vocabSize.
func LoadConfig(path string, vocabSize int) (Config, error) {
	cfg := DefaultConfig(vocabSize)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// metadataKey is the checkpoint metadata entry holding the config.
const metadataKey = "gpt.config"

// Metadata encodes the config for storage next to a checkpoint.
func (c Config) Metadata() map[string]string {
	data, _ := json.Marshal(c)
	return map[string]string{metadataKey: string(data)}
}

// ConfigFromMetadata decodes a config stored by Metadata. ok is false when
// the metadata carries none.
func ConfigFromMetadata(meta map[string]string) (cfg Config, ok bool, err error) {
	raw, ok := meta[metadataKey]
	if !ok {
		return Config{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return Config{}, true, fmt.Errorf("failed to parse stored config: %w", err)
	}
	return cfg, true, cfg.Validate()
}
