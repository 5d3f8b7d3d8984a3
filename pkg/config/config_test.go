package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			Size:         1000,
			Overlap:      200,
			MaxBatchSize: 7000,
		},
		Query: QueryConfig{
			TopK: 10,
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validConfig().Validate())
	})

	t.Run("zero overlap valid", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.Overlap = 0
		require.NoError(t, cfg.Validate())
	})

	t.Run("zero chunk size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.Size = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("negative overlap", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.Overlap = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("overlap equal to size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.Overlap = cfg.Chunking.Size
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero batch size", func(t *testing.T) {
		cfg := validConfig()
		cfg.Chunking.MaxBatchSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero top k", func(t *testing.T) {
		cfg := validConfig()
		cfg.Query.TopK = 0
		assert.Error(t, cfg.Validate())
	})
}
