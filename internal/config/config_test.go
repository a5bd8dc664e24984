package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Minute, cfg.Catalog.TTL())
}

func TestLoadOverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("DOCSEARCH_TEST_GROQ_KEY", "gsk-123")
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunker:
  chunk_size: 500
  overlap: 50
vector_store:
  type: qdrant
  qdrant:
    host: qdrant.internal
providers:
  groq:
    api_key: ${DOCSEARCH_TEST_GROQ_KEY}
  ollama:
    enabled: false
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Chunker.ChunkSize)
	assert.Equal(t, 50, cfg.Chunker.Overlap)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "gsk-123", cfg.Providers.Groq.ResolveAPIKey())
	assert.False(t, cfg.Providers.Ollama.Enabled)
	assert.True(t, cfg.Providers.DeepSeek.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"overlap not below size": "chunker:\n  chunk_size: 100\n  overlap: 100\n",
		"unknown store":          "vector_store:\n  type: faiss\n",
		"pgvector without dsn":   "vector_store:\n  type: pgvector\n",
		"bad log level":          "log:\n  level: loud\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolveAPIKeyFromEnv(t *testing.T) {
	t.Setenv("DOCSEARCH_TEST_DS_KEY", "sk-env")
	c := OpenAICompatProviderConfig{APIKeyEnv: "DOCSEARCH_TEST_DS_KEY"}
	assert.Equal(t, "sk-env", c.ResolveAPIKey())
	c.APIKey = "sk-inline"
	assert.Equal(t, "sk-inline", c.ResolveAPIKey())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Addr = "127.0.0.1:9000"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
