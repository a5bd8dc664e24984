package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr         string `yaml:"addr" validate:"required"`
	DocumentsDir string `yaml:"documents_dir" validate:"required"`
	// AuthTokens maps bearer tokens to principal ids. Empty disables authentication.
	AuthTokens     map[string]string `yaml:"auth_tokens,omitempty"`
	AllowedOrigins []string          `yaml:"allowed_origins,omitempty"`
	MaxUploadMB    int               `yaml:"max_upload_mb" validate:"gte=1"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	ChunkSize int `yaml:"chunk_size" validate:"gte=1"`
	Overlap   int `yaml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// HashEmbedderConfig configures the local feature-hashing embedder.
type HashEmbedderConfig struct {
	Dimension int `yaml:"dimension" validate:"gte=1"`
}

// OllamaEmbedderConfig configures embeddings served by Ollama.
type OllamaEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url" validate:"required,url"`
	Model             string  `yaml:"model" validate:"required"`
	TimeoutSecs       int     `yaml:"timeout_secs" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	APIKeyEnv string `yaml:"api_key_env" validate:"required"`
	Model     string `yaml:"model" validate:"required"`
	Dimension int    `yaml:"dimension" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string               `yaml:"type" validate:"oneof=hash ollama openai"`
	Hash   HashEmbedderConfig   `yaml:"hash"`
	Ollama OllamaEmbedderConfig `yaml:"ollama"`
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"gte=1,lte=65535"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection" validate:"required"`
}

// PGVectorConfig contains connection details for a PostgreSQL/pgvector store.
type PGVectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table" validate:"required"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string         `yaml:"type" validate:"oneof=memory qdrant pgvector"`
	Qdrant   QdrantConfig   `yaml:"qdrant"`
	PGVector PGVectorConfig `yaml:"pgvector"`
}

// OpenAICompatProviderConfig configures a DeepSeek- or Groq-style chat backend.
type OpenAICompatProviderConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// APIKey takes precedence over APIKeyEnv.
	APIKey        string   `yaml:"api_key,omitempty"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	DefaultModels []string `yaml:"default_models" validate:"min=1,dive,required"`
}

// ResolveAPIKey returns the configured key, falling back to the environment.
func (c OpenAICompatProviderConfig) ResolveAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// OllamaProviderConfig configures the local Ollama chat backend.
type OllamaProviderConfig struct {
	Enabled       bool     `yaml:"enabled"`
	BaseURL       string   `yaml:"base_url" validate:"required,url"`
	DefaultModels []string `yaml:"default_models" validate:"min=1,dive,required"`
}

// ProvidersConfig lists the LLM backends answers can be streamed from.
type ProvidersConfig struct {
	DeepSeek OpenAICompatProviderConfig `yaml:"deepseek"`
	Groq     OpenAICompatProviderConfig `yaml:"groq"`
	Ollama   OllamaProviderConfig       `yaml:"ollama"`
}

// CatalogConfig configures the model catalog cache.
type CatalogConfig struct {
	TTLMinutes int `yaml:"ttl_minutes" validate:"gte=1"`
}

// TTL returns the refresh interval.
func (c CatalogConfig) TTL() time.Duration { return time.Duration(c.TTLMinutes) * time.Minute }

// HistoryConfig configures the SQLite history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	History     HistoryConfig     `yaml:"history"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-section requirements.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.VectorStore.Type == "pgvector" && c.VectorStore.PGVector.DSN == "" {
		return errors.New("invalid config: vector_store.pgvector.dsn is required for the pgvector store")
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// ${VAR} references in the file are expanded from the environment before parsing.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docsearch/config.yaml.
// If neither exists, it writes defaults to ~/.config/docsearch/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := Default()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docsearch", "config.yaml"), nil
}

// Default returns the built-in configuration: in-memory index, local hashing
// embedder and all three providers enabled.
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:         ":8000",
			DocumentsDir: "documents",
			MaxUploadMB:  32,
		},
		Log:     LogConfig{Level: "info", Format: "text"},
		Chunker: ChunkerConfig{ChunkSize: 1000, Overlap: 200},
		Embedder: EmbedderConfig{
			Type: "hash",
			Hash: HashEmbedderConfig{Dimension: 384},
			Ollama: OllamaEmbedderConfig{
				BaseURL:     "http://localhost:11434",
				Model:       "nomic-embed-text",
				TimeoutSecs: 30,
			},
			OpenAI: OpenAIEmbedderConfig{
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Model:     "text-embedding-3-small",
			},
		},
		VectorStore: VectorStoreConfig{
			Type:     "memory",
			Qdrant:   QdrantConfig{Host: "localhost", Port: 6334, Collection: "documents"},
			PGVector: PGVectorConfig{Table: "document_chunks"},
		},
		Providers: ProvidersConfig{
			DeepSeek: OpenAICompatProviderConfig{
				Enabled:       true,
				BaseURL:       "https://api.deepseek.com/v1",
				APIKeyEnv:     "DEEPSEEK_API_KEY",
				DefaultModels: []string{"deepseek-chat"},
			},
			Groq: OpenAICompatProviderConfig{
				Enabled:       true,
				BaseURL:       "https://api.groq.com/openai/v1",
				APIKeyEnv:     "GROQ_API_KEY",
				DefaultModels: []string{"mixtral-8x7b-32768"},
			},
			Ollama: OllamaProviderConfig{
				Enabled:       true,
				BaseURL:       "http://localhost:11434",
				DefaultModels: []string{"llama2"},
			},
		},
		Catalog: CatalogConfig{TTLMinutes: 30},
		History: HistoryConfig{Enabled: true, Path: "data/history.db"},
	}
}
