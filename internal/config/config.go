package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ChunkPolicyLines      = "lines"
	ChunkPolicyParagraphs = "paragraphs"
	ChunkPolicyWindow     = "window"

	CacheBackendMemory   = "memory"
	CacheBackendChromem  = "chromem"
	CacheBackendPostgres = "postgres"

	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	DriverPgdriver = "pgdriver"
	DriverPq       = "pq"
)

const (
	defaultChunkSize        = 600
	defaultChunkOverlap     = 100
	defaultTopK             = 3
	defaultHistoryLimit     = 6
	defaultContextSeparator = "\n\n"
	defaultCacheSize        = 16
	defaultTemperature      = 0.2
	defaultCollection       = "document_chunks"
	defaultChromemPath      = "./chromemdb"
	defaultServerAddr       = ":8080"
	defaultMaxUploadMB      = 20
	defaultMaxSessions      = 1000
	defaultSessionTTL       = 2 * time.Hour
	defaultSystemPrompt     = "You are a precise assistant. Answer based ONLY on the provided context. " +
		"If the context does not contain the answer, say so."
)

type Config struct {
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Cache    CacheConfig    `yaml:"cache"`
	Chromem  ChromemConfig  `yaml:"chromem"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

type LLMConfig struct {
	Provider     string  `yaml:"provider"`
	BaseURL      string  `yaml:"base_url"`
	Key          string  `yaml:"key"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	SystemPrompt string  `yaml:"system_prompt"`
	Stream       bool    `yaml:"stream"`
}

type RAGConfig struct {
	DocumentPath     string   `yaml:"document_path"`
	ChunkPolicy      string   `yaml:"chunk_policy"`
	ChunkSize        int      `yaml:"chunk_size"`
	ChunkOverlap     int      `yaml:"chunk_overlap"`
	TopK             int      `yaml:"top_k"`
	KeepZeroScore    bool     `yaml:"keep_zero_score"`
	StopWords        []string `yaml:"stop_words"`
	HistoryLimit     int      `yaml:"history_limit"`
	ContextSeparator string   `yaml:"context_separator"`
	RequireDocument  bool     `yaml:"require_document"`
}

type CacheConfig struct {
	Size    int    `yaml:"size"`
	Backend string `yaml:"backend"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	MaxUploadMB int           `yaml:"max_upload_mb"`
	MaxSessions int           `yaml:"max_sessions"`
	SessionTTL  time.Duration `yaml:"session_ttl"`
}

// LoadConfig reads a YAML config file. ${VAR} references are expanded from the
// environment before decoding.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes data over Default(), so keys absent from the file keep their
// defaults while explicit zero values such as temperature: 0 are honored.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Default() *Config {
	cfg := &Config{LLM: LLMConfig{Temperature: defaultTemperature}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values. Booleans and the temperature keep their zero
// value, since zero is meaningful for both.
func (c *Config) ApplyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = defaultSystemPrompt
	}
	c.RAG.applyDefaults()
	if c.Cache.Size <= 0 {
		c.Cache.Size = defaultCacheSize
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendMemory
	}
	if c.Chromem.Path == "" {
		c.Chromem.Path = defaultChromemPath
	}
	if c.Chromem.Collection == "" {
		c.Chromem.Collection = defaultCollection
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPgdriver
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
	if c.Server.MaxSessions <= 0 {
		c.Server.MaxSessions = defaultMaxSessions
	}
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = defaultSessionTTL
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (r *RAGConfig) applyDefaults() {
	if r.ChunkPolicy == "" {
		r.ChunkPolicy = ChunkPolicyLines
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = defaultChunkSize
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = defaultChunkOverlap
	}
	if r.TopK == 0 {
		r.TopK = defaultTopK
	}
	if r.HistoryLimit == 0 {
		r.HistoryLimit = defaultHistoryLimit
	}
	if r.ContextSeparator == "" {
		r.ContextSeparator = defaultContextSeparator
	}
}

func (c *Config) Validate() error {
	switch c.RAG.ChunkPolicy {
	case ChunkPolicyLines, ChunkPolicyParagraphs, ChunkPolicyWindow:
	default:
		return fmt.Errorf("unknown chunk policy: %q", c.RAG.ChunkPolicy)
	}
	if c.RAG.ChunkSize < 0 || c.RAG.ChunkOverlap < 0 || c.RAG.TopK < 0 || c.RAG.HistoryLimit < 0 {
		return fmt.Errorf("rag sizes must not be negative")
	}
	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendChromem, CacheBackendPostgres:
	default:
		return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("unknown llm provider: %q", c.LLM.Provider)
	}
	switch c.Database.Driver {
	case DriverPgdriver, DriverPq:
	default:
		return fmt.Errorf("unknown database driver: %q", c.Database.Driver)
	}
	return nil
}
