// Package config provides configuration management for the memory
// substrate. It loads settings from environment variables with the
// MEMENTO_ prefix and provides sensible defaults for all configuration
// options (spec §6 "Configuration (enumerated)").
package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the service.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Project  ProjectConfig
	Retrieval RetrievalConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string // Server bind host (default: 0.0.0.0)
	Port int    // Server bind port (default: 8085)
}

// StorageConfig contains the Postgres connection string.
type StorageConfig struct {
	DSN string // Postgres connection string (default: empty, must be provided)
}

// LLM provider mode values, mirroring internal/llm.Mode.
const (
	AIModeAuto         = "auto"
	AIModePrimaryLLM   = "primary_llm"
	AIModeSecondaryLLM = "secondary_llm"
	AIModeSimple       = "simple"
)

// LLMConfig contains LLM provider configuration feeding the tagged
// capability selector (internal/llm.Selector).
type LLMConfig struct {
	AIMode string // auto | primary_llm | secondary_llm | simple (default: auto)

	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIEmbedModel string

	AnthropicAPIKey string
	AnthropicModel  string

	OllamaURL            string
	OllamaModel          string
	OllamaEmbeddingModel string
}

// ProjectConfig contains the configured default project id, the second
// fallback in the project-resolution order of spec §6.
type ProjectConfig struct {
	DefaultProjectID string
}

// RetrievalConfig contains retrieval-pipeline feature flags (spec §6).
type RetrievalConfig struct {
	UseRetrievalExpand bool
	RetrievalModel     string
}

// fileDefaults is the subset of Config that config.yaml may seed. It is read
// once at boot and used as the fallback default beneath env vars, so a
// deployment can check in a config.yaml for its base settings and still
// override any single field with MEMENTO_* at runtime.
type fileDefaults struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	PostgresDSN        string `yaml:"postgres_dsn"`
	AIMode             string `yaml:"ai_mode"`
	OpenAIAPIKey       string `yaml:"openai_api_key"`
	OpenAIModel        string `yaml:"openai_model"`
	OpenAIEmbedModel   string `yaml:"openai_embed_model"`
	AnthropicAPIKey    string `yaml:"anthropic_api_key"`
	AnthropicModel     string `yaml:"anthropic_model"`
	OllamaURL            string `yaml:"ollama_url"`
	OllamaModel          string `yaml:"ollama_model"`
	OllamaEmbeddingModel string `yaml:"ollama_embedding_model"`
	DefaultProjectID     string `yaml:"default_project_id"`
	UseRetrievalExpand   *bool  `yaml:"use_retrieval_expand"`
	RetrievalModel       string `yaml:"retrieval_model"`
}

// configFileName is the on-disk defaults file, read from the working
// directory the process starts in.
const configFileName = "config.yaml"

// loadFileDefaults reads configFileName if present. A missing file is not an
// error: config.yaml is optional, env vars and hardcoded defaults cover the
// rest. A present-but-unparseable file logs a warning and is otherwise
// ignored, matching a config loader that must never block boot.
func loadFileDefaults() fileDefaults {
	var fd fileDefaults
	data, err := os.ReadFile(configFileName)
	if err != nil {
		return fd
	}
	if err := yaml.Unmarshal(data, &fd); err != nil {
		log.Printf("config: failed to parse %s, ignoring: %v", configFileName, err)
		return fileDefaults{}
	}
	return fd
}

// Load reads configuration from environment variables, falling back to an
// optional config.yaml and then hardcoded defaults.
func Load() *Config {
	fd := loadFileDefaults()

	return &Config{
		Server: ServerConfig{
			Host: getEnv("MEMENTO_HOST", orDefault(fd.Host, "0.0.0.0")),
			Port: getEnvInt("MEMENTO_PORT", orDefaultInt(fd.Port, 8085)),
		},
		Storage: StorageConfig{
			DSN: getEnv("MEMENTO_POSTGRES_DSN", fd.PostgresDSN),
		},
		LLM: LLMConfig{
			AIMode:           getEnv("MEMENTO_AI_MODE", orDefault(fd.AIMode, AIModeAuto)),
			OpenAIAPIKey:     getEnv("MEMENTO_OPENAI_API_KEY", fd.OpenAIAPIKey),
			OpenAIModel:      getEnv("MEMENTO_OPENAI_MODEL", orDefault(fd.OpenAIModel, "gpt-4o-mini")),
			OpenAIEmbedModel: getEnv("MEMENTO_OPENAI_EMBED_MODEL", orDefault(fd.OpenAIEmbedModel, "text-embedding-3-small")),
			AnthropicAPIKey:  getEnv("MEMENTO_ANTHROPIC_API_KEY", fd.AnthropicAPIKey),
			AnthropicModel:   getEnv("MEMENTO_ANTHROPIC_MODEL", orDefault(fd.AnthropicModel, "claude-3-5-sonnet-20241022")),
			OllamaURL:            getEnv("MEMENTO_OLLAMA_URL", orDefault(fd.OllamaURL, "http://localhost:11434")),
			OllamaModel:          getEnv("MEMENTO_OLLAMA_MODEL", orDefault(fd.OllamaModel, "qwen2.5:7b")),
			OllamaEmbeddingModel: getEnv("MEMENTO_OLLAMA_EMBEDDING_MODEL", orDefault(fd.OllamaEmbeddingModel, "nomic-embed-text")),
		},
		Project: ProjectConfig{
			DefaultProjectID: getEnv("MEMENTO_DEFAULT_PROJECT_ID", fd.DefaultProjectID),
		},
		Retrieval: RetrievalConfig{
			UseRetrievalExpand: getEnvBool("MEMENTO_USE_RETRIEVAL_EXPAND", orDefaultBool(fd.UseRetrievalExpand, true)),
			RetrievalModel:     getEnv("MEMENTO_RETRIEVAL_MODEL", fd.RetrievalModel),
		},
	}
}

// orDefault returns fileValue unless it is empty, in which case it returns
// hardcoded.
func orDefault(fileValue, hardcoded string) string {
	if fileValue != "" {
		return fileValue
	}
	return hardcoded
}

// orDefaultInt mirrors orDefault for int fields, where zero means "unset".
func orDefaultInt(fileValue, hardcoded int) int {
	if fileValue != 0 {
		return fileValue
	}
	return hardcoded
}

// orDefaultBool mirrors orDefault for the one optional bool field, where a
// nil pointer means "unset" (false would otherwise be indistinguishable from
// absent).
func orDefaultBool(fileValue *bool, hardcoded bool) bool {
	if fileValue != nil {
		return *fileValue
	}
	return hardcoded
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as a
// boolean, it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
