// Package config provides configuration for the voice relay.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Search backends.
const (
	SearchBackendAzure  = "azure"
	SearchBackendSQLite = "sqlite"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	WSPort    int // Public port: /realtime and static files
	HTTPPort  int // Internal port: /health, /internal/sessions
	StaticDir string

	// Realtime model service
	OpenAIEndpoint   string
	OpenAIDeployment string
	OpenAIAPIKey     string
	OpenAIAPIVersion string
	Voice            string

	// Entra ID service principal, used when an API key is missing
	TenantID      string
	ClientID      string
	ClientSecret  string
	AuthorityHost string

	// Knowledge base
	SearchBackend         string
	SearchEndpoint        string
	SearchIndex           string
	SearchAPIKey          string
	SemanticConfiguration string
	IdentifierField       string
	ContentField          string
	EmbeddingField        string
	TitleField            string
	UseVectorQuery        bool
	SearchTopK            int
	SearchTimeout         time.Duration
	KBSQLitePath          string
	KBSeedFile            string

	// Session behaviour
	SystemPrompt     string
	RedactPatterns   []string
	ToolTimeout      time.Duration
	ClientPolicyFile string

	// WebSocket settings
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	MaxMessageSize   int64
	HandshakeTimeout time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env (outside production), the optional prompt file, and the environment.
func Load() (*Config, error) {
	if os.Getenv("RUNNING_IN_PRODUCTION") == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load .env: %w", err)
		}
	}

	cfg := FromEnv()

	if path := os.Getenv("PROMPT_FILE"); path != "" {
		p, err := LoadPrompt(path)
		if err != nil {
			return nil, err
		}
		if os.Getenv("SYSTEM_PROMPT") == "" && p.SystemPrompt != "" {
			cfg.SystemPrompt = p.SystemPrompt
		}
		if os.Getenv("AZURE_OPENAI_REALTIME_VOICE_CHOICE") == "" && p.Voice != "" {
			cfg.Voice = p.Voice
		}
		cfg.RedactPatterns = append(cfg.RedactPatterns, p.RedactPatterns...)
	}
	return cfg, nil
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() *Config {
	return &Config{
		WSPort:    getEnvInt("WS_PORT", 8765),
		HTTPPort:  getEnvInt("HTTP_PORT", 8766),
		StaticDir: getEnv("STATIC_DIR", "./static"),

		OpenAIEndpoint:   getEnv("AZURE_OPENAI_ENDPOINT", ""),
		OpenAIDeployment: getEnv("AZURE_OPENAI_REALTIME_DEPLOYMENT", ""),
		OpenAIAPIKey:     getEnv("AZURE_OPENAI_API_KEY", ""),
		OpenAIAPIVersion: getEnv("AZURE_OPENAI_API_VERSION", "2024-10-01-preview"),
		Voice:            getEnv("AZURE_OPENAI_REALTIME_VOICE_CHOICE", "alloy"),

		TenantID:      getEnv("AZURE_TENANT_ID", ""),
		ClientID:      getEnv("AZURE_CLIENT_ID", ""),
		ClientSecret:  getEnv("AZURE_CLIENT_SECRET", ""),
		AuthorityHost: getEnv("AZURE_AUTHORITY_HOST", ""),

		SearchBackend:         strings.ToLower(getEnv("SEARCH_BACKEND", SearchBackendAzure)),
		SearchEndpoint:        getEnv("AZURE_SEARCH_ENDPOINT", ""),
		SearchIndex:           getEnv("AZURE_SEARCH_INDEX", ""),
		SearchAPIKey:          getEnv("AZURE_SEARCH_API_KEY", ""),
		SemanticConfiguration: getEnv("AZURE_SEARCH_SEMANTIC_CONFIGURATION", "default"),
		IdentifierField:       getEnv("AZURE_SEARCH_IDENTIFIER_FIELD", "chunk_id"),
		ContentField:          getEnv("AZURE_SEARCH_CONTENT_FIELD", "chunk"),
		EmbeddingField:        getEnv("AZURE_SEARCH_EMBEDDING_FIELD", "text_vector"),
		TitleField:            getEnv("AZURE_SEARCH_TITLE_FIELD", "title"),
		UseVectorQuery:        getEnvBool("AZURE_SEARCH_USE_VECTOR_QUERY", true),
		SearchTopK:            getEnvInt("SEARCH_TOP_K", 5),
		SearchTimeout:         getEnvDuration("SEARCH_TIMEOUT_MS", 10000),
		KBSQLitePath:          getEnv("KB_SQLITE_PATH", "file:kb?mode=memory&cache=shared"),
		KBSeedFile:            getEnv("KB_SEED_FILE", ""),

		SystemPrompt:     getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
		RedactPatterns:   splitList(getEnv("REDACT_PATTERNS", "")),
		ToolTimeout:      getEnvDuration("TOOL_TIMEOUT_MS", 20000),
		ClientPolicyFile: getEnv("CLIENT_POLICY_FILE", ""),

		PingInterval:     getEnvDuration("WS_PING_INTERVAL_MS", 30000),
		WriteTimeout:     getEnvDuration("WS_WRITE_TIMEOUT_MS", 10000),
		ReadTimeout:      getEnvDuration("WS_READ_TIMEOUT_MS", 60000),
		MaxMessageSize:   int64(getEnvInt("WS_MAX_MESSAGE_SIZE", 1<<20)),
		HandshakeTimeout: getEnvDuration("UPSTREAM_HANDSHAKE_TIMEOUT_MS", 10000),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIEndpoint == "" {
		errs = append(errs, errors.New("AZURE_OPENAI_ENDPOINT is required"))
	}
	if c.OpenAIDeployment == "" {
		errs = append(errs, errors.New("AZURE_OPENAI_REALTIME_DEPLOYMENT is required"))
	}
	switch c.SearchBackend {
	case SearchBackendAzure:
		if c.SearchEndpoint == "" {
			errs = append(errs, errors.New("AZURE_SEARCH_ENDPOINT is required"))
		}
		if c.SearchIndex == "" {
			errs = append(errs, errors.New("AZURE_SEARCH_INDEX is required"))
		}
		if c.SearchAPIKey == "" && !c.HasServicePrincipal() {
			errs = append(errs, errors.New("AZURE_SEARCH_API_KEY or AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET is required"))
		}
	case SearchBackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("SEARCH_BACKEND must be %q or %q", SearchBackendAzure, SearchBackendSQLite))
	}
	if c.OpenAIAPIKey == "" && !c.HasServicePrincipal() {
		errs = append(errs, errors.New("AZURE_OPENAI_API_KEY or AZURE_TENANT_ID/AZURE_CLIENT_ID/AZURE_CLIENT_SECRET is required"))
	}
	if c.SearchTopK <= 0 {
		errs = append(errs, errors.New("SEARCH_TOP_K must be positive"))
	}
	if strings.TrimSpace(c.SystemPrompt) == "" {
		errs = append(errs, errors.New("system prompt must not be empty"))
	}
	return errors.Join(errs...)
}

// HasServicePrincipal reports whether Entra ID client credentials are configured.
func (c *Config) HasServicePrincipal() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultMs int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMs)) * time.Millisecond
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
