// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Agent backends.
const (
	BackendLLM  = "llm"
	BackendGRPC = "grpc"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	DBPath         string

	Agent     AgentConfig
	OpenAI    OpenAIConfig
	Search    SearchConfig
	History   HistoryConfig
	Stream    StreamConfig
	RateLimit RateLimitConfig

	MaxUploadBytes  int64
	ConversationLog ConversationLogConfig
}

// AgentConfig selects and tunes the reasoning agent.
type AgentConfig struct {
	Backend    string
	Addr       string
	ListenAddr string
	Timeout    time.Duration
	MaxRounds  int
}

// OpenAIConfig holds credentials for the OpenAI-compatible API.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
}

// SearchConfig holds the web search endpoint used by the LLM agent.
type SearchConfig struct {
	APIKey string
	URL    string
}

// HistoryConfig controls the persisted conversation.
type HistoryConfig struct {
	ConversationID string
	Limit          int
	TTL            time.Duration
}

// StreamConfig controls the live action feed.
type StreamConfig struct {
	Interval          time.Duration
	KeepaliveInterval time.Duration
}

// RateLimitConfig controls per-client throttling of POST routes.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// MissingCredentialsError reports the environment variables an agent backend
// needs but that are not set.
type MissingCredentialsError struct {
	Backend string
	Vars    []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing required environment variables for %s agent: %s",
		e.Backend, strings.Join(e.Vars, ", "))
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8000"),
		AllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DBPath:         getEnv("DB_PATH", "./data/legalchat.db"),
		Agent: AgentConfig{
			Backend:    strings.ToLower(strings.TrimSpace(getEnv("AGENT_BACKEND", BackendLLM))),
			Addr:       getEnv("AGENT_ADDR", ""),
			ListenAddr: getEnv("AGENT_LISTEN_ADDR", ":50051"),
			Timeout:    getEnvDuration("AGENT_TIMEOUT", 120*time.Second),
			MaxRounds:  getEnvInt("AGENT_MAX_ROUNDS", 6),
		},
		OpenAI: OpenAIConfig{
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("OPENAI_VISION_MODEL", "gpt-4o-mini"),
		},
		Search: SearchConfig{
			APIKey: getEnv("SEARCH_API_KEY", ""),
			URL:    getEnv("SEARCH_API_URL", "https://www.searchapi.io/api/v1/search"),
		},
		History: HistoryConfig{
			ConversationID: getEnv("CONVERSATION_ID", "default"),
			Limit:          getEnvInt("HISTORY_LIMIT", 20),
			TTL:            getEnvDuration("HISTORY_TTL", 168*time.Hour),
		},
		Stream: StreamConfig{
			Interval:          getEnvDuration("ACTION_STREAM_INTERVAL", time.Second),
			KeepaliveInterval: getEnvDuration("SSE_KEEPALIVE_INTERVAL", 15*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("RATE_LIMIT_RPS", 2),
			Burst:             getEnvInt("RATE_LIMIT_BURST", 5),
		},
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_BYTES", 20<<20)),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Agent credentials are checked separately by AgentCredentials so that a
// missing key leaves the server running with the agent unavailable.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS cannot be empty")
	}
	if c.Agent.Backend != BackendLLM && c.Agent.Backend != BackendGRPC {
		return fmt.Errorf("AGENT_BACKEND must be %q or %q, got %q", BackendLLM, BackendGRPC, c.Agent.Backend)
	}
	if c.Agent.Timeout <= 0 {
		return fmt.Errorf("AGENT_TIMEOUT must be > 0")
	}
	if c.Agent.MaxRounds <= 0 {
		return fmt.Errorf("AGENT_MAX_ROUNDS must be > 0")
	}
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("ACTION_STREAM_INTERVAL must be > 0")
	}
	if c.Stream.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	return nil
}

// AgentCredentials reports which required variables are missing for the
// configured backend. It returns nil when the agent can be started.
func (c *Config) AgentCredentials() error {
	var missing []string
	switch c.Agent.Backend {
	case BackendGRPC:
		if c.Agent.Addr == "" {
			missing = append(missing, "AGENT_ADDR")
		}
	default:
		if c.OpenAI.APIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
		if c.Search.APIKey == "" {
			missing = append(missing, "SEARCH_API_KEY")
		}
	}
	if len(missing) > 0 {
		return &MissingCredentialsError{Backend: c.Agent.Backend, Vars: missing}
	}
	return nil
}

// VisionEnabled reports whether image text extraction can run.
func (c *Config) VisionEnabled() bool {
	return c.OpenAI.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
