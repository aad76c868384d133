// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	AllowedOrigins     []string

	// NATS settings; empty URL selects the in-memory store
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Identity settings
	AuthMode          string // "jwt" or "header"
	JWTSecret         string
	TrustedUserHeader string

	// Web search (Google Programmable Search Engine)
	PSEAPIKey     string
	PSEEngineID   string
	PSEResults    int
	FetchTimeout  time.Duration
	SearchTimeout time.Duration

	// Internal document retrieval service
	RAGURL            string
	RAGTimeout        time.Duration
	RAGConnectTimeout time.Duration

	// Model settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	MaxOutputTokens int
	Temperature     float64

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 300*time.Second),
		AllowedOrigins: getSliceEnv("ALLOWED_ORIGINS", []string{
			"https://pida.iiresodh.org",
			"https://pida-ai.com",
			"http://localhost",
			"http://localhost:8080",
		}),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Identity
		AuthMode:          getEnv("AUTH_MODE", "jwt"),
		JWTSecret:         getEnv("JWT_SECRET", "development-secret-change-in-production"),
		TrustedUserHeader: getEnv("TRUSTED_USER_HEADER", "X-User-ID"),

		// Web search
		PSEAPIKey:     getEnv("PSE_API_KEY", ""),
		PSEEngineID:   getEnv("PSE_ID", ""),
		PSEResults:    getIntEnv("PSE_RESULTS", 3),
		FetchTimeout:  getDurationEnv("FETCH_TIMEOUT", 20*time.Second),
		SearchTimeout: getDurationEnv("SEARCH_TIMEOUT", 30*time.Second),

		// Internal retrieval
		RAGURL:            getEnv("RAG_URL", ""),
		RAGTimeout:        getDurationEnv("RAG_TIMEOUT", 30*time.Second),
		RAGConnectTimeout: getDurationEnv("RAG_CONNECT_TIMEOUT", 10*time.Second),

		// Model
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		MaxOutputTokens: getIntEnv("MAX_OUTPUT_TOKENS", 16384),
		Temperature:     getFloatEnv("TEMPERATURE", 0.7),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
