// Package config provides environment configuration for the gateway and the
// terminal client.
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

// Store drivers.
const (
	StoreMemory = "memory"
	StorePebble = "pebble"
)

// Translation providers.
const (
	TranslateGoogle    = "google"
	TranslateAnthropic = "anthropic"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	Environment        string

	// Backend settings
	BackendURL          string
	BackendContract     string
	ChatModel           string
	BackendAPIKey       string
	BackendUsername     string
	BackendPassword     string
	ConversationProfile string
	RequestTimeout      time.Duration

	// Translation settings
	TranslationEnabled  bool
	TranslationProvider string
	TranslateURL        string
	AnthropicAPIKey     string
	TranslationModel    string

	// Storage settings
	StoreDriver string
	StorePath   string

	// NATS settings; an empty URL keeps session events in-process
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings; an empty secret leaves the API open
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over .env entries.
func Load(envFiles ...string) *Config {
	_ = godotenv.Load(envFiles...)

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 150*time.Second),
		Environment:        getEnv("ENV", "production"),

		// Backend
		BackendURL:          getEnv("BACKEND_URL", "https://asistenti.deputeti.ai"),
		BackendContract:     getEnv("BACKEND_CONTRACT", "completion"),
		ChatModel:           getEnv("CHAT_MODEL", "eu-law-rag"),
		BackendAPIKey:       getEnv("BACKEND_API_KEY", ""),
		BackendUsername:     getEnv("BACKEND_USERNAME", ""),
		BackendPassword:     getEnv("BACKEND_PASSWORD", ""),
		ConversationProfile: getEnv("CONVERSATION_PROFILE", "eu_law"),
		RequestTimeout:      getDurationEnv("REQUEST_TIMEOUT", 2*time.Minute),

		// Translation
		TranslationEnabled:  getBoolEnv("TRANSLATION_ENABLED", false),
		TranslationProvider: getEnv("TRANSLATION_PROVIDER", TranslateGoogle),
		TranslateURL:        getEnv("TRANSLATE_URL", "https://translate.googleapis.com/translate_a/single"),
		AnthropicAPIKey:     getEnv("ANTHROPIC_API_KEY", ""),
		TranslationModel:    getEnv("TRANSLATION_MODEL", ""),

		// Storage
		StoreDriver: getEnv("STORE_DRIVER", StoreMemory),
		StorePath:   getEnv("STORE_PATH", "data/sessions"),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

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

// Validate rejects unknown enum values and missing credentials the selected
// options need.
func (c *Config) Validate() error {
	var errs []error

	switch c.BackendContract {
	case "completion":
	case "conversation":
		if c.BackendUsername == "" {
			errs = append(errs, errors.New("BACKEND_USERNAME is required for the conversation contract"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown BACKEND_CONTRACT %q", c.BackendContract))
	}

	switch c.StoreDriver {
	case StoreMemory, StorePebble:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	if c.TranslationEnabled {
		switch c.TranslationProvider {
		case TranslateGoogle:
		case TranslateAnthropic:
			if c.AnthropicAPIKey == "" {
				errs = append(errs, errors.New("ANTHROPIC_API_KEY is required for anthropic translation"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown TRANSLATION_PROVIDER %q", c.TranslationProvider))
		}
	}

	if strings.TrimSpace(c.BackendURL) == "" {
		errs = append(errs, errors.New("BACKEND_URL is required"))
	}

	return errors.Join(errs...)
}

// IsDevelopment reports whether ENV selects development logging.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
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
