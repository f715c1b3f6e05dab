package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	LogLevel    string

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string

	HubSpotClientID     string
	HubSpotClientSecret string
	HubSpotRedirectURI  string

	// Signs OAuth state and session tokens; encrypts stored OAuth tokens
	StateSecret        string
	SessionTTL         time.Duration
	TokenEncryptionKey string

	AIProvider          string
	GeminiApiKey        string
	GeminiChatModel     string
	GeminiEmbedModel    string
	OllamaBaseURL       string
	OllamaModel         string
	OllamaEmbedModel    string
	EmbeddingDimensions int

	ChromaAPIKey   string
	ChromaTenant   string
	ChromaDatabase string

	InstructionCheckInterval time.Duration
	InstructionWindow        time.Duration
	UpstreamTimeout          time.Duration
	UpstreamRetries          int

	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	RateLimitRPS   float64
	RateLimitBurst int
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8000"),
		DatabaseURL: databaseURL(),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "http://localhost:8000/api/auth/google/callback"),

		HubSpotClientID:     getEnv("HUBSPOT_CLIENT_ID", ""),
		HubSpotClientSecret: getEnv("HUBSPOT_CLIENT_SECRET", ""),
		HubSpotRedirectURI:  getEnv("HUBSPOT_REDIRECT_URI", "http://localhost:8000/api/hubspot/callback"),

		StateSecret:        getEnv("STATE_SECRET", "change-me-state-secret"),
		SessionTTL:         getDuration("SESSION_TTL", 24*time.Hour),
		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		AIProvider:          getEnv("AI_PROVIDER", "auto"),
		GeminiApiKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:     getEnv("GEMINI_CHAT_MODEL", "gemini-2.0-flash"),
		GeminiEmbedModel:    getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
		OllamaBaseURL:       getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
		OllamaModel:         getEnv("OLLAMA_MODEL", "llama3"),
		OllamaEmbedModel:    getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		EmbeddingDimensions: getInt("EMBEDDING_DIMENSIONS", 768),

		ChromaAPIKey:   getEnv("CHROMA_API_KEY", ""),
		ChromaTenant:   getEnv("CHROMA_TENANT", ""),
		ChromaDatabase: getEnv("CHROMA_DATABASE", ""),

		InstructionCheckInterval: getDuration("INSTRUCTION_CHECK_INTERVAL", 2*time.Minute),
		InstructionWindow:        getDuration("INSTRUCTION_WINDOW", time.Hour),
		UpstreamTimeout:          getDuration("UPSTREAM_TIMEOUT", 15*time.Second),
		UpstreamRetries:          getInt("UPSTREAM_RETRIES", 2),

		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", ""),
		GoogleCredentials:   getEnv("GOOGLE_CREDENTIALS", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),

		RateLimitRPS:   getFloat("RATE_LIMIT_RPS", 2.0),
		RateLimitBurst: getInt("RATE_LIMIT_BURST", 5),
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles a DSN from the PG_* variables.
func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		getEnv("PG_HOST", "localhost"),
		getEnv("PG_USER", "postgres"),
		getEnv("PG_PASSWORD", "postgres"),
		getEnv("PG_NAME", "advisor"),
		getEnv("PG_PORT", "5432"),
		getEnv("PG_SSLMODE", "disable"),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
