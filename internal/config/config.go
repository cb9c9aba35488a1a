package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Modes for APP_ENV.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Config holds the runtime configuration read from the environment.
type Config struct {
	// Server
	Addr    string
	Mode    string
	LogPath string

	// Storage
	DatabaseURL string

	// Sessions
	JWTSecret     string
	AuthCertsURL  string
	AuthAudience  string
	AuthIssuer    string
	SecureCookies bool

	// Upstream services
	HuggingFaceAPIKey   string
	HuggingFaceEndpoint string
	GeminiAPIKey        string
	GeminiModel         string
	GeminiEndpoint      string
	MapsAPIKey          string
	PlacesEndpoint      string
	UpstreamTimeout     time.Duration

	// Proxy route rate limiting, per client IP.
	RateLimitRPS   float64
	RateLimitBurst int
}

// Default upstream endpoints.
const (
	DefaultHuggingFaceEndpoint = "https://vqf0lxlyfzvpmi4y.us-east-1.aws.endpoints.huggingface.cloud"
	DefaultGeminiEndpoint      = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel         = "gemini-2.5-flash-lite"
	DefaultPlacesEndpoint      = "https://places.googleapis.com/v1/places:searchText"
)

// Load reads the configuration. Values from a .env file in the working
// directory are applied first and never override variables already set.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env file", "error", err)
	}

	cfg := &Config{
		Addr:                getEnv("ADDR", ":"+getEnv("PORT", "8080")),
		Mode:                strings.ToLower(getEnv("APP_ENV", ModeProduction)),
		LogPath:             getEnv("LOG_PATH", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "trashtalkers.sqlite3"),
		JWTSecret:           getEnv("JWT_SECRET", ""),
		AuthCertsURL:        getEnv("AUTH_CERTS_URL", ""),
		AuthAudience:        getEnv("AUTH_AUDIENCE", ""),
		AuthIssuer:          getEnv("AUTH_ISSUER", ""),
		HuggingFaceAPIKey:   getEnv("HUGGINGFACE_API_KEY", ""),
		HuggingFaceEndpoint: getEnv("HUGGINGFACE_ENDPOINT", DefaultHuggingFaceEndpoint),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", DefaultGeminiModel),
		GeminiEndpoint:      getEnv("GEMINI_ENDPOINT", DefaultGeminiEndpoint),
		MapsAPIKey:          getEnv("GCP_MAPS_API_KEY", ""),
		PlacesEndpoint:      getEnv("PLACES_ENDPOINT", DefaultPlacesEndpoint),
		UpstreamTimeout:     getDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		RateLimitRPS:        getFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst:      getInt("RATE_LIMIT_BURST", 10),
	}
	cfg.SecureCookies = getBool("SECURE_COOKIES", cfg.Mode == ModeProduction)

	return cfg
}

// Development reports whether error payloads may carry internal details.
func (c *Config) Development() bool {
	return c.Mode == ModeDevelopment
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
