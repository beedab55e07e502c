package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends accepted by STORE_BACKEND.
const (
	BackendSupabase = "supabase"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Storage
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Portal
	AgencyEmails      []string
	Timezone          string
	PrimaryCollection string
	MirrorCollection  string
	SeedFile          string // optional; the embedded templates are used when empty

	// Sessions
	JWTSecret      string
	JWTAccessTTL   time.Duration
	SessionIdleTTL time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", BackendSupabase)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLitePath:   getEnv("SQLITE_PATH", "portal.db"),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		AgencyEmails:      getEnvList("AGENCY_EMAILS"),
		Timezone:          getEnv("PORTAL_TIMEZONE", "America/Sao_Paulo"),
		PrimaryCollection: getEnv("PRIMARY_COLLECTION", "events"),
		MirrorCollection:  getEnv("MIRROR_COLLECTION", "Agenciaapk"),
		SeedFile:          getEnv("SEED_FILE", ""),

		JWTSecret:      getEnv("JWT_SECRET", "portal-default-dev-secret-change-me"),
		JWTAccessTTL:   getEnvDuration("JWT_ACCESS_TTL", 12*time.Hour),
		SessionIdleTTL: getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour),
	}
}

// Location resolves the configured portal time zone, falling back to the
// process local zone when the name is unknown.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.Local
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable, dropping blanks.
func getEnvList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
