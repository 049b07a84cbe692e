package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	Server       ServerConfig
	Auth         AuthConfig
	Providers    ProvidersConfig
	Intelligence IntelligenceConfig
	BruteForce   BruteForceConfig
	Decision     DecisionConfig
	Audit        AuditConfig
	Events       EventsConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RateLimit      int
	TrustedProxies []string
}

type AuthConfig struct {
	TokenSecret string
}

// ProvidersConfig holds reputation provider credentials; an empty key disables the provider
type ProvidersConfig struct {
	IPQualityScoreKey string
	AbuseIPDBKey      string
	IPInfoToken       string
	Timeout           time.Duration
}

type IntelligenceConfig struct {
	SuspiciousTTL time.Duration
	CleanTTL      time.Duration
	CacheSize     int
}

type BruteForceConfig struct {
	MaxAttemptsPerIP      int
	IPWindow              time.Duration
	IPBlockDuration       time.Duration
	MaxAttemptsPerAccount int
	AccountWindow         time.Duration
	AccountBlockDuration  time.Duration
	MultiAccountThreshold int
	TrackingWindow        time.Duration
	StuffingBlockDuration time.Duration
	SweepInterval         time.Duration
}

type DecisionConfig struct {
	TrustedCountries         []string
	BlacklistBlockConfidence int
}

type AuditConfig struct {
	QueueSize int
}

// EventsConfig configures the kafka publisher; no brokers disables it
type EventsConfig struct {
	Brokers []string
	Topic   string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	tokenSecret := getEnv("API_TOKEN_SECRET", "")
	if tokenSecret == "" {
		return nil, fmt.Errorf("API_TOKEN_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "sentinel"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			RateLimit:      getEnvAsInt("API_RATE_LIMIT", 600),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
		},
		Auth: AuthConfig{
			TokenSecret: tokenSecret,
		},
		Providers: ProvidersConfig{
			IPQualityScoreKey: getEnv("IPQS_API_KEY", ""),
			AbuseIPDBKey:      getEnv("ABUSEIPDB_API_KEY", ""),
			IPInfoToken:       getEnv("IPINFO_TOKEN", ""),
			Timeout:           getEnvAsDuration("PROVIDER_TIMEOUT", 3*time.Second),
		},
		Intelligence: IntelligenceConfig{
			SuspiciousTTL: getEnvAsDuration("INTEL_TTL_SUSPICIOUS", 1*time.Hour),
			CleanTTL:      getEnvAsDuration("INTEL_TTL_CLEAN", 24*time.Hour),
			CacheSize:     getEnvAsInt("INTEL_CACHE_SIZE", 10000),
		},
		BruteForce: BruteForceConfig{
			MaxAttemptsPerIP:      getEnvAsInt("BRUTEFORCE_MAX_ATTEMPTS_IP", 5),
			IPWindow:              getEnvAsDuration("BRUTEFORCE_IP_WINDOW", 15*time.Minute),
			IPBlockDuration:       getEnvAsDuration("BRUTEFORCE_IP_BLOCK", 30*time.Minute),
			MaxAttemptsPerAccount: getEnvAsInt("BRUTEFORCE_MAX_ATTEMPTS_ACCOUNT", 10),
			AccountWindow:         getEnvAsDuration("BRUTEFORCE_ACCOUNT_WINDOW", 60*time.Minute),
			AccountBlockDuration:  getEnvAsDuration("BRUTEFORCE_ACCOUNT_BLOCK", 60*time.Minute),
			MultiAccountThreshold: getEnvAsInt("BRUTEFORCE_MULTI_ACCOUNT_THRESHOLD", 3),
			TrackingWindow:        getEnvAsDuration("BRUTEFORCE_TRACKING_WINDOW", 60*time.Minute),
			StuffingBlockDuration: getEnvAsDuration("BRUTEFORCE_STUFFING_BLOCK", 24*time.Hour),
			SweepInterval:         getEnvAsDuration("BRUTEFORCE_SWEEP_INTERVAL", 5*time.Minute),
		},
		Decision: DecisionConfig{
			TrustedCountries:         normalizeCountries(getEnvAsList("TRUSTED_COUNTRIES", nil)),
			BlacklistBlockConfidence: getEnvAsInt("BLACKLIST_BLOCK_CONFIDENCE", 75),
		},
		Audit: AuditConfig{
			QueueSize: getEnvAsInt("AUDIT_QUEUE_SIZE", 1024),
		},
		Events: EventsConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "sentinel.security-events"),
		},
	}

	if err := validateTokenSecret(tokenSecret, env); err != nil {
		return nil, err
	}

	if cfg.BruteForce.MaxAttemptsPerIP >= cfg.BruteForce.MaxAttemptsPerAccount {
		return nil, fmt.Errorf("BRUTEFORCE_MAX_ATTEMPTS_IP (%d) must be lower than BRUTEFORCE_MAX_ATTEMPTS_ACCOUNT (%d)",
			cfg.BruteForce.MaxAttemptsPerIP, cfg.BruteForce.MaxAttemptsPerAccount)
	}

	if cfg.Intelligence.SuspiciousTTL > cfg.Intelligence.CleanTTL {
		return nil, fmt.Errorf("INTEL_TTL_SUSPICIOUS must not exceed INTEL_TTL_CLEAN")
	}

	return cfg, nil
}

// validateTokenSecret enforces minimum security standards for the service token secret
func validateTokenSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("API_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("API_TOKEN_SECRET cannot be a common weak value")
		}
	}

	return nil
}

// HasPassword reports whether a Signal Store connection should be attempted
func (c *DatabaseConfig) HasPassword() bool {
	return c.Password != ""
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func normalizeCountries(codes []string) []string {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		out = append(out, strings.ToUpper(c))
	}
	return out
}
