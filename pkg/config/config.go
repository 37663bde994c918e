package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSecretKey is the placeholder shipped in sample env files. It is
// rejected when running in production.
const DefaultSecretKey = "your-secret-key-change-in-production"

type HTTP struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DB struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type Auth struct {
	SecretKey       string
	Algorithm       string
	AccessTokenTTL  time.Duration
	AdminSessionTTL time.Duration
	AdminUsername   string
	AdminPassword   string
}

type CORS struct {
	Origins     []string
	Credentials bool
	Methods     []string
	Headers     []string
}

type Security struct {
	SecureHeaders     bool
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For header
	// is believed. Empty means the header is ignored.
	TrustedProxies []string
}

// TrustedProxyNets parses TrustedProxies. A bare IP becomes a single host
// network.
func (s Security) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(s.TrustedProxies))
	for _, p := range s.TrustedProxies {
		if !strings.Contains(p, "/") {
			ip := net.ParseIP(p)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", p)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", p, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

type Quote struct {
	BaseURL string
	Timeout time.Duration
}

type Log struct {
	Level  string
	Format string
}

type Janitor struct {
	Interval  time.Duration
	Retention time.Duration
}

// Config is built once at startup and handed to constructors by value or
// pointer; nothing mutates it afterwards.
type Config struct {
	Environment string
	Debug       bool
	RedisURL    string

	HTTP     HTTP
	DB       DB
	Auth     Auth
	CORS     CORS
	Security Security
	Quote    Quote
	Log      Log
	Janitor  Janitor
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// QuoteFromEnv reads the quote scraper settings alone, for tools that do
// not need the full service configuration.
func QuoteFromEnv() Quote {
	return Quote{
		BaseURL: getEnvOrDefault("QUOTE_BASE_URL", "https://kabutan.jp/stock/kabuka"),
		Timeout: getDurationEnvOrDefault("QUOTE_TIMEOUT", 10*time.Second),
	}
}

// LogFromEnv reads LOG_LEVEL and LOG_FORMAT.
func LogFromEnv() Log {
	return Log{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "json"),
	}
}

// Load reads an optional .env file, environment variables and application
// flags (via a local FlagSet), strips out any -test.* flags, and validates
// the result.
func Load(args []string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnvOrDefault("PYTHON_ENV", getEnvOrDefault("APP_ENV", "production")),
		Debug:       getBoolEnvOrDefault("DEBUG", false),
		RedisURL:    os.Getenv("REDIS_URL"),
		HTTP: HTTP{
			Port:         getIntEnvOrDefault("BACKEND_PORT", 8000),
			ReadTimeout:  getDurationEnvOrDefault("HTTP_READ_TIMEOUT", 30*time.Second),
			WriteTimeout: getDurationEnvOrDefault("HTTP_WRITE_TIMEOUT", 30*time.Second),
		},
		DB: DB{
			Host:            getEnvOrDefault("DB_HOST", "localhost"),
			Port:            getIntEnvOrDefault("DB_PORT", 5432),
			User:            getEnvOrDefault("DB_USER", "postgres"),
			Password:        os.Getenv("DB_PASSWORD"),
			Name:            getEnvOrDefault("DB_NAME", "landing"),
			SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnvOrDefault("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnvOrDefault("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnvOrDefault("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getDurationEnvOrDefault("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Auth: Auth{
			SecretKey:       getEnvOrDefault("SECRET_KEY", DefaultSecretKey),
			Algorithm:       getEnvOrDefault("ALGORITHM", "HS256"),
			AccessTokenTTL:  time.Duration(getIntEnvOrDefault("ACCESS_TOKEN_EXPIRE_MINUTES", 30)) * time.Minute,
			AdminSessionTTL: getDurationEnvOrDefault("ADMIN_SESSION_TTL", 24*time.Hour),
			AdminUsername:   getEnvOrDefault("ADMIN_USERNAME", "admin"),
			AdminPassword:   getEnvOrDefault("ADMIN_PASSWORD", "admin123"),
		},
		CORS: CORS{
			Origins:     splitAndTrim(getEnvOrDefault("CORS_ORIGINS", "*"), ","),
			Credentials: getBoolEnvOrDefault("CORS_CREDENTIALS", true),
			Methods:     splitAndTrim(getEnvOrDefault("CORS_METHODS", "*"), ","),
			Headers:     splitAndTrim(getEnvOrDefault("CORS_HEADERS", "*"), ","),
		},
		Security: Security{
			SecureHeaders:     getBoolEnvOrDefault("SECURE_HEADERS", true),
			RateLimitEnabled:  getBoolEnvOrDefault("RATE_LIMIT_ENABLED", true),
			RateLimitRequests: getIntEnvOrDefault("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getDurationEnvOrDefault("RATE_LIMIT_WINDOW", time.Minute),
			TrustedProxies:    splitAndTrim(os.Getenv("TRUSTED_PROXIES"), ","),
		},
		Quote: QuoteFromEnv(),
		Log:   LogFromEnv(),
		Janitor: Janitor{
			Interval:  getDurationEnvOrDefault("JANITOR_INTERVAL", time.Hour),
			Retention: getDurationEnvOrDefault("TOKEN_RETENTION", 30*24*time.Hour),
		},
	}

	// Build a fresh FlagSet so we don't collide with `go test` flags
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.IntVar(&cfg.HTTP.Port, "port", cfg.HTTP.Port, "HTTP listen port")
	fs.StringVar(&cfg.RedisURL, "redis", cfg.RedisURL, "Redis connection URL (optional)")
	fs.StringVar(&cfg.Quote.BaseURL, "quote-base-url", cfg.Quote.BaseURL, "quote page base URL")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")

	var appArgs []string
	for _, arg := range args {
		if strings.HasPrefix(arg, "-test.") {
			continue
		}
		appArgs = append(appArgs, arg)
	}
	if err := fs.Parse(appArgs); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.HTTP.Port)
	}
	if !strings.EqualFold(c.Auth.Algorithm, "HS256") {
		return fmt.Errorf("unsupported ALGORITHM %q: only HS256 is supported", c.Auth.Algorithm)
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("missing required config: SECRET_KEY")
	}
	if c.IsProduction() && c.Auth.SecretKey == DefaultSecretKey {
		return fmt.Errorf("SECRET_KEY must be changed in production")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.Quote.Timeout <= 0 {
		return fmt.Errorf("QUOTE_TIMEOUT must be positive")
	}
	if c.Security.RateLimitEnabled && (c.Security.RateLimitRequests <= 0 || c.Security.RateLimitWindow <= 0) {
		return fmt.Errorf("rate limit requires positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW")
	}
	if _, err := c.Security.TrustedProxyNets(); err != nil {
		return err
	}
	if c.Janitor.Interval <= 0 || c.Janitor.Retention < 0 {
		return fmt.Errorf("JANITOR_INTERVAL must be positive and TOKEN_RETENTION non-negative")
	}
	return nil
}

// DSN returns the lib/pq connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// splitAndTrim splits s on sep, trims spaces, and drops empty entries.
func splitAndTrim(s, sep string) []string {
	parts := []string{}
	for _, p := range strings.Split(s, sep) {
		if t := strings.TrimSpace(p); t != "" {
			parts = append(parts, t)
		}
	}
	return parts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	}
	return defaultValue
}

// getDurationEnvOrDefault returns environment variable as duration or default
func getDurationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
