package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends accepted by PRICEWATCH_STORE.
const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

type Config struct {
	ListenPort      string        // ex: ":3000"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)
	LogFile   string // optional rotating log file (empty = stdout only)

	// Monitoring
	ProbeInterval time.Duration // delay between two probes of the same task (default: 10s)
	ResetHour     int           // local wall-clock hour of the daily reset
	ResetMinute   int           // local wall-clock minute of the daily reset
	SearchCount   int           // results requested per upstream search (default: 100)
	SeedFile      string        // optional YAML file of tasks to ensure at startup

	// Persistence
	Store    string // "file" | "redis"
	DataFile string // snapshot path when Store == "file"

	// Upstream activity lookup
	LookupURL     string        // ex: "https://api.example.com"
	LookupTimeout time.Duration // per request (default: 10s)
	LookupCity    string
	LookupLon     string
	LookupLat     string

	// Push notifications
	NotifyURL     string        // base URL, message is appended as a path segment (empty = disabled)
	NotifyTimeout time.Duration // per request (default: 5s)

	// Redis (only used when Store == "redis")
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	AllowedCIDRS []string // optional, restrict API access to specific IPs/CIDRs
	TrustProxy   bool     // true => trust X-Forwarded-For headers

	// Per-IP rate limit on task creation and activity search (burst 0 = off)
	RateLimitBurst  int
	RateLimitPerMin int
}

func Load() *Config {
	// A local .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] failed to read .env: %v", err)
	}

	resetHour, resetMinute, err := ParseClock(getenv("PRICEWATCH_RESET_AT", "00:30"))
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: invalid PRICEWATCH_RESET_AT: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PRICEWATCH_LISTEN_PORT", ":3000"),
		ShutdownTimeout: mustDuration("PRICEWATCH_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("PRICEWATCH_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PRICEWATCH_PRETTY_LOG", true),
		LogFile:   getenv("PRICEWATCH_LOG_FILE", ""),

		// Monitoring
		ProbeInterval: mustDuration("PRICEWATCH_PROBE_INTERVAL", 10*time.Second),
		ResetHour:     resetHour,
		ResetMinute:   resetMinute,
		SearchCount:   getenvInt("PRICEWATCH_SEARCH_COUNT", 100),
		SeedFile:      getenv("PRICEWATCH_SEED_FILE", ""),

		// Persistence
		Store:    strings.ToLower(getenv("PRICEWATCH_STORE", StoreFile)),
		DataFile: getenv("PRICEWATCH_DATA_FILE", "data/monitor-tasks.json"),

		// Upstream
		LookupURL:     getenv("PRICEWATCH_LOOKUP_URL", "https://ttt.bjlxkjyxgs.cn"),
		LookupTimeout: mustDuration("PRICEWATCH_LOOKUP_TIMEOUT", 10*time.Second),
		LookupCity:    getenv("PRICEWATCH_LOOKUP_CITY", "广州市"),
		LookupLon:     getenv("PRICEWATCH_LOOKUP_LON", "113.26679992675781"),
		LookupLat:     getenv("PRICEWATCH_LOOKUP_LAT", "23.129009246826172"),

		// Notifications
		NotifyURL:     strings.TrimRight(getenv("PRICEWATCH_NOTIFY_URL", ""), "/"),
		NotifyTimeout: mustDuration("PRICEWATCH_NOTIFY_TIMEOUT", 5*time.Second),

		// Redis settings
		RedisAddr:           getenv("PRICEWATCH_REDIS_ADDR", "localhost:6379"),
		RedisUser:           getenv("PRICEWATCH_REDIS_USERNAME", ""),
		RedisPassword:       getenv("PRICEWATCH_REDIS_PASSWORD", ""),
		RedisDB:             getenvInt("PRICEWATCH_REDIS_DB", 0),
		RedisDT:             mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:             mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:             mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:        mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:    mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:       getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout: mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:  mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:  getenvInt("REDIS_WARN_THRESHOLD", 3),

		// Access restrictions
		AllowedCIDRS: splitAndTrim(getenv("PRICEWATCH_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("PRICEWATCH_TRUST_PROXY", false),

		RateLimitBurst:  getenvInt("PRICEWATCH_RATE_LIMIT_BURST", 20),
		RateLimitPerMin: getenvInt("PRICEWATCH_RATE_LIMIT_PER_MIN", 60),
	}

	if cfg.Store != StoreFile && cfg.Store != StoreRedis {
		panic(fmt.Sprintf("❌ FATAL: unknown PRICEWATCH_STORE %q (want %q or %q)", cfg.Store, StoreFile, StoreRedis))
	}
	if cfg.ProbeInterval <= 0 {
		panic("❌ FATAL: PRICEWATCH_PROBE_INTERVAL must be > 0")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.NotifyURL = redactURL(cfg.NotifyURL)
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// ParseClock parses a "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// redactURL keeps the scheme and host of a push URL and hides the device key.
func redactURL(u string) string {
	if u == "" {
		return ""
	}
	if i := strings.Index(u, "://"); i >= 0 {
		if j := strings.Index(u[i+3:], "/"); j >= 0 {
			return u[:i+3+j] + "/***REDACTED***"
		}
	}
	return "***REDACTED***"
}
