package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caseledger/auth/pkg/jwtx"
)

type Config struct {
	Issuer   string   // Issuer claim stamped into every access token
	Audience []string // Audience claim; validation requires at least one match

	Algorithm  string        // Signing algorithm; HS256 is the only accepted value
	Secret     string        // Required: HMAC secret, minimum 32 bytes
	AccessTTL  time.Duration // Access token lifetime (default: 15m)
	RefreshTTL time.Duration // Refresh token lifetime (default: 7d)

	DatabaseFile string // Path to SQLite database file (default: ./auth.db)

	RedisAddr        string // Required: address of the shared revocation registry
	RedisKeyPrefix   string // Key namespace in Redis (default: auth)
	RegistryFailOpen bool   // Accept tokens when the registry is unreachable (default: false)

	CacheSize int           // Validation cache capacity; 0 disables the cache
	CacheTTL  time.Duration // Validation cache entry lifetime (default: 1m)

	Env                  string // Environment (dev, staging, prod) (default: dev)
	LogLevel             string // Log level (debug, info, warn, error) (default: info)
	LogFormat            string // Log format (json, text) (default: json)
	Port                 int    // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

func LoadConfig() Config {
	return Config{
		Issuer:     getEnvOrDefault("AUTH_ISSUER", "caseledger-auth"),
		Audience:   []string{getEnvOrDefault("AUTH_AUDIENCE", "caseledger-api")},
		Algorithm:  getEnvOrDefault("AUTH_ALGORITHM", "HS256"),
		Secret:     os.Getenv("AUTH_SECRET"),
		AccessTTL:  getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL: getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),

		RedisAddr:        os.Getenv("AUTH_REDIS_ADDR"),
		RedisKeyPrefix:   getEnvOrDefault("AUTH_REDIS_KEY_PREFIX", "auth"),
		RegistryFailOpen: getEnvBool("AUTH_REGISTRY_FAIL_OPEN"),

		CacheSize: getEnvIntOrDefault("AUTH_CACHE_SIZE", 4096),
		CacheTTL:  getEnvDurationOrDefault("AUTH_CACHE_TTL", time.Minute),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects configurations that would weaken the token guarantees.
// Called once at startup; a bad config kills the process before it serves
// a single request.
func (c Config) Validate() error {
	if c.Algorithm != "HS256" {
		// The algorithm is fixed per deployment. Supporting negotiation or
		// alternates here would reopen the downgrade surface the verifier
		// closes off.
		return fmt.Errorf("unsupported algorithm %q: only HS256 is supported", c.Algorithm)
	}
	if len(c.Secret) < jwtx.MinKeyBytes {
		return fmt.Errorf("AUTH_SECRET must be at least %d bytes", jwtx.MinKeyBytes)
	}
	if c.AccessTTL <= 0 {
		return errors.New("access token TTL must be positive")
	}
	if c.RefreshTTL <= c.AccessTTL {
		return errors.New("refresh token TTL must exceed the access token TTL")
	}
	if c.RedisAddr == "" {
		return errors.New("AUTH_REDIS_ADDR is required: revocation needs a shared registry")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBool(key string) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && value
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	return defaultValue
}
