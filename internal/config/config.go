package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bipbip/bips-backend/pkg/clientip"
)

// Storage and transport backends selectable at startup.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreRedis    = "redis"

	TransportLocal   = "local"
	TransportRedis   = "redis"
	TransportGateway = "gateway"

	GoneIgnore   = "ignore"
	GoneSync     = "sync"
	GoneDeferred = "deferred"
)

type Config struct {
	Port        string
	Environment string // ENV: production, development, etc.

	MongoURI    string
	PostgresURI string
	RedisURI    string

	BipStore        string // BIPS_BIP_STORE: mongo or postgres
	ConnectionStore string // BIPS_CONNECTION_STORE: redis or mongo
	PushTransport   string // BIPS_PUSH_TRANSPORT: local, redis or gateway
	GatewayEndpoint string // management endpoint, used when PushTransport is gateway
	GonePolicy      string // BIPS_GONE_POLICY: ignore, sync or deferred

	Realtime          bool
	ProximityMeters   float64
	FanoutConcurrency int
	PushTimeout       time.Duration
	ReapInterval      time.Duration
	Retention         time.Duration // 0 keeps bips forever
	RetentionInterval time.Duration
	CreateRateLimit   int // bip creations per IP per CreateRateWindow
	CreateRateWindow  time.Duration
	AllowedOrigins    []string
	TrustedProxies    []string // TRUSTED_PROXIES: proxies whose X-Forwarded-For is believed
	RequestTimeout    time.Duration
}

func Load() *Config {
	env := strings.ToLower(strings.TrimSpace(getEnv("ENV", "development")))

	allowedOrigins := parseOrigins(getEnv("ALLOWED_ORIGINS", ""))
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{getEnv("FRONTEND_URL", "http://localhost:3000")}
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: env,

		MongoURI:    getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/bips")),
		PostgresURI: getEnv("POSTGRES_URI", "postgres://localhost:5432/bips?sslmode=disable"),
		RedisURI:    getEnv("REDIS_URI", "redis://localhost:6379/0"),

		BipStore:        strings.ToLower(getEnv("BIPS_BIP_STORE", StoreMongo)),
		ConnectionStore: strings.ToLower(getEnv("BIPS_CONNECTION_STORE", StoreRedis)),
		PushTransport:   strings.ToLower(getEnv("BIPS_PUSH_TRANSPORT", TransportRedis)),
		GatewayEndpoint: strings.TrimRight(getEnv("BIPS_GATEWAY_ENDPOINT", ""), "/"),
		GonePolicy:      strings.ToLower(getEnv("BIPS_GONE_POLICY", GoneDeferred)),

		Realtime:          getEnvBool("BIPS_REALTIME", true),
		ProximityMeters:   getEnvFloat("BIPS_PROXIMITY_METERS", 50),
		FanoutConcurrency: getEnvInt("BIPS_FANOUT_CONCURRENCY", 16),
		PushTimeout:       getEnvDuration("BIPS_PUSH_TIMEOUT", 5*time.Second),
		ReapInterval:      getEnvDuration("BIPS_REAP_INTERVAL", 30*time.Second),
		Retention:         getEnvDuration("BIPS_RETENTION", 48*time.Hour),
		RetentionInterval: getEnvDuration("BIPS_RETENTION_INTERVAL", time.Hour),
		CreateRateLimit:   getEnvInt("BIPS_CREATE_RATE_LIMIT", 30),
		CreateRateWindow:  getEnvDuration("BIPS_CREATE_RATE_WINDOW", time.Minute),
		AllowedOrigins:    allowedOrigins,
		TrustedProxies:    parseOrigins(getEnv("TRUSTED_PROXIES", "")),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

// Validate rejects unknown backend names and settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.BipStore {
	case StoreMongo, StorePostgres:
	default:
		return fmt.Errorf("invalid BIPS_BIP_STORE %q (want mongo or postgres)", c.BipStore)
	}
	switch c.ConnectionStore {
	case StoreRedis, StoreMongo:
	default:
		return fmt.Errorf("invalid BIPS_CONNECTION_STORE %q (want redis or mongo)", c.ConnectionStore)
	}
	switch c.PushTransport {
	case TransportLocal, TransportRedis:
	case TransportGateway:
		if c.GatewayEndpoint == "" {
			return fmt.Errorf("BIPS_GATEWAY_ENDPOINT is required with the gateway push transport")
		}
	default:
		return fmt.Errorf("invalid BIPS_PUSH_TRANSPORT %q (want local, redis or gateway)", c.PushTransport)
	}
	switch c.GonePolicy {
	case GoneIgnore, GoneSync, GoneDeferred:
	default:
		return fmt.Errorf("invalid BIPS_GONE_POLICY %q (want ignore, sync or deferred)", c.GonePolicy)
	}
	if c.FanoutConcurrency <= 0 {
		return fmt.Errorf("BIPS_FANOUT_CONCURRENCY must be positive")
	}
	if c.PushTimeout <= 0 {
		return fmt.Errorf("BIPS_PUSH_TIMEOUT must be positive")
	}
	if _, err := clientip.ParseTrusted(c.TrustedProxies); err != nil {
		return fmt.Errorf("invalid TRUSTED_PROXIES: %v", err)
	}
	return nil
}

// IsProduction returns true when ENV is set to "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// parseOrigins splits a comma separated list, dropping blanks.
func parseOrigins(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}
