package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/salemap/saled/pkg/config"
)

const (
	GeocacheBackendPostgres = "postgres"
	GeocacheBackendRedis    = "redis"
)

// Config holds the runtime configuration for a saled instance.
type Config struct {
	ServiceName string // e.g. "saled"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string
	Port        int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	// Empty DatabaseURL runs on the in-memory store.
	DatabaseURL         string
	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	RedisAddr string
	RedisDB   int
	RedisPass string

	GeocacheBackend string // "postgres" | "redis"

	NATSURL     string // empty disables event publishing
	EventStream string

	RabbitMQURL      string // empty runs the creation trigger in-process
	SaleCreatedQueue string

	MapTilerBaseURL     string
	MapTilerKey         string
	MapTilerSecretName  string // optional Secrets Manager source for the key
	MapTilerSecretField string
	AWSRegion           string
	SecretCacheTTL      time.Duration
	CleanupFreq         time.Duration

	GeocoderTimeout  time.Duration
	GeocoderRetryMax int
	GeocoderRPS      float64
	GeocoderBurst    int

	ReconcileInterval  time.Duration
	ReconcileChunkSize int
	ReconcileOnStart   bool
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:      pkgconfig.GetEnv("SERVICE_NAME", "saled"),
		Env:              pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:         pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:             pkgconfig.GetEnvInt("SALED_PORT", 8080),
		HTTPReadTimeout:  pkgconfig.GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout: pkgconfig.GetEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		HTTPIdleTimeout:  pkgconfig.GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:    pkgconfig.GetEnvInt("HTTP_BODY_LIMIT", 256*1024),

		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),

		RedisAddr: pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:   pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass: pkgconfig.GetEnv("REDIS_PASS", ""),

		GeocacheBackend: strings.ToLower(pkgconfig.GetEnv("GEOCACHE_BACKEND", GeocacheBackendPostgres)),

		NATSURL:     pkgconfig.GetEnv("NATS_URL", ""),
		EventStream: pkgconfig.GetEnv("EVENT_STREAM", "SALE_EVENTS"),

		RabbitMQURL:      pkgconfig.GetEnv("RABBITMQ_URL", ""),
		SaleCreatedQueue: pkgconfig.GetEnv("SALE_CREATED_QUEUE", "sales.created"),

		MapTilerBaseURL:     pkgconfig.GetEnv("MAPTILER_BASE_URL", "https://api.maptiler.com/geocoding"),
		MapTilerKey:         pkgconfig.GetEnv("MAPTILER_KEY", ""),
		MapTilerSecretName:  pkgconfig.GetEnv("MAPTILER_SECRET_NAME", ""),
		MapTilerSecretField: pkgconfig.GetEnv("MAPTILER_SECRET_FIELD", "api_key"),
		AWSRegion:           pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		SecretCacheTTL:      pkgconfig.GetEnvDuration("SECRET_CACHE_TTL", 1*time.Hour),
		CleanupFreq:         pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),

		GeocoderTimeout:  pkgconfig.GetEnvDuration("GEOCODER_TIMEOUT", 10*time.Second),
		GeocoderRetryMax: pkgconfig.GetEnvInt("GEOCODER_RETRY_MAX", 2),
		GeocoderRPS:      pkgconfig.GetEnvFloat("GEOCODER_RPS", 5),
		GeocoderBurst:    pkgconfig.GetEnvInt("GEOCODER_BURST", 5),

		ReconcileInterval:  pkgconfig.GetEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		ReconcileChunkSize: pkgconfig.GetEnvInt("RECONCILE_CHUNK_SIZE", 400),
		ReconcileOnStart:   pkgconfig.GetEnvBool("RECONCILE_ON_START", true),
	}

	return cfg
}
