package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr string

	// Issuer identity and key material. PrivateKey/PublicKey hold either an
	// inline PEM block or a path to a PEM file; missing key material is a
	// startup precondition failure, never a per-request error.
	IssuerDID  string
	PrivateKey string
	PublicKey  string

	// AdminToken guards the administrative endpoints. Admin routes refuse all
	// requests while it is unset.
	AdminToken string

	// DatabaseURL selects the Postgres stores when set; in-memory stores are
	// used otherwise.
	DatabaseURL string

	Redis RedisConfig

	// KafkaBrokers enables the Kafka audit publisher when set.
	KafkaBrokers string
	AuditTopic   string

	DefaultCredentialTTL time.Duration
	DefaultChallengeTTL  time.Duration
	ResolveTimeout       time.Duration
	CleanupInterval      time.Duration
}

// RedisConfig captures Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envOr("RACEPASS_ADDR", ":8080"),
		IssuerDID:   envOr("VC_ISSUER_DID", "did:web:racepass.local"),
		PrivateKey:  os.Getenv("VC_PRIVATE_KEY"),
		PublicKey:   os.Getenv("VC_PUBLIC_KEY"),
		AdminToken:  os.Getenv("ADMIN_TOKEN"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers:         os.Getenv("KAFKA_BROKERS"),
		AuditTopic:           envOr("AUDIT_TOPIC", "racepass.audit"),
		DefaultCredentialTTL: envDuration("CREDENTIAL_TTL", time.Hour),
		DefaultChallengeTTL:  envDuration("CHALLENGE_TTL", time.Minute),
		ResolveTimeout:       envDuration("DID_RESOLVE_TIMEOUT", 5*time.Second),
		CleanupInterval:      envDuration("CLEANUP_INTERVAL", 5*time.Minute),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
