package config

import (
	"os"
	"strconv"
	"time"

	"idserver/pkg/platform/strlist"
)

// Config is the full runtime configuration, read from the environment.
type Config struct {
	Server    Server
	Postgres  PostgresConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Signer    SignerConfig
	Providers ProvidersConfig
	Payments  PaymentsConfig
	Issuance  IssuanceConfig
	Admin     AdminConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
}

// IsDev reports whether the service runs in a development environment.
func (s Server) IsDev() bool {
	return s.Environment == "dev" || s.Environment == "development"
}

// PostgresConfig configures the session, registry and nullifier stores.
// An empty URL selects in-memory stores.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the refund mutex backend. An empty URL falls back to
// the Postgres (or in-memory) mutex.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit event stream. No brokers disables it.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
	Partitions int32
}

// SignerConfig points at the external credential signer.
type SignerConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// ProvidersConfig holds per-vendor API credentials.
type ProvidersConfig struct {
	Timeout time.Duration
	Veriff  VeriffConfig
	Onfido  OnfidoConfig
	IDenfy  IDenfyConfig
	FaceTec FaceTecConfig
}

type VeriffConfig struct {
	BaseURL   string
	PublicKey string
	SecretKey string
}

type OnfidoConfig struct {
	BaseURL         string
	APIToken        string
	RequiredReports []string
}

type IDenfyConfig struct {
	BaseURL   string
	APIKey    string
	APISecret string
}

type FaceTecConfig struct {
	BaseURL       string
	APIKey        string
	GroupName     string
	MinMatchLevel int
}

// PaymentsConfig configures payment verification and refunds.
type PaymentsConfig struct {
	RefundURL         string
	APIKey            string
	SupportedChainIDs []int64
	Timeout           time.Duration
}

// IssuanceConfig tunes the issuance windows.
type IssuanceConfig struct {
	ReplayWindow      time.Duration
	DedupWindowMonths int
	RefundLockTTL     time.Duration
	// DummyCredentials signs the fixed test identity for every request.
	// Honoured only in a dev environment.
	DummyCredentials bool
}

// AdminConfig guards the admin routes. APIKeyHash is a bcrypt hash.
type AdminConfig struct {
	APIKeyHash string
}

// FromEnv builds the configuration from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Server: Server{
			Addr:        getEnv("IDSERVER_ADDR", ":8080"),
			Environment: getEnv("ENVIRONMENT", "dev"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Postgres: PostgresConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    getList("KAFKA_BROKERS"),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "idserver.audit"),
			Partitions: int32(getInt("KAFKA_AUDIT_PARTITIONS", 3)),
		},
		Signer: SignerConfig{
			URL:     getEnv("SIGNER_URL", "http://localhost:8090"),
			APIKey:  os.Getenv("SIGNER_API_KEY"),
			Timeout: getDuration("SIGNER_TIMEOUT", 10*time.Second),
		},
		Providers: ProvidersConfig{
			Timeout: getDuration("PROVIDER_TIMEOUT", 15*time.Second),
			Veriff: VeriffConfig{
				BaseURL:   getEnv("VERIFF_BASE_URL", "https://api.veriff.me"),
				PublicKey: os.Getenv("VERIFF_PUBLIC_API_KEY"),
				SecretKey: os.Getenv("VERIFF_SECRET_API_KEY"),
			},
			Onfido: OnfidoConfig{
				BaseURL:         getEnv("ONFIDO_BASE_URL", "https://api.us.onfido.com/v3.6"),
				APIToken:        os.Getenv("ONFIDO_API_TOKEN"),
				RequiredReports: getLowerListDefault("ONFIDO_REQUIRED_REPORTS", []string{"document", "facial_similarity_video"}),
			},
			IDenfy: IDenfyConfig{
				BaseURL:   getEnv("IDENFY_BASE_URL", "https://ivs.idenfy.com"),
				APIKey:    os.Getenv("IDENFY_API_KEY"),
				APISecret: os.Getenv("IDENFY_API_SECRET"),
			},
			FaceTec: FaceTecConfig{
				BaseURL:       getEnv("FACETEC_SERVER_URL", "http://localhost:8081"),
				APIKey:        os.Getenv("FACETEC_API_KEY"),
				GroupName:     getEnv("FACETEC_GROUP_NAME", "idserver-kyc"),
				MinMatchLevel: getInt("FACETEC_MIN_MATCH_LEVEL", 6),
			},
		},
		Payments: PaymentsConfig{
			RefundURL:         getEnv("PAYMENTS_REFUND_URL", "http://localhost:8091"),
			APIKey:            os.Getenv("PAYMENTS_API_KEY"),
			SupportedChainIDs: getInt64List("PAYMENTS_SUPPORTED_CHAIN_IDS", []int64{1, 10, 250, 8453}),
			Timeout:           getDuration("PAYMENTS_TIMEOUT", 30*time.Second),
		},
		Issuance: IssuanceConfig{
			ReplayWindow:      getDuration("ISSUANCE_REPLAY_WINDOW", 5*24*time.Hour),
			DedupWindowMonths: getInt("ISSUANCE_DEDUP_WINDOW_MONTHS", 11),
			RefundLockTTL:     getPositiveDuration("REFUND_LOCK_TTL", 10*time.Minute),
			DummyCredentials:  getEnv("ISSUANCE_DUMMY_CREDENTIALS", "") == "true",
		},
		Admin: AdminConfig{
			APIKeyHash: os.Getenv("ADMIN_API_KEY_HASH"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// getPositiveDuration rejects zero and negative values, which would make a
// TTL either never expire or expire immediately.
func getPositiveDuration(key string, fallback time.Duration) time.Duration {
	if v := getDuration(key, fallback); v > 0 {
		return v
	}
	return fallback
}

func getList(key string) []string {
	return getListDefault(key, nil)
}

func getListDefault(key string, fallback []string) []string {
	if parts := strlist.Split(os.Getenv(key)); len(parts) > 0 {
		return parts
	}
	return fallback
}

func getLowerListDefault(key string, fallback []string) []string {
	if parts := strlist.SplitLower(os.Getenv(key)); len(parts) > 0 {
		return parts
	}
	return fallback
}

func getInt64List(key string, fallback []int64) []int64 {
	parts := getList(key)
	if len(parts) == 0 {
		return fallback
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
