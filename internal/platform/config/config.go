// Package config loads service configuration from the environment so main
// stays lean. Every knob has a default that works for local development; a
// deployment only overrides what it needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "arbiter/pkg/platform/strings"
)

// Config is the top-level service configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// DevMode runs the service against simulated sources and an in-memory
	// ledger so it starts with no external dependencies.
	DevMode bool
	// ShutdownTimeout bounds graceful shutdown after SIGINT/SIGTERM.
	ShutdownTimeout time.Duration

	Synthesis Synthesis
	Sources   Sources
	Ledger    Ledger
	Redis     Redis
	Postgres  Postgres
	Kafka     Kafka
	OpenAI    OpenAI
}

// Synthesis holds the aggregation tunables.
type Synthesis struct {
	// Factor weights in percent. Must sum to exactly 100.
	WeightIdentity int
	WeightCredit   int
	WeightHistory  int
	WeightMarket   int
	// Category thresholds: score < Thresholds[i] selects the i-th category
	// (very_low, low, moderate, high); at or above the last one is very_high.
	// Must be strictly ascending.
	Thresholds [4]int
	// ConfidenceFloor forces manual review when aggregate confidence falls
	// below it.
	ConfidenceFloor float64
	// MaxAmount rejects invoices above this face value.
	MaxAmount float64
}

// SourceSettings configures one upstream source adapter.
type SourceSettings struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retries int
}

// Sources configures the four factor sources.
type Sources struct {
	Identity SourceSettings
	Credit   SourceSettings
	Market   SourceSettings
	History  SourceSettings
	// IdentitySigningKey signs the per-request service tokens sent to the
	// identity provider.
	IdentitySigningKey string
}

// Ledger configures the external ledger client and recorder.
type Ledger struct {
	Endpoint       string
	AuthToken      string
	Timeout        time.Duration
	SubmitAttempts int
	SubmitBackoff  time.Duration
}

// Redis configures the reference-store connection. An empty URL disables
// Redis and the recorder falls back to its in-memory store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Postgres configures the assessment archive. An empty DSN selects the
// in-memory archive.
type Postgres struct {
	DSN string
}

// Kafka configures the lifecycle-event publisher. No brokers disables it.
type Kafka struct {
	Brokers []string
	Topic   string
}

// OpenAI configures the explanation generator. An empty key selects the
// deterministic template fallback.
type OpenAI struct {
	APIKey string
	Model  string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:            getString("ARBITER_ADDR", ":8080"),
		LogLevel:        getString("ARBITER_LOG_LEVEL", "info"),
		DevMode:         getBool("ARBITER_DEV_MODE", false),
		ShutdownTimeout: getDuration("ARBITER_SHUTDOWN_TIMEOUT", 10*time.Second),

		Synthesis: Synthesis{
			WeightIdentity: getInt("ARBITER_WEIGHT_IDENTITY", 15),
			WeightCredit:   getInt("ARBITER_WEIGHT_CREDIT", 40),
			WeightHistory:  getInt("ARBITER_WEIGHT_HISTORY", 25),
			WeightMarket:   getInt("ARBITER_WEIGHT_MARKET", 20),
			Thresholds: [4]int{
				getInt("ARBITER_THRESHOLD_VERY_LOW", 20),
				getInt("ARBITER_THRESHOLD_LOW", 40),
				getInt("ARBITER_THRESHOLD_MODERATE", 60),
				getInt("ARBITER_THRESHOLD_HIGH", 80),
			},
			ConfidenceFloor: getFloat("ARBITER_CONFIDENCE_FLOOR", 0.5),
			MaxAmount:       getFloat("ARBITER_MAX_INVOICE_AMOUNT", 1_000_000),
		},

		Sources: Sources{
			Identity: SourceSettings{
				BaseURL: getString("ARBITER_IDENTITY_URL", ""),
				APIKey:  getString("ARBITER_IDENTITY_API_KEY", ""),
				Timeout: getDuration("ARBITER_IDENTITY_TIMEOUT", 30*time.Second),
				Retries: getInt("ARBITER_IDENTITY_RETRIES", 1),
			},
			Credit: SourceSettings{
				BaseURL: getString("ARBITER_CREDIT_URL", ""),
				APIKey:  getString("ARBITER_CREDIT_API_KEY", ""),
				Timeout: getDuration("ARBITER_CREDIT_TIMEOUT", 120*time.Second),
				Retries: getInt("ARBITER_CREDIT_RETRIES", 1),
			},
			Market: SourceSettings{
				BaseURL: getString("ARBITER_MARKET_URL", ""),
				APIKey:  getString("ARBITER_MARKET_API_KEY", ""),
				Timeout: getDuration("ARBITER_MARKET_TIMEOUT", 60*time.Second),
				Retries: getInt("ARBITER_MARKET_RETRIES", 1),
			},
			History: SourceSettings{
				Timeout: getDuration("ARBITER_HISTORY_TIMEOUT", 30*time.Second),
				Retries: getInt("ARBITER_HISTORY_RETRIES", 1),
			},
			IdentitySigningKey: getString("ARBITER_IDENTITY_SIGNING_KEY", "dev-signing-key-change-in-production"),
		},

		Ledger: Ledger{
			Endpoint:       getString("ARBITER_LEDGER_ENDPOINT", ""),
			AuthToken:      getString("ARBITER_LEDGER_AUTH_TOKEN", ""),
			Timeout:        getDuration("ARBITER_LEDGER_TIMEOUT", 15*time.Second),
			SubmitAttempts: getInt("ARBITER_LEDGER_SUBMIT_ATTEMPTS", 5),
			SubmitBackoff:  getDuration("ARBITER_LEDGER_SUBMIT_BACKOFF", 200*time.Millisecond),
		},

		Redis: Redis{
			URL:          getString("ARBITER_REDIS_URL", ""),
			PoolSize:     getInt("ARBITER_REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("ARBITER_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("ARBITER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("ARBITER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("ARBITER_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},

		Postgres: Postgres{
			DSN: getString("ARBITER_POSTGRES_DSN", ""),
		},

		Kafka: Kafka{
			Brokers: getStrings("ARBITER_KAFKA_BROKERS"),
			Topic:   getString("ARBITER_KAFKA_TOPIC", "arbiter.assessment.events"),
		},

		OpenAI: OpenAI{
			APIKey: getString("ARBITER_OPENAI_API_KEY", ""),
			Model:  getString("ARBITER_OPENAI_MODEL", "gpt-4o-mini"),
		},
	}
}

// Validate rejects configurations that would produce nonsensical scores.
func (c Config) Validate() error {
	s := c.Synthesis
	if sum := s.WeightIdentity + s.WeightCredit + s.WeightHistory + s.WeightMarket; sum != 100 {
		return fmt.Errorf("factor weights must sum to 100, got %d", sum)
	}
	if s.WeightIdentity < 0 || s.WeightCredit < 0 || s.WeightHistory < 0 || s.WeightMarket < 0 {
		return fmt.Errorf("factor weights must be non-negative")
	}
	for i := 1; i < len(s.Thresholds); i++ {
		if s.Thresholds[i] <= s.Thresholds[i-1] {
			return fmt.Errorf("category thresholds must be strictly ascending, got %v", s.Thresholds)
		}
	}
	if s.Thresholds[0] <= 0 || s.Thresholds[3] > 100 {
		return fmt.Errorf("category thresholds must lie in (0, 100], got %v", s.Thresholds)
	}
	if s.ConfidenceFloor < 0 || s.ConfidenceFloor > 1 {
		return fmt.Errorf("confidence floor must be in [0, 1], got %v", s.ConfidenceFloor)
	}
	if s.MaxAmount <= 0 {
		return fmt.Errorf("max invoice amount must be positive, got %v", s.MaxAmount)
	}
	if c.Ledger.SubmitAttempts < 1 {
		return fmt.Errorf("ledger submit attempts must be at least 1, got %d", c.Ledger.SubmitAttempts)
	}
	return nil
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getStrings(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return platformstrings.DedupeAndTrim(strings.Split(v, ","))
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
