// Package config builds runtime configuration from environment variables so
// main stays lean. A local .env file is honored for development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// Postgres captures durable-store configuration. An empty URL switches the
// service to in-memory stores (dev mode).
type Postgres struct {
	URL string
}

// Redis captures the optional live-observer publisher configuration.
type Redis struct {
	URL          string
	EventChannel string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures the optional decision-history publisher configuration.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether a Kafka publisher should be wired.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

// FromEnv builds the full configuration.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr:          envOr("LEADGATE_ADDR", ":8080"),
			JWTSigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		},
		Postgres: Postgres{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: Redis{
			URL:          os.Getenv("REDIS_URL"),
			EventChannel: envOr("REDIS_EVENT_CHANNEL", "leadgate.approval.events"),
			PoolSize:     envIntOr("REDIS_POOL_SIZE", 10),
			DialTimeout:  envDurationOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDurationOr("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDurationOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers: splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_DECISION_TOPIC", "leadgate.approval.decisions"),
		},
		Lifecycle: Lifecycle{
			DefaultSLA:         envDurationOr("APPROVAL_DEFAULT_SLA", time.Hour),
			SLAByType:          parseSLAByType(os.Getenv("APPROVAL_SLA_BY_TYPE")),
			EscalationEnabled:  envOr("APPROVAL_ESCALATION_ENABLED", "true") == "true",
			EscalationDeadline: envDurationOr("APPROVAL_ESCALATION_DEADLINE", 30*time.Minute),
			SweepSchedule:      envOr("APPROVAL_SWEEP_SCHEDULE", "@every 30s"),
		},
		Webhook: Webhook{
			Timeout:     envDurationOr("WEBHOOK_TIMEOUT", 10*time.Second),
			MaxAttempts: envIntOr("WEBHOOK_MAX_ATTEMPTS", 5),
			BaseBackoff: envDurationOr("WEBHOOK_BASE_BACKOFF", 2*time.Second),
			QueueSize:   envIntOr("WEBHOOK_QUEUE_SIZE", 256),
		},
		Optimizer: Optimizer{
			MinSamples:          envIntOr("OPTIMIZER_MIN_SAMPLES", 20),
			FalseApproveWeight:  envFloatOr("OPTIMIZER_FALSE_APPROVE_WEIGHT", 5.0),
			FalseEscalateWeight: envFloatOr("OPTIMIZER_FALSE_ESCALATE_WEIGHT", 1.0),
		},
		BulkDecideParallelism: envIntOr("BULK_DECIDE_PARALLELISM", 8),
	}
}

// Config is the root configuration object wired in cmd/server.
type Config struct {
	Server                Server
	Postgres              Postgres
	Redis                 Redis
	Kafka                 Kafka
	Lifecycle             Lifecycle
	Webhook               Webhook
	Optimizer             Optimizer
	BulkDecideParallelism int
}

// Lifecycle tunes the approval request state machine.
type Lifecycle struct {
	DefaultSLA         time.Duration
	SLAByType          map[string]time.Duration
	EscalationEnabled  bool
	EscalationDeadline time.Duration
	SweepSchedule      string
}

// SLAFor resolves the SLA for an approval type.
func (l Lifecycle) SLAFor(approvalType string) time.Duration {
	if sla, ok := l.SLAByType[approvalType]; ok {
		return sla
	}
	return l.DefaultSLA
}

// Webhook tunes outbound delivery to the workflow engine.
type Webhook struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	QueueSize   int
}

// Optimizer tunes threshold recommendations. The weights encode that a false
// approval costs more than an unnecessary escalation.
type Optimizer struct {
	MinSamples          int
	FalseApproveWeight  float64
	FalseEscalateWeight float64
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseSLAByType parses "demo_site=30m,email_send=2h" style overrides.
func parseSLAByType(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, pair := range splitNonEmpty(s) {
		key, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(val)); err == nil {
			out[strings.TrimSpace(key)] = d
		}
	}
	return out
}
