package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"liftoff"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"liftoff"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"liftoff"`

	DBStatementTimeoutMS  int `env:"DB_STATEMENT_TIMEOUT_MS" envDefault:"5000"`
	DBConnectionTimeoutMS int `env:"DB_CONNECTION_TIMEOUT_MS" envDefault:"5000"`
	DBIdleTimeoutMS       int `env:"DB_IDLE_TIMEOUT_MS" envDefault:"30000"`

	// Server
	APIPort          int `env:"API_PORT" envDefault:"3200"`
	RequestTimeoutMS int `env:"REQUEST_TIMEOUT_MS" envDefault:"15000"`

	// JWT
	JWTSecret       string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTPlayerExpiry string `env:"JWT_PLAYER_EXPIRY" envDefault:"24h"`
	JWTAdminExpiry  string `env:"JWT_ADMIN_EXPIRY" envDefault:"8h"`

	// Provably-fair seed chain
	SeedMaster         string `env:"SEED_MASTER"`
	AllowEphemeralSeed bool   `env:"ALLOW_EPHEMERAL_SEEDS" envDefault:"false"`

	// Round engine
	BroadcastIntervalMS     int   `env:"BROADCAST_INTERVAL_MS" envDefault:"100"`
	RoundGapMS              int   `env:"ROUND_GAP_MS" envDefault:"5000"`
	SettlementWindowSeconds int64 `env:"SETTLEMENT_WINDOW_SECONDS" envDefault:"300"`
	MaxRoundAgeSeconds      int64 `env:"MAX_ROUND_AGE_SECONDS" envDefault:"300"`

	// Bets (amounts are cents)
	MinBetAmount int64 `env:"MIN_BET_AMOUNT" envDefault:"100"`
	MaxBetAmount int64 `env:"MAX_BET_AMOUNT" envDefault:"10000000"`

	// Cashout throttle
	CashoutMinIntervalMS int `env:"CASHOUT_MIN_INTERVAL_MS" envDefault:"1000"`
	CashoutPruneAgeMS    int `env:"CASHOUT_PRUNE_AGE_MS" envDefault:"60000"`
	MaxCashoutEntries    int `env:"MAX_CASHOUT_ENTRIES" envDefault:"10000"`

	// Payments (amounts are cents)
	MinDepositAmount      int64  `env:"MIN_DEPOSIT_AMOUNT" envDefault:"100"`
	MaxDepositAmount      int64  `env:"MAX_DEPOSIT_AMOUNT" envDefault:"100000000"`
	MinWithdrawAmount     int64  `env:"MIN_WITHDRAW_AMOUNT" envDefault:"100"`
	MaxWithdrawAmount     int64  `env:"MAX_WITHDRAW_AMOUNT" envDefault:"100000000"`
	PaymentPollAttempts   int    `env:"PAYMENT_POLL_ATTEMPTS" envDefault:"60"`
	PaymentPollIntervalMS int    `env:"PAYMENT_POLL_INTERVAL_MS" envDefault:"5000"`
	GatewayCollectionURL  string `env:"GATEWAY_COLLECTION_URL"`
	GatewayDisburseURL    string `env:"GATEWAY_DISBURSE_URL"`
	GatewayToken          string `env:"GATEWAY_TOKEN"`
	GatewayAccount        string `env:"GATEWAY_ACCOUNT"`

	// Auth rate limiting
	LoginRateLimit    int `env:"LOGIN_RATE_LIMIT" envDefault:"10"`
	LoginRateWindowMS int `env:"LOGIN_RATE_WINDOW_MS" envDefault:"60000"`
	MaxRateEntries    int `env:"MAX_RATE_ENTRIES" envDefault:"10000"`

	// Cache
	RoundCacheTTLMS int `env:"ROUND_CACHE_TTL_MS" envDefault:"2000"`

	// Kafka
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.SeedMaster == "" && !c.AllowEphemeralSeed {
		return fmt.Errorf("SEED_MASTER is not set; seeds would not be recoverable after a restart. Set it or set ALLOW_EPHEMERAL_SEEDS=true")
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}

// BroadcastInterval returns the tick cadence as a duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.BroadcastIntervalMS) * time.Millisecond
}

// RoundGap returns the pause between a crash and the next round.
func (c *Config) RoundGap() time.Duration {
	return time.Duration(c.RoundGapMS) * time.Millisecond
}

// RequestTimeout returns the per-request handler deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// PlayerTokenTTL returns the player JWT lifetime, falling back to 24h on a
// malformed value.
func (c *Config) PlayerTokenTTL() time.Duration {
	return parseDurationOr(c.JWTPlayerExpiry, 24*time.Hour)
}

// AdminTokenTTL returns the admin JWT lifetime, falling back to 8h on a
// malformed value.
func (c *Config) AdminTokenTTL() time.Duration {
	return parseDurationOr(c.JWTAdminExpiry, 8*time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
