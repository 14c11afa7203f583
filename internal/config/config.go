package config

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config holds application configuration (env + Viper).
type Config struct {
	Env      string
	Port     string
	LogLevel string

	DatabaseURL string // Postgres DSN; when empty SQLitePath is used
	SQLitePath  string
	RedisURL    string

	KafkaBrokers       []string
	KafkaTransferTopic string

	HealthAdminKey string
	AdminKeyHash   string // bcrypt hash of the X-Admin-Key value

	PlatformHolderID   uuid.UUID // holder that receives an issuer's full supply before the split
	IssuanceFeePercent int64     // share of the supply kept by the platform at issuance, floored
	SalesStartDelay    time.Duration
	CartHoldTTL        time.Duration
	AltOfferTTL        time.Duration
	SweepInterval      time.Duration
}

// Load loads config from env and optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SQLITE_PATH", "shard-exchange.db")
	v.SetDefault("KAFKA_TRANSFER_TOPIC", "shard.transfers")
	v.SetDefault("ISSUANCE_FEE_PERCENT", 10)
	v.SetDefault("SALES_START_DELAY_DAYS", 30)
	v.SetDefault("CART_HOLD_TTL", "60m")
	v.SetDefault("ALT_OFFER_TTL", "48h")
	v.SetDefault("SWEEP_INTERVAL", "1m")

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	platform := uuid.Nil
	if s := strings.TrimSpace(v.GetString("PLATFORM_HOLDER_ID")); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, errors.Wrap(err, "PLATFORM_HOLDER_ID")
		}
		platform = id
	}

	fee := v.GetInt64("ISSUANCE_FEE_PERCENT")
	if fee < 0 || fee > 100 {
		return nil, errors.Errorf("ISSUANCE_FEE_PERCENT must be within 0..100, got %d", fee)
	}

	return &Config{
		Env:                v.GetString("APP_ENV"),
		Port:               v.GetString("PORT"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		SQLitePath:         v.GetString("SQLITE_PATH"),
		RedisURL:           v.GetString("REDIS_URL"),
		KafkaBrokers:       splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTransferTopic: v.GetString("KAFKA_TRANSFER_TOPIC"),
		HealthAdminKey:     v.GetString("HEALTH_ADMIN_KEY"),
		AdminKeyHash:       v.GetString("ADMIN_KEY_HASH"),
		PlatformHolderID:   platform,
		IssuanceFeePercent: fee,
		SalesStartDelay:    time.Duration(v.GetInt64("SALES_START_DELAY_DAYS")) * 24 * time.Hour,
		CartHoldTTL:        v.GetDuration("CART_HOLD_TTL"),
		AltOfferTTL:        v.GetDuration("ALT_OFFER_TTL"),
		SweepInterval:      v.GetDuration("SWEEP_INTERVAL"),
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
