package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the ledger service.
type Config struct {
	AppName                  string
	AppEnv                   string
	AppPort                  string
	DatabaseURL              string
	RedisURL                 string
	NATSURL                  string
	NATSSubject              string
	AMQPURL                  string
	AMQPExchange             string
	EventChannel             string
	NodeID                   string
	JWTSecret                string
	JWTTTL                   time.Duration
	ChallengeTTL             time.Duration
	ChainID                  uint64
	OwnerAddress             common.Address
	RequireRegisteredStudent bool
	CreditsCacheTTL          time.Duration
	RelaySchedule            string
	RateLimitMax             int
	RateLimitWindow          time.Duration
	WriteTimeout             time.Duration
	ConfirmWindow            time.Duration
	ConfirmInterval          time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromViper(NewViper())
}

// NewViper returns a viper instance reading KRAMIK_* variables with the defaults applied.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("KRAMIK")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Kramik Ledger API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "kramik.ledger.events")
	v.SetDefault("amqp.exchange", "kramik.ledger")
	v.SetDefault("events.channel", "kramik:ledger:events")
	v.SetDefault("jwt.ttl", "24h")
	v.SetDefault("auth.challenge_ttl", "5m")
	v.SetDefault("chain.id", 1337)
	v.SetDefault("ledger.require_registered_student", true)
	v.SetDefault("ledger.credits_cache_ttl", "5m")
	v.SetDefault("relay.schedule", "@every 15s")
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("adapter.write_timeout", "30s")
	v.SetDefault("adapter.confirm_window", "30s")
	v.SetDefault("adapter.confirm_interval", "1s")

	return v
}

// FromViper builds a validated Config from an already populated viper instance.
// Command line tools bind their flags into v before calling it.
func FromViper(v *viper.Viper) (Config, error) {
	durations := map[string]*time.Duration{}
	cfg := Config{
		AppName:                  v.GetString("app.name"),
		AppEnv:                   v.GetString("app.env"),
		AppPort:                  v.GetString("app.port"),
		DatabaseURL:              v.GetString("database.url"),
		RedisURL:                 v.GetString("redis.url"),
		NATSURL:                  v.GetString("nats.url"),
		NATSSubject:              v.GetString("nats.subject"),
		AMQPURL:                  v.GetString("amqp.url"),
		AMQPExchange:             v.GetString("amqp.exchange"),
		EventChannel:             v.GetString("events.channel"),
		NodeID:                   v.GetString("node.id"),
		JWTSecret:                v.GetString("jwt.secret"),
		ChainID:                  v.GetUint64("chain.id"),
		RequireRegisteredStudent: v.GetBool("ledger.require_registered_student"),
		RelaySchedule:            v.GetString("relay.schedule"),
		RateLimitMax:             v.GetInt("rate_limit.max"),
	}

	durations["jwt.ttl"] = &cfg.JWTTTL
	durations["auth.challenge_ttl"] = &cfg.ChallengeTTL
	durations["ledger.credits_cache_ttl"] = &cfg.CreditsCacheTTL
	durations["rate_limit.window"] = &cfg.RateLimitWindow
	durations["adapter.write_timeout"] = &cfg.WriteTimeout
	durations["adapter.confirm_window"] = &cfg.ConfirmWindow
	durations["adapter.confirm_interval"] = &cfg.ConfirmInterval

	for key, target := range durations {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		if parsed < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", key)
		}
		*target = parsed
	}

	if owner := strings.TrimSpace(v.GetString("owner.address")); owner != "" {
		if !common.IsHexAddress(owner) {
			return Config{}, fmt.Errorf("invalid owner address %q", owner)
		}
		cfg.OwnerAddress = common.HexToAddress(owner)
	}

	if cfg.ChainID == 0 {
		return Config{}, fmt.Errorf("chain id must be positive")
	}
	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 30
	}

	return cfg, nil
}

// ValidateServer checks the settings only the API server needs.
func (c Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.OwnerAddress == (common.Address{}) {
		return fmt.Errorf("owner address must be provided")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}
	return nil
}
