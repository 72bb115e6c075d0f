package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv             string
	LogLevel           string
	HTTPAddr           string
	DBDSN              string
	JWTIssuer          string
	JWTSecret          string
	WebSocketOrigin    string
	RedisAddr          string
	PriceCacheTTL      time.Duration
	PriceFeedURL       string
	PriceFeedTimeout   time.Duration
	KafkaBrokers       []string
	KafkaNotifyTopic   string
	PriceLockTTL       time.Duration
	SweepInterval      time.Duration
	SweepBatch         int
	ReconcileInterval  time.Duration
	NotifyTimeout      time.Duration
	DeliveryFeePerGram decimal.Decimal
	DeliveryFeePerCoin decimal.Decimal
}

// Load reads the process environment, after merging an optional .env file
// (ENV_FILE, default ".env"). Existing variables win over the file.
func Load() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WS_ORIGIN", "*")
	v.SetDefault("PRICE_CACHE_TTL", "2s")
	v.SetDefault("PRICE_FEED_TIMEOUT", "3s")
	v.SetDefault("KAFKA_NOTIFY_TOPIC", "goldex.notifications")
	v.SetDefault("PRICE_LOCK_TTL", "180s")
	v.SetDefault("SWEEP_INTERVAL", "5s")
	v.SetDefault("SWEEP_BATCH", 100)
	v.SetDefault("RECONCILE_INTERVAL", "10m")
	v.SetDefault("NOTIFY_TIMEOUT", "8s")
	v.SetDefault("DELIVERY_FEE_PER_GRAM", "0")
	v.SetDefault("DELIVERY_FEE_PER_COIN", "0")
}

func fromViper(v *viper.Viper) (Config, error) {
	var c Config
	var missing []string
	required := func(key string) string {
		val := strings.TrimSpace(v.GetString(key))
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}
	c.HTTPAddr = required("HTTP_ADDR")
	c.DBDSN = required("DB_DSN")
	c.JWTIssuer = required("JWT_ISSUER")
	c.JWTSecret = required("JWT_SECRET")

	c.AppEnv = strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV")))
	if c.AppEnv != "development" && c.AppEnv != "production" {
		return c, errors.New("invalid APP_ENV: use development or production")
	}
	c.LogLevel = v.GetString("LOG_LEVEL")
	c.WebSocketOrigin = v.GetString("WS_ORIGIN")
	if c.AppEnv == "production" && c.WebSocketOrigin == "*" {
		return c, errors.New("WS_ORIGIN must be explicit in production")
	}
	c.RedisAddr = strings.TrimSpace(v.GetString("REDIS_ADDR"))
	c.PriceFeedURL = strings.TrimSpace(v.GetString("PRICE_FEED_URL"))
	c.KafkaNotifyTopic = v.GetString("KAFKA_NOTIFY_TOPIC")
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.KafkaBrokers = append(c.KafkaBrokers, b)
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"PRICE_CACHE_TTL", &c.PriceCacheTTL},
		{"PRICE_FEED_TIMEOUT", &c.PriceFeedTimeout},
		{"PRICE_LOCK_TTL", &c.PriceLockTTL},
		{"SWEEP_INTERVAL", &c.SweepInterval},
		{"RECONCILE_INTERVAL", &c.ReconcileInterval},
		{"NOTIFY_TIMEOUT", &c.NotifyTimeout},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil || parsed <= 0 {
			return c, fmt.Errorf("invalid %s", d.key)
		}
		*d.dst = parsed
	}

	c.SweepBatch = v.GetInt("SWEEP_BATCH")
	if c.SweepBatch <= 0 {
		return c, errors.New("invalid SWEEP_BATCH")
	}

	var err error
	if c.DeliveryFeePerGram, err = nonNegativeDecimal(v, "DELIVERY_FEE_PER_GRAM"); err != nil {
		return c, err
	}
	if c.DeliveryFeePerCoin, err = nonNegativeDecimal(v, "DELIVERY_FEE_PER_COIN"); err != nil {
		return c, err
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return c, nil
}

func nonNegativeDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil || d.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}
