package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Env          string
	Port         string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	Gateway GatewayConfig
	Fee     FeeConfig
}

// GatewayConfig carries the gateway protocol settings. It is injected into
// the gateway client at construction; nothing reads gateway secrets from the
// environment after startup.
type GatewayConfig struct {
	Name         string
	Version      string
	MerchantCode string
	Secret       string
	PayURL       string
	QueryURL     string
	ReturnURL    string
	Locale       string
	// AmountScale converts major units to the gateway's minor-unit integers.
	AmountScale int64
	// AllowUnsigned skips callback signature checks in integration setups
	// where the sandbox gateway sends unsigned payloads. Refused in
	// production.
	AllowUnsigned bool
	QueryTimeout  int // seconds
}

type FeeConfig struct {
	RoutingURL      string
	RoutingTimeout  int // seconds
	BaseFee         float64
	PerKmFee        float64
	FreeDistanceKm  float64
	MinFee          float64
	MaxFee          float64
	SurgeMultiplier float64
	// SurgeWindows is a comma separated list of HH:MM-HH:MM ranges.
	SurgeWindows []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:          getEnv("APP_ENV", "development"),
		Port:         getEnv("PORT", "8082"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     getEnv("REDIS_URL", "localhost:6379"),
		KafkaBrokers: getEnv("KAFKA_BROKERS", "localhost:9092"),
		NatsURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		Gateway: GatewayConfig{
			Name:          getEnv("GATEWAY_NAME", "cardgate"),
			Version:       getEnv("GATEWAY_VERSION", "2.1.0"),
			MerchantCode:  os.Getenv("GATEWAY_MERCHANT_CODE"),
			Secret:        os.Getenv("GATEWAY_SECRET"),
			PayURL:        os.Getenv("GATEWAY_PAY_URL"),
			QueryURL:      os.Getenv("GATEWAY_QUERY_URL"),
			ReturnURL:     os.Getenv("GATEWAY_RETURN_URL"),
			Locale:        getEnv("GATEWAY_LOCALE", "vn"),
			AmountScale:   getEnvInt64("GATEWAY_AMOUNT_SCALE", 100),
			AllowUnsigned: getEnvBool("GATEWAY_ALLOW_UNSIGNED", false),
			QueryTimeout:  int(getEnvInt64("GATEWAY_QUERY_TIMEOUT", 10)),
		},
		Fee: FeeConfig{
			RoutingURL:      os.Getenv("ROUTING_SERVICE_URL"),
			RoutingTimeout:  int(getEnvInt64("ROUTING_TIMEOUT", 3)),
			BaseFee:         getEnvFloat("FEE_BASE", 15000),
			PerKmFee:        getEnvFloat("FEE_PER_KM", 5000),
			FreeDistanceKm:  getEnvFloat("FEE_FREE_DISTANCE_KM", 2),
			MinFee:          getEnvFloat("FEE_MIN", 10000),
			MaxFee:          getEnvFloat("FEE_MAX", 100000),
			SurgeMultiplier: getEnvFloat("FEE_SURGE_MULTIPLIER", 1.5),
			SurgeWindows:    splitList(getEnv("FEE_SURGE_WINDOWS", "11:00-13:00,18:00-20:00")),
		},
	}

	if cfg.Env == "production" && cfg.Gateway.AllowUnsigned {
		return nil, fmt.Errorf("GATEWAY_ALLOW_UNSIGNED must not be set in production")
	}
	if cfg.Gateway.AmountScale <= 0 {
		return nil, fmt.Errorf("GATEWAY_AMOUNT_SCALE must be positive, got %d", cfg.Gateway.AmountScale)
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
