package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	JWTAccessSecret []byte
	AuthHTTPURL     string

	KafkaBrokers []string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ESURL      string
	ESUser     string
	ESPassword string
	ESIndex    string

	OTLPEndpoint string

	PublicURL   string
	FrontendURL string
	CSRFEnabled bool

	ReservationTTL  time.Duration
	IdempotencyTTL  time.Duration
	SweepInterval   time.Duration
	SweepEnabled    bool
	CheckoutTimeout time.Duration

	Payment PaymentConfig
}

type PaymentConfig struct {
	HTTPTimeout   time.Duration
	RatePerSecond int

	NPRPerUSD float64
	FXRateURL string
	FXRateTTL time.Duration

	PayPalBaseURL  string
	PayPalClientID string
	PayPalSecret   string

	KhaltiBaseURL   string
	KhaltiSecretKey string

	StripeBaseURL   string
	StripeSecretKey string
	StripeCurrency  string
}

// Load reads .env (if present) and the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "storefront"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTAccessSecret: []byte(os.Getenv("JWT_SECRET")),
		AuthHTTPURL:     os.Getenv("AUTH_URL"),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       EnvIntDefault("REDIS_DB", 0),

		ESURL:      os.Getenv("ES_URL"),
		ESUser:     os.Getenv("ES_USER"),
		ESPassword: os.Getenv("ES_PASSWORD"),
		ESIndex:    EnvDefault("ES_ORDER_INDEX", "orders"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		PublicURL:   EnvDefault("PUBLIC_URL", "http://localhost:8080"),
		FrontendURL: EnvDefault("FRONTEND_URL", "http://localhost:5173"),
		CSRFEnabled: EnvBoolDefault("CSRF_ENABLED", false),

		ReservationTTL:  EnvDurationDefault("RESERVATION_TTL", 30*time.Minute),
		IdempotencyTTL:  EnvDurationDefault("IDEMPOTENCY_TTL", 24*time.Hour),
		SweepInterval:   EnvDurationDefault("SWEEP_INTERVAL", time.Minute),
		SweepEnabled:    EnvBoolDefault("SWEEP_ENABLED", true),
		CheckoutTimeout: EnvDurationDefault("CHECKOUT_TIMEOUT", 30*time.Second),

		Payment: PaymentConfig{
			HTTPTimeout:   EnvDurationDefault("PAYMENT_HTTP_TIMEOUT", 10*time.Second),
			RatePerSecond: EnvIntDefault("PAYMENT_RATE_PER_SECOND", 20),

			NPRPerUSD: EnvFloatDefault("NPR_PER_USD", 135),
			FXRateURL: os.Getenv("FX_RATE_URL"),
			FXRateTTL: EnvDurationDefault("FX_RATE_TTL", time.Hour),

			PayPalBaseURL:  EnvDefault("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com"),
			PayPalClientID: os.Getenv("PAYPAL_CLIENT_ID"),
			PayPalSecret:   os.Getenv("PAYPAL_SECRET"),

			KhaltiBaseURL:   EnvDefault("KHALTI_BASE_URL", "https://a.khalti.com/api/v2"),
			KhaltiSecretKey: os.Getenv("KHALTI_SECRET_KEY"),

			StripeBaseURL:   EnvDefault("STRIPE_BASE_URL", "https://api.stripe.com"),
			StripeSecretKey: os.Getenv("STRIPE_SECRET_KEY"),
			StripeCurrency:  EnvDefault("STRIPE_CURRENCY", "npr"),
		},
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
