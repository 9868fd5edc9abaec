// Package config loads service settings from the environment and the
// optional tuning tables file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"marketplace-service/internal/pricing"
	"marketplace-service/internal/urgency"
)

// Config holds everything the server needs at startup
type Config struct {
	Port       string
	PathPrefix string
	LogLevel   slog.Level

	StorageType      string
	AWSRegion        string
	DynamoDBEndpoint string
	DynamoDBTables   DynamoDBTables
	DatabaseURL      string
	KinesisStream    string

	MatchingStrategy string
	MatchRadiusKm    float64
	ServiceZones     []string
	TablesFile       string
	Timezone         string

	ProcessorInterval    time.Duration
	ProcessorConcurrency int
	IntakeRatePerSec     float64
	IntakeBurst          int
	TrustProxyHeaders    bool

	DemoMode     bool
	DemoInterval time.Duration

	MercadoPagoAccessToken string
	PaymentGatewayMock     bool
	PaymentCurrency        string
}

// DynamoDBTables names one table per entity
type DynamoDBTables struct {
	Jobs      string
	Customers string
	Plumbers  string
	Payments  string
}

// Load reads Config from environment variables
func Load() Config {
	return Config{
		Port:       getEnv("PORT", "8081"),
		PathPrefix: os.Getenv("PATH_PREFIX"),
		LogLevel:   getEnvLevel("LOG_LEVEL", slog.LevelInfo),

		StorageType:      strings.ToLower(getEnv("STORAGE_TYPE", "memory")),
		AWSRegion:        getEnv("AWS_REGION", "us-east-2"),
		DynamoDBEndpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		DynamoDBTables: DynamoDBTables{
			Jobs:      getEnv("DYNAMODB_JOBS_TABLE", "marketplace-jobs"),
			Customers: getEnv("DYNAMODB_CUSTOMERS_TABLE", "marketplace-customers"),
			Plumbers:  getEnv("DYNAMODB_PLUMBERS_TABLE", "marketplace-plumbers"),
			Payments:  getEnv("DYNAMODB_PAYMENTS_TABLE", "marketplace-payments"),
		},
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		KinesisStream: os.Getenv("KINESIS_JOB_EVENTS_STREAM"),

		MatchingStrategy: getEnv("MATCHING_STRATEGY", "nearest"),
		MatchRadiusKm:    getEnvFloat("MATCH_RADIUS_KM", 10),
		ServiceZones:     getEnvList("SERVICE_ZONES"),
		TablesFile:       os.Getenv("TABLES_FILE"),
		Timezone:         getEnv("TIMEZONE", "America/Chicago"),

		ProcessorInterval:    getEnvDuration("PROCESSOR_INTERVAL", "5s"),
		ProcessorConcurrency: getEnvInt("PROCESSOR_CONCURRENCY", 4),
		IntakeRatePerSec:     getEnvFloat("INTAKE_RATE_PER_SEC", 2),
		IntakeBurst:          getEnvInt("INTAKE_BURST", 5),
		TrustProxyHeaders:    getEnvBool("TRUST_PROXY_HEADERS", false),

		DemoMode:     getEnvBool("DEMO_MODE", false),
		DemoInterval: getEnvDuration("DEMO_INTERVAL", "15s"),

		MercadoPagoAccessToken: os.Getenv("MERCADOPAGO_ACCESS_TOKEN"),
		PaymentGatewayMock:     getEnvBool("PAYMENT_GATEWAY_MOCK", true),
		PaymentCurrency:        strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),
	}
}

// Location resolves Timezone, falling back to UTC when tzdata is missing
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("Unknown timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// Tables are the tuning tables for the classifier and the pricing engine
type Tables struct {
	Urgency urgency.Config `yaml:"urgency"`
	Pricing pricing.Config `yaml:"pricing"`
}

// DefaultTables returns the published tables
func DefaultTables() Tables {
	return Tables{
		Urgency: urgency.DefaultConfig(),
		Pricing: pricing.DefaultConfig(),
	}
}

// LoadTables reads path over the defaults. Keys missing from the file keep
// their default values; an empty path returns the defaults.
func LoadTables(path string) (Tables, error) {
	tables := DefaultTables()
	if path == "" {
		return tables, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return tables, fmt.Errorf("failed to read tables file: %w", err)
	}
	if err := yaml.Unmarshal(b, &tables); err != nil {
		return tables, fmt.Errorf("failed to parse tables file %s: %w", path, err)
	}
	if err := tables.validate(); err != nil {
		return tables, fmt.Errorf("invalid tables file %s: %w", path, err)
	}
	return tables, nil
}

func (t Tables) validate() error {
	if t.Pricing.MinPrice > t.Pricing.MaxPrice {
		return fmt.Errorf("pricing min_price %.2f is above max_price %.2f", t.Pricing.MinPrice, t.Pricing.MaxPrice)
	}
	for _, tier := range t.Urgency.Tiers {
		if !tier.Level.Valid() {
			return fmt.Errorf("unknown urgency level %q", tier.Level)
		}
	}
	for _, rule := range t.Urgency.KeywordRules {
		if !rule.Level.Valid() {
			return fmt.Errorf("unknown urgency level %q in keyword rules", rule.Level)
		}
	}
	for level := range t.Pricing.UrgencyMultipliers {
		if !level.Valid() {
			return fmt.Errorf("unknown urgency level %q in urgency multipliers", level)
		}
	}
	return nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration gets duration from environment variable
func getEnvDuration(key, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration, using default", "key", key, "provided", value, "default", defaultValue, "error", err)
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("Invalid bool, using default", "key", key, "provided", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("Invalid number, using default", "key", key, "provided", value, "default", defaultValue)
		return defaultValue
	}
	return f
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer, using default", "key", key, "provided", value, "default", defaultValue)
		return defaultValue
	}
	return i
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvLevel(key string, defaultValue slog.Level) slog.Level {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		slog.Warn("Invalid log level, using default", "key", key, "provided", value)
		return defaultValue
	}
	return level
}
