package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the API process.
type Config struct {
	Env  string
	Port string

	MongoURI      string
	MongoDatabase string
	RedisURL      string
	ModelCacheTTL time.Duration

	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	ClerkJWTKey  string
	ClerkIssuer  string
	JWTSecret    string
	AdminUserIDs []string

	AllowedOrigins []string
	TrackRateLimit int

	// Pricing and payment rules
	DepositPercent   int64
	TaxRateBps       int64
	DeliveryFeeCents int64
	ContractVersion  string
	Bank             BankInstructions

	// Analytics
	AnalyticsTimezone string
	CLVLifespanYears  float64

	// AWS
	AWSRegion          string
	AWSEndpoint        string
	AWSUseSecrets      bool
	SecretName         string
	S3Bucket           string
	S3Prefix           string
	AssetBaseURL       string
	EventsSNSTopicARN  string
	AnalyticsQueueURL  string
	CloudWatchEnabled  bool
	CloudWatchLogGroup string
	MetricsNamespace   string
}

// BankInstructions are shown to buyers who pay a milestone by wire.
type BankInstructions struct {
	BankName      string `json:"bank_name"`
	AccountName   string `json:"account_name"`
	RoutingNumber string `json:"routing_number"`
	AccountNumber string `json:"account_number"`
}

// SecretSource returns a flat key/value secret. Implemented by
// aws.SecretsClient.
type SecretSource interface {
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

// Load reads configuration from the environment, after loading a .env file
// if one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:           getEnv("ENV", "development"),
		Port:          getEnv("PORT", "8080"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "firefly"),
		RedisURL:      os.Getenv("REDIS_URL"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		Currency:            strings.ToLower(getEnv("CURRENCY", "usd")),

		ClerkJWTKey:  os.Getenv("CLERK_JWT_KEY"),
		ClerkIssuer:  os.Getenv("CLERK_ISSUER"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		AdminUserIDs: splitList(os.Getenv("ADMIN_USER_IDS")),

		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),

		ContractVersion: getEnv("CONTRACT_VERSION", "2025-01"),
		Bank: BankInstructions{
			BankName:      os.Getenv("BANK_NAME"),
			AccountName:   getEnv("BANK_ACCOUNT_NAME", "Firefly Tiny Homes LLC"),
			RoutingNumber: os.Getenv("BANK_ROUTING_NUMBER"),
			AccountNumber: os.Getenv("BANK_ACCOUNT_NUMBER"),
		},

		AnalyticsTimezone: getEnv("ANALYTICS_TIMEZONE", "America/Chicago"),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSEndpoint:        os.Getenv("AWS_ENDPOINT"),
		AWSUseSecrets:      os.Getenv("AWS_USE_SECRETS") == "true",
		SecretName:         getEnv("AWS_SECRET_NAME", "firefly/STRIPE"),
		S3Bucket:           os.Getenv("S3_BUCKET"),
		S3Prefix:           getEnv("S3_PREFIX", "models"),
		AssetBaseURL:       strings.TrimSuffix(os.Getenv("ASSET_BASE_URL"), "/"),
		EventsSNSTopicARN:  os.Getenv("EVENTS_SNS_TOPIC_ARN"),
		AnalyticsQueueURL:  os.Getenv("ANALYTICS_QUEUE_URL"),
		CloudWatchEnabled:  os.Getenv("CLOUDWATCH_ENABLED") == "true",
		CloudWatchLogGroup: getEnv("CLOUDWATCH_LOG_GROUP", "/firefly/api"),
		MetricsNamespace:   getEnv("CLOUDWATCH_NAMESPACE", "Firefly"),
	}

	var err error
	if cfg.ModelCacheTTL, err = getDuration("MODEL_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.DepositPercent, err = getInt("DEPOSIT_PERCENT", 25); err != nil {
		return nil, err
	}
	if cfg.TaxRateBps, err = getInt("TAX_RATE_BPS", 0); err != nil {
		return nil, err
	}
	if cfg.DeliveryFeeCents, err = getInt("DELIVERY_FEE_CENTS", 0); err != nil {
		return nil, err
	}
	trackLimit, err := getInt("TRACK_RATE_LIMIT", 120)
	if err != nil {
		return nil, err
	}
	cfg.TrackRateLimit = int(trackLimit)
	if cfg.CLVLifespanYears, err = getFloat("CLV_LIFESPAN_YEARS", 3); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplySecrets overrides Stripe and Clerk credentials with the values held
// in the named secret. Missing keys leave the environment value in place.
func (c *Config) ApplySecrets(ctx context.Context, src SecretSource) error {
	m, err := src.GetSecretMap(ctx, c.SecretName)
	if err != nil {
		return err
	}
	override := func(dst *string, key string) {
		if v, ok := m[key]; ok && v != "" {
			*dst = v
		}
	}
	override(&c.StripeSecretKey, "STRIPE_SECRET_KEY")
	override(&c.StripeWebhookSecret, "STRIPE_WEBHOOK_SECRET")
	override(&c.ClerkJWTKey, "CLERK_JWT_KEY")
	override(&c.JWTSecret, "JWT_SECRET")
	override(&c.MongoURI, "MONGO_URI")
	return nil
}

// Validate checks required settings and ranges.
func (c *Config) Validate() error {
	var missing []string
	if c.MongoURI == "" {
		missing = append(missing, "MONGO_URI")
	}
	if c.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.ClerkJWTKey == "" && c.JWTSecret == "" {
		missing = append(missing, "CLERK_JWT_KEY or JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	if c.DepositPercent < 1 || c.DepositPercent > 100 {
		return fmt.Errorf("DEPOSIT_PERCENT must be between 1 and 100, got %d", c.DepositPercent)
	}
	if c.TaxRateBps < 0 {
		return fmt.Errorf("TAX_RATE_BPS must not be negative")
	}
	if c.DeliveryFeeCents < 0 {
		return fmt.Errorf("DELIVERY_FEE_CENTS must not be negative")
	}
	if c.CLVLifespanYears <= 0 {
		return fmt.Errorf("CLV_LIFESPAN_YEARS must be positive")
	}
	if c.TrackRateLimit <= 0 {
		return fmt.Errorf("TRACK_RATE_LIMIT must be positive")
	}
	if _, err := time.LoadLocation(c.AnalyticsTimezone); err != nil {
		return fmt.Errorf("invalid ANALYTICS_TIMEZONE %q: %w", c.AnalyticsTimezone, err)
	}
	return nil
}

// Location returns the analytics time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AnalyticsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
