package configs

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"kvtogether_backend/internals/logging"
)

const ConfigPathEnvVar = "CONFIG_PATH"

// Expiry policies for active campaigns whose end_date passed with target unmet.
const (
	ExpiryPolicyEndedPartial = "ended_partial"
	ExpiryPolicyCancelled    = "cancelled"
)

type Config struct {
	App      AppConfig      `koanf:"app"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Midtrans MidtransConfig `koanf:"midtrans"`
	Funding  FundingConfig  `koanf:"funding"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type AppConfig struct {
	Port           string        `koanf:"port"`
	Environment    string        `koanf:"environment"`
	CORSOrigins    string        `koanf:"cors_origins"`
	RateLimitMax   int           `koanf:"rate_limit_max"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type DatabaseConfig struct {
	Host        string `koanf:"host"`
	Port        string `koanf:"port"`
	User        string `koanf:"user"`
	Password    string `koanf:"password"`
	Name        string `koanf:"name"`
	SSLMode     string `koanf:"sslmode"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

type AuthConfig struct {
	JWTSecret string `koanf:"jwt_secret"`
}

type MidtransConfig struct {
	ServerKey     string `koanf:"server_key"`
	UseProduction bool   `koanf:"use_production"`
	// VerifyStatus re-checks every webhook against the Core API before trusting it.
	VerifyStatus bool `koanf:"verify_status"`
}

type FundingConfig struct {
	MinDonation        int64         `koanf:"min_donation"`
	MaxRetries         int           `koanf:"max_retries"`
	ExpiryPolicy       string        `koanf:"expiry_policy"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	PlatformFeePercent string        `koanf:"platform_fee_percent"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{
			Port:           "3000",
			CORSOrigins:    "http://localhost:3000,http://localhost:5173",
			RateLimitMax:   100,
			RequestTimeout: 5 * time.Second,
		},
		Database: DatabaseConfig{
			Port:    "5432",
			SSLMode: "require",
		},
		Funding: FundingConfig{
			MinDonation:        20000,
			MaxRetries:         5,
			ExpiryPolicy:       ExpiryPolicyEndedPartial,
			SweepInterval:      time.Minute,
			PlatformFeePercent: "3",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// =======================
// ENV LOADER
// =======================

// LoadEnv pulls a local .env into the process environment. Deployments on
// Railway already get their variables injected.
func LoadEnv() {
	if os.Getenv("RAILWAY_ENVIRONMENT") != "" {
		logging.Info().Msg("🚀 running on Railway, using system environment")
		return
	}
	if err := godotenv.Load(); err != nil {
		logging.Warn().Msg("⚠️ no .env file found, using system environment")
		return
	}
	logging.Info().Msg("✅ .env loaded")
}

func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// Load layers defaults, an optional YAML file and the environment (highest
// priority) into a validated Config.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{os.Getenv(ConfigPathEnvVar), "config.yaml", "config.yml"}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

var envMappings = map[string]string{
	"port":                   "app.port",
	"railway_environment":    "app.environment",
	"cors_origins":           "app.cors_origins",
	"rate_limit_max":         "app.rate_limit_max",
	"request_timeout":        "app.request_timeout",
	"db_host":                "database.host",
	"db_port":                "database.port",
	"db_user":                "database.user",
	"db_password":            "database.password",
	"db_name":                "database.name",
	"db_sslmode":             "database.sslmode",
	"db_auto_migrate":        "database.auto_migrate",
	"jwt_secret":             "auth.jwt_secret",
	"midtrans_server_key":    "midtrans.server_key",
	"midtrans_use_prod":      "midtrans.use_production",
	"midtrans_verify_status": "midtrans.verify_status",
	"min_donation_amount":    "funding.min_donation",
	"reconcile_max_retries":  "funding.max_retries",
	"campaign_expiry_policy": "funding.expiry_policy",
	"expiry_sweep_interval":  "funding.sweep_interval",
	"platform_fee_percent":   "funding.platform_fee_percent",
	"log_level":              "logging.level",
	"log_format":             "logging.format",
}

// envTransformFunc maps known variables onto config paths; anything else is skipped.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Funding.ExpiryPolicy {
	case ExpiryPolicyEndedPartial, ExpiryPolicyCancelled:
	default:
		errs = append(errs, fmt.Errorf("funding.expiry_policy must be %q or %q, got %q",
			ExpiryPolicyEndedPartial, ExpiryPolicyCancelled, c.Funding.ExpiryPolicy))
	}
	if c.Funding.MinDonation <= 0 {
		errs = append(errs, errors.New("funding.min_donation must be positive"))
	}
	if c.Funding.MaxRetries < 1 {
		errs = append(errs, errors.New("funding.max_retries must be at least 1"))
	}
	if c.Funding.SweepInterval <= 0 {
		errs = append(errs, errors.New("funding.sweep_interval must be positive"))
	}
	if _, err := c.PlatformFeePercent(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PlatformFeePercent parses the configured fee as a decimal in [0, 100].
func (c *Config) PlatformFeePercent() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(c.Funding.PlatformFeePercent))
	if err != nil {
		return decimal.Zero, fmt.Errorf("funding.platform_fee_percent: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("funding.platform_fee_percent out of range: %s", fee)
	}
	return fee, nil
}

// DSN builds the Postgres connection string with a server-side statement timeout.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s&application_name=kvtogether&options=-c statement_timeout=3000",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}
