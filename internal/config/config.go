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

const (
	envDevelopment = "development"
	envTest        = "test"

	configFileEnvVar = "ECONOMY_CONFIG"
)

// Config captures application runtime configuration.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	DBMaxConns     int
	RedisPoolSize  int
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AdminToken      string

	CatalogPath string

	KafkaBrokers     []string
	SettlementTopic  string
	SettlementSecret string
	ElasticsearchURL string
	AuditIndex       string

	Outbox   OutboxConfig
	Schedule ScheduleConfig
	Economy  EconomyConfig
}

// OutboxConfig tunes post-commit delivery.
type OutboxConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
}

// ScheduleConfig holds periodic task intervals. Zero disables a task.
type ScheduleConfig struct {
	TradeSweep       time.Duration
	AuctionSweep     time.Duration
	EnforcementSweep time.Duration
	Emissions        time.Duration
	OutboxDispatch   time.Duration
}

// EconomyConfig holds the tuning values the economy services run with.
type EconomyConfig struct {
	LoanMin       decimal.Decimal
	LoanMax       decimal.Decimal
	LoanDailyRate decimal.Decimal
	LoanTerm      time.Duration

	AuctionTaxRate     decimal.Decimal
	AuctionMinDuration time.Duration
	AuctionMaxDuration time.Duration

	TradeMaxTTL time.Duration

	EmissionAnnualRate decimal.Decimal
	EmissionReserve    decimal.Decimal
	PriceOracleRate    decimal.Decimal

	EnforcementCooldown  time.Duration
	EncounterTimeout     time.Duration
	EnforcementBaseUnits int
	EnforcementXP        int
	JailPerUnit          time.Duration
	JailMin              time.Duration
	JailMax              time.Duration
	ReleaseLocation      string
}

var defaults = map[string]any{
	"APP_NAME":          "DeepwaterEconomy",
	"APP_ENV":           envDevelopment,
	"PORT":              "8080",
	"DB_MAX_CONNS":      10,
	"REDIS_POOL_SIZE":   20,
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "json",
	"SHUTDOWN_TIMEOUT":  "10s",
	"IDEMPOTENCY_TTL":   "24h",
	"ACCESS_TOKEN_TTL":  "15m",
	"REFRESH_TOKEN_TTL": "720h",
	"SETTLEMENT_TOPIC":  "economy.settlement",
	"AUDIT_INDEX":       "economy-ledger",

	"OUTBOX_MAX_ATTEMPTS": 8,
	"OUTBOX_BASE_BACKOFF": "2s",

	"TRADE_SWEEP_INTERVAL":       "1m",
	"AUCTION_SWEEP_INTERVAL":     "1m",
	"ENFORCEMENT_SWEEP_INTERVAL": "10m",
	"EMISSIONS_INTERVAL":         "24h",
	"OUTBOX_INTERVAL":            "2s",

	"LOAN_MIN":        "0.01",
	"LOAN_MAX":        "5",
	"LOAN_DAILY_RATE": "0.05",
	"LOAN_TERM":       "168h",

	"AUCTION_TAX_RATE":     "0.05",
	"AUCTION_MIN_DURATION": "1h",
	"AUCTION_MAX_DURATION": "72h",

	"TRADE_MAX_TTL": "72h",

	"EMISSION_ANNUAL_RATE": "0.07",
	"EMISSION_RESERVE":     "100",
	"PRICE_ORACLE_RATE":    "1",

	"ENFORCEMENT_COOLDOWN":   "20h",
	"ENCOUNTER_TIMEOUT":      "30m",
	"ENFORCEMENT_BASE_UNITS": 1,
	"ENFORCEMENT_XP":         25,
	"JAIL_PER_UNIT":          "240h",
	"JAIL_MIN":               "1h",
	"JAIL_MAX":               "72h",
	"RELEASE_LOCATION":       "harbour_gate",
}

// Load reads .env when present, then the environment, then the optional YAML
// file named by ECONOMY_CONFIG. Environment variables win over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	if path := os.Getenv(configFileEnvVar); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	p := parser{v: v}
	cfg := Config{
		AppName:          v.GetString("APP_NAME"),
		AppEnv:           strings.ToLower(v.GetString("APP_ENV")),
		Port:             v.GetString("PORT"),
		LogLevel:         strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:        strings.ToLower(v.GetString("LOG_FORMAT")),
		DatabaseURL:      v.GetString("DATABASE_URL"),
		RedisURL:         v.GetString("REDIS_URL"),
		DBMaxConns:       v.GetInt("DB_MAX_CONNS"),
		RedisPoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		ShutdownPeriod:   p.seconds("SHUTDOWN_TIMEOUT"),
		IdempotencyTTL:   p.seconds("IDEMPOTENCY_TTL"),
		JWTSecret:        v.GetString("JWT_SECRET"),
		RefreshSecret:    v.GetString("REFRESH_SECRET"),
		AccessTokenTTL:   p.duration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL:  p.duration("REFRESH_TOKEN_TTL"),
		AdminToken:       v.GetString("ADMIN_TOKEN"),
		CatalogPath:      v.GetString("CATALOG_PATH"),
		KafkaBrokers:     splitList(v.GetString("KAFKA_BROKERS")),
		SettlementTopic:  v.GetString("SETTLEMENT_TOPIC"),
		SettlementSecret: v.GetString("SETTLEMENT_SECRET"),
		ElasticsearchURL: v.GetString("ELASTICSEARCH_URL"),
		AuditIndex:       v.GetString("AUDIT_INDEX"),
		Outbox: OutboxConfig{
			MaxAttempts: v.GetInt("OUTBOX_MAX_ATTEMPTS"),
			BaseBackoff: p.duration("OUTBOX_BASE_BACKOFF"),
		},
		Schedule: ScheduleConfig{
			TradeSweep:       p.duration("TRADE_SWEEP_INTERVAL"),
			AuctionSweep:     p.duration("AUCTION_SWEEP_INTERVAL"),
			EnforcementSweep: p.duration("ENFORCEMENT_SWEEP_INTERVAL"),
			Emissions:        p.duration("EMISSIONS_INTERVAL"),
			OutboxDispatch:   p.duration("OUTBOX_INTERVAL"),
		},
		Economy: EconomyConfig{
			LoanMin:              p.decimal("LOAN_MIN"),
			LoanMax:              p.decimal("LOAN_MAX"),
			LoanDailyRate:        p.decimal("LOAN_DAILY_RATE"),
			LoanTerm:             p.duration("LOAN_TERM"),
			AuctionTaxRate:       p.decimal("AUCTION_TAX_RATE"),
			AuctionMinDuration:   p.duration("AUCTION_MIN_DURATION"),
			AuctionMaxDuration:   p.duration("AUCTION_MAX_DURATION"),
			TradeMaxTTL:          p.duration("TRADE_MAX_TTL"),
			EmissionAnnualRate:   p.decimal("EMISSION_ANNUAL_RATE"),
			EmissionReserve:      p.decimal("EMISSION_RESERVE"),
			PriceOracleRate:      p.decimal("PRICE_ORACLE_RATE"),
			EnforcementCooldown:  p.duration("ENFORCEMENT_COOLDOWN"),
			EncounterTimeout:     p.duration("ENCOUNTER_TIMEOUT"),
			EnforcementBaseUnits: v.GetInt("ENFORCEMENT_BASE_UNITS"),
			EnforcementXP:        v.GetInt("ENFORCEMENT_XP"),
			JailPerUnit:          p.duration("JAIL_PER_UNIT"),
			JailMin:              p.duration("JAIL_MIN"),
			JailMax:              p.duration("JAIL_MAX"),
			ReleaseLocation:      v.GetString("RELEASE_LOCATION"),
		},
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IsDevelopment() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set")
		}
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set")
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Economy.LoanMin.GreaterThan(c.Economy.LoanMax) {
		return fmt.Errorf("LOAN_MIN exceeds LOAN_MAX")
	}
	return nil
}

// IsDevelopment reports whether the process may run on the in-memory store.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == envDevelopment || c.AppEnv == envTest
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// parser accumulates the first conversion error so Load reports it once.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (p *parser) duration(key string) time.Duration {
	raw := p.v.GetString(key)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
	}
	return d
}

// seconds honours KEY_SECONDS as an integer before KEY as a duration.
func (p *parser) seconds(key string) time.Duration {
	if raw := p.v.GetString(key + "_SECONDS"); raw != "" {
		n := p.v.GetInt(key + "_SECONDS")
		if n <= 0 {
			p.fail(key+"_SECONDS", fmt.Errorf("%q is not a positive integer", raw))
		}
		return time.Duration(n) * time.Second
	}
	return p.duration(key)
}

func (p *parser) decimal(key string) decimal.Decimal {
	d, err := decimal.NewFromString(p.v.GetString(key))
	if err != nil {
		p.fail(key, err)
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
