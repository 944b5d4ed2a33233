package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/segyhp/loan-aggregator/internal/domain"
	"github.com/segyhp/loan-aggregator/internal/pdn"
	"github.com/segyhp/loan-aggregator/internal/referral"
	"github.com/segyhp/loan-aggregator/internal/scoring"
	"github.com/segyhp/loan-aggregator/internal/tracing"
	"github.com/segyhp/loan-aggregator/pkg/utils"
)

const (
	PartnerSourceFile     = "file"
	PartnerSourceDatabase = "database"
)

// Config holds all configuration for our application
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	Health     HealthConfig     `mapstructure:"health"`
	Partners   PartnersConfig   `mapstructure:"partners"`
	DebtBurden DebtBurdenConfig `mapstructure:"debt_burden"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Referral   ReferralConfig   `mapstructure:"referral"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	Env          string        `mapstructure:"env"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig is optional; without a URL the referral ledger runs in memory.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type HealthConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type PartnersConfig struct {
	Source            string        `mapstructure:"source"`
	File              string        `mapstructure:"file"`
	ReloadSchedule    string        `mapstructure:"reload_schedule"`
	EvaluationTimeout time.Duration `mapstructure:"evaluation_timeout"`
	MaxParallel       int           `mapstructure:"max_parallel"`
}

type DebtBurdenConfig struct {
	LowBelow           string            `mapstructure:"low_below"`
	MediumBelow        string            `mapstructure:"medium_below"`
	ImplausibleCeiling string            `mapstructure:"implausible_ceiling"`
	TargetRatio        string            `mapstructure:"target_ratio"`
	MaxTermMonths      int               `mapstructure:"max_term_months"`
	ReferenceRate      string            `mapstructure:"reference_rate"`
	Medians            map[string]string `mapstructure:"medians"`
}

type ScoringConfig struct {
	BaseScore               int            `mapstructure:"base_score"`
	MinScore                int            `mapstructure:"min_score"`
	MaxScore                int            `mapstructure:"max_score"`
	WeightLow               int            `mapstructure:"weight_low"`
	WeightMedium            int            `mapstructure:"weight_medium"`
	WeightHigh              int            `mapstructure:"weight_high"`
	EmploymentWeights       map[string]int `mapstructure:"employment_weights"`
	DefaultEmploymentWeight int            `mapstructure:"default_employment_weight"`
	DefaultPenalty          int            `mapstructure:"default_penalty"`
	DefaultHalfLifeMonths   int            `mapstructure:"default_half_life_months"`
	OnTimeRepaymentBonus    int            `mapstructure:"on_time_repayment_bonus"`
	MaxRepaymentBonus       int            `mapstructure:"max_repayment_bonus"`
	LowRiskMin              int            `mapstructure:"low_risk_min"`
	MediumRiskMin           int            `mapstructure:"medium_risk_min"`
	HighRiskMin             int            `mapstructure:"high_risk_min"`
}

type ReferralConfig struct {
	RewardRate   string `mapstructure:"reward_rate"`
	RewardCap    string `mapstructure:"reward_cap"` // empty means uncapped
	RefereeBonus string `mapstructure:"referee_bonus"`
	DailyLimit   int    `mapstructure:"daily_limit"`
	TotalLimit   int    `mapstructure:"total_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "referral-rewards")
	v.SetDefault("redis.max_len", 100000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")
	v.SetDefault("tracing.service_name", "loan-aggregator")

	v.SetDefault("health.timeout", "5s")

	v.SetDefault("partners.source", PartnerSourceFile)
	v.SetDefault("partners.file", "./deployments/partners.yaml")
	v.SetDefault("partners.reload_schedule", "@every 5m")
	v.SetDefault("partners.evaluation_timeout", "2s")
	v.SetDefault("partners.max_parallel", 8)

	pdnDefaults := pdn.DefaultPolicy()
	v.SetDefault("debt_burden.low_below", pdnDefaults.Thresholds[0].Below.String())
	v.SetDefault("debt_burden.medium_below", pdnDefaults.Thresholds[1].Below.String())
	v.SetDefault("debt_burden.implausible_ceiling", pdnDefaults.ImplausibleCeiling.String())
	v.SetDefault("debt_burden.target_ratio", pdnDefaults.TargetRatio.String())
	v.SetDefault("debt_burden.max_term_months", pdnDefaults.MaxTermMonths)
	v.SetDefault("debt_burden.reference_rate", "0.24")
	medians := make(map[string]string, len(pdnDefaults.ObligationMedians))
	for obligationType, median := range pdnDefaults.ObligationMedians {
		medians[string(obligationType)] = median.String()
	}
	v.SetDefault("debt_burden.medians", medians)

	sc := scoring.DefaultPolicy()
	v.SetDefault("scoring.base_score", sc.BaseScore)
	v.SetDefault("scoring.min_score", sc.MinScore)
	v.SetDefault("scoring.max_score", sc.MaxScore)
	v.SetDefault("scoring.weight_low", sc.BucketWeights[domain.RiskBucketLow])
	v.SetDefault("scoring.weight_medium", sc.BucketWeights[domain.RiskBucketMedium])
	v.SetDefault("scoring.weight_high", sc.BucketWeights[domain.RiskBucketHigh])
	employment := make(map[string]int, len(sc.EmploymentWeights))
	for category, weight := range sc.EmploymentWeights {
		employment[string(category)] = weight
	}
	v.SetDefault("scoring.employment_weights", employment)
	v.SetDefault("scoring.default_employment_weight", sc.DefaultEmploymentWeight)
	v.SetDefault("scoring.default_penalty", sc.DefaultPenalty)
	v.SetDefault("scoring.default_half_life_months", sc.DefaultHalfLifeMonths)
	v.SetDefault("scoring.on_time_repayment_bonus", sc.OnTimeRepaymentBonus)
	v.SetDefault("scoring.max_repayment_bonus", sc.MaxRepaymentBonus)
	v.SetDefault("scoring.low_risk_min", sc.LowRiskMin)
	v.SetDefault("scoring.medium_risk_min", sc.MediumRiskMin)
	v.SetDefault("scoring.high_risk_min", sc.HighRiskMin)

	ref := referral.DefaultPolicy()
	v.SetDefault("referral.reward_rate", ref.RewardRate.String())
	v.SetDefault("referral.reward_cap", ref.RewardCap.Decimal.String())
	v.SetDefault("referral.referee_bonus", ref.RefereeBonus.String())
	v.SetDefault("referral.daily_limit", ref.DailyLimit)
	v.SetDefault("referral.total_limit", ref.TotalLimit)
}

// Load reads configuration from an optional .env file, an optional
// config.yaml and the environment. SERVER_PORT overrides server.port.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./deployments")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("unable to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("SERVER_PORT is required")
	}

	switch c.Partners.Source {
	case PartnerSourceFile:
		if c.Partners.File == "" {
			return fmt.Errorf("PARTNERS_FILE is required for the file partner source")
		}
	case PartnerSourceDatabase:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for the database partner source")
		}
	default:
		return fmt.Errorf("PARTNERS_SOURCE must be %q or %q", PartnerSourceFile, PartnerSourceDatabase)
	}

	if c.Partners.EvaluationTimeout <= 0 {
		return fmt.Errorf("PARTNERS_EVALUATION_TIMEOUT must be positive")
	}

	if c.Partners.MaxParallel <= 0 {
		return fmt.Errorf("PARTNERS_MAX_PARALLEL must be greater than 0")
	}

	if c.Health.Timeout <= 0 {
		return fmt.Errorf("HEALTH_TIMEOUT must be positive")
	}

	if _, err := c.DebtBurdenPolicy(); err != nil {
		return err
	}
	if _, err := c.ReferenceRate(); err != nil {
		return err
	}
	if _, err := c.ScoringPolicy(); err != nil {
		return err
	}
	if _, err := c.ReferralPolicy(); err != nil {
		return err
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development" || c.Server.Env == "dev"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// RedisEnabled reports whether a Redis endpoint is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.URL != "" || c.Redis.Host != ""
}

// RedisOptions builds client options from REDIS_URL, or host and port.
func (c *Config) RedisOptions() (*redis.Options, error) {
	if c.Redis.URL != "" {
		opts, err := redis.ParseURL(c.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("REDIS_URL is invalid: %w", err)
		}
		return opts, nil
	}
	return &redis.Options{
		Addr:     c.Redis.Host + ":" + c.Redis.Port,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}, nil
}

func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		ServiceName: c.Tracing.ServiceName,
		Environment: c.Server.Env,
	}
}

// DebtBurdenPolicy builds the PDN policy. Thresholds are LOW below
// low_below, MEDIUM below medium_below, HIGH otherwise.
func (c *Config) DebtBurdenPolicy() (pdn.Policy, error) {
	lowBelow, err := parseDecimal("DEBT_BURDEN_LOW_BELOW", c.DebtBurden.LowBelow)
	if err != nil {
		return pdn.Policy{}, err
	}
	mediumBelow, err := parseDecimal("DEBT_BURDEN_MEDIUM_BELOW", c.DebtBurden.MediumBelow)
	if err != nil {
		return pdn.Policy{}, err
	}
	ceiling, err := parseDecimal("DEBT_BURDEN_IMPLAUSIBLE_CEILING", c.DebtBurden.ImplausibleCeiling)
	if err != nil {
		return pdn.Policy{}, err
	}
	target, err := parseDecimal("DEBT_BURDEN_TARGET_RATIO", c.DebtBurden.TargetRatio)
	if err != nil {
		return pdn.Policy{}, err
	}

	medians := make(map[domain.ObligationType]decimal.Decimal, len(c.DebtBurden.Medians))
	for obligationType, raw := range c.DebtBurden.Medians {
		median, err := parseDecimal("debt_burden.medians."+obligationType, raw)
		if err != nil {
			return pdn.Policy{}, err
		}
		medians[domain.ObligationType(obligationType)] = median
	}

	policy := pdn.Policy{
		Thresholds: []pdn.Threshold{
			{Below: lowBelow, Bucket: domain.RiskBucketLow},
			{Below: mediumBelow, Bucket: domain.RiskBucketMedium},
		},
		Fallback:           domain.RiskBucketHigh,
		ImplausibleCeiling: ceiling,
		ObligationMedians:  medians,
		TargetRatio:        target,
		MaxTermMonths:      c.DebtBurden.MaxTermMonths,
		RatioPlaces:        utils.RatioPlaces,
	}
	if err := policy.Validate(); err != nil {
		return pdn.Policy{}, err
	}
	return policy, nil
}

// ReferenceRate is the annual rate used for affordability when no partner
// made an offer.
func (c *Config) ReferenceRate() (decimal.Decimal, error) {
	rate, err := parseDecimal("DEBT_BURDEN_REFERENCE_RATE", c.DebtBurden.ReferenceRate)
	if err != nil {
		return decimal.Zero, err
	}
	if rate.IsNegative() {
		return decimal.Zero, fmt.Errorf("DEBT_BURDEN_REFERENCE_RATE must not be negative")
	}
	return rate, nil
}

func (c *Config) ScoringPolicy() (scoring.Policy, error) {
	s := c.Scoring
	weights := make(map[domain.EmploymentCategory]int, len(s.EmploymentWeights))
	for category, weight := range s.EmploymentWeights {
		weights[domain.EmploymentCategory(category)] = weight
	}

	policy := scoring.Policy{
		BaseScore: s.BaseScore,
		MinScore:  s.MinScore,
		MaxScore:  s.MaxScore,
		BucketWeights: map[domain.RiskBucket]int{
			domain.RiskBucketLow:    s.WeightLow,
			domain.RiskBucketMedium: s.WeightMedium,
			domain.RiskBucketHigh:   s.WeightHigh,
		},
		EmploymentWeights:       weights,
		DefaultEmploymentWeight: s.DefaultEmploymentWeight,
		DefaultPenalty:          s.DefaultPenalty,
		DefaultHalfLifeMonths:   s.DefaultHalfLifeMonths,
		OnTimeRepaymentBonus:    s.OnTimeRepaymentBonus,
		MaxRepaymentBonus:       s.MaxRepaymentBonus,
		LowRiskMin:              s.LowRiskMin,
		MediumRiskMin:           s.MediumRiskMin,
		HighRiskMin:             s.HighRiskMin,
	}
	if err := policy.Validate(); err != nil {
		return scoring.Policy{}, err
	}
	return policy, nil
}

func (c *Config) ReferralPolicy() (referral.Policy, error) {
	rate, err := parseDecimal("REFERRAL_REWARD_RATE", c.Referral.RewardRate)
	if err != nil {
		return referral.Policy{}, err
	}
	bonus, err := parseDecimal("REFERRAL_REFEREE_BONUS", c.Referral.RefereeBonus)
	if err != nil {
		return referral.Policy{}, err
	}

	var rewardCap decimal.NullDecimal
	if strings.TrimSpace(c.Referral.RewardCap) != "" {
		capValue, err := parseDecimal("REFERRAL_REWARD_CAP", c.Referral.RewardCap)
		if err != nil {
			return referral.Policy{}, err
		}
		rewardCap = decimal.NewNullDecimal(capValue)
	}

	policy := referral.Policy{
		RewardRate:   rate,
		RewardCap:    rewardCap,
		RefereeBonus: bonus,
		DailyLimit:   c.Referral.DailyLimit,
		TotalLimit:   c.Referral.TotalLimit,
	}
	if err := policy.Validate(); err != nil {
		return referral.Policy{}, err
	}
	return policy, nil
}

func parseDecimal(key, raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a valid decimal: %w", key, err)
	}
	return value, nil
}
