package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Pipeline policy. These used to live as literals inside individual
	// correction handlers; they are configuration now so every invocation
	// sees the same values and operators can change them without a deploy.
	DefaultReferencePeriod string   `mapstructure:"DEFAULT_REFERENCE_PERIOD"`
	HardExcludedCompanies  []string `mapstructure:"HARD_EXCLUDED_COMPANIES"`
	NeuroPhysicians        []string `mapstructure:"NEURO_PHYSICIANS"`
	RuleTimeoutSeconds     int      `mapstructure:"RULE_TIMEOUT_SECONDS"`
	SuccessThresholdPct    int      `mapstructure:"SUCCESS_THRESHOLD_PCT"`
	ChunkSize              int      `mapstructure:"CHUNK_SIZE"`

	// Upload sweep.
	StuckUploadTimeoutMinutes int `mapstructure:"STUCK_UPLOAD_TIMEOUT_MINUTES"`
	SweepIntervalMinutes      int `mapstructure:"SWEEP_INTERVAL_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RULE_TIMEOUT_SECONDS", 30)
	v.SetDefault("SUCCESS_THRESHOLD_PCT", 80)
	v.SetDefault("CHUNK_SIZE", 500)
	v.SetDefault("STUCK_UPLOAD_TIMEOUT_MINUTES", 30)
	v.SetDefault("SWEEP_INTERVAL_MINUTES", 5)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("DEFAULT_REFERENCE_PERIOD")
	v.BindEnv("HARD_EXCLUDED_COMPANIES")
	v.BindEnv("NEURO_PHYSICIANS")
	v.BindEnv("RULE_TIMEOUT_SECONDS")
	v.BindEnv("SUCCESS_THRESHOLD_PCT")
	v.BindEnv("CHUNK_SIZE")
	v.BindEnv("STUCK_UPLOAD_TIMEOUT_MINUTES")
	v.BindEnv("SWEEP_INTERVAL_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma-separated lists arrive as a single string when set via env.
	if cfg.CORSOrigins == nil {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}
	if cfg.HardExcludedCompanies == nil {
		cfg.HardExcludedCompanies = splitList(v.GetString("HARD_EXCLUDED_COMPANIES"))
	}
	if cfg.NeuroPhysicians == nil {
		cfg.NeuroPhysicians = splitList(v.GetString("NEURO_PHYSICIANS"))
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run with.
func (c *Config) Validate() error {
	if c.RuleTimeoutSeconds <= 0 {
		return fmt.Errorf("RULE_TIMEOUT_SECONDS must be positive, got %d", c.RuleTimeoutSeconds)
	}
	if c.SuccessThresholdPct < 0 || c.SuccessThresholdPct > 100 {
		return fmt.Errorf("SUCCESS_THRESHOLD_PCT must be in [0,100], got %d", c.SuccessThresholdPct)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.DefaultReferencePeriod != "" {
		if len(c.DefaultReferencePeriod) != 7 || c.DefaultReferencePeriod[4] != '-' {
			return fmt.Errorf("DEFAULT_REFERENCE_PERIOD must be YYYY-MM, got %q", c.DefaultReferencePeriod)
		}
	}
	return nil
}
