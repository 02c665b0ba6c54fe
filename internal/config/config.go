// Package config loads the application configuration from a YAML file
// with environment-variable overrides and defaults applied on load.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete application configuration.
type Config struct {
	App      AppConfig      `yaml:"app"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	LLM      LLMConfig      `yaml:"llm"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// AppConfig carries environment-level settings.
type AppConfig struct {
	Env string `yaml:"env"` // development enables stack traces in responses
	URL string `yaml:"url"`
}

// IsDevelopment reports whether dev-only behavior is enabled.
func (a AppConfig) IsDevelopment() bool { return a.Env == "development" }

// DatabaseConfig configures the Postgres pool.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeSecs int    `yaml:"conn_max_life_secs"`
}

// ConnMaxLifetime returns the connection lifetime as a duration.
func (d DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(d.ConnMaxLifeSecs) * time.Second
}

// RedisConfig configures the optional Redis connection. An empty URL
// disables Redis-backed features (daily counters, per-user limits).
type RedisConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
	RequestTimeSecs  int    `yaml:"request_timeout_secs"`
	ShutdownSecs     int    `yaml:"shutdown_secs"`
}

func (h HTTPConfig) Addr() string { return fmt.Sprintf("%s:%d", h.Host, h.Port) }

func (h HTTPConfig) ReadTimeout() time.Duration  { return time.Duration(h.ReadTimeoutSecs) * time.Second }
func (h HTTPConfig) WriteTimeout() time.Duration { return time.Duration(h.WriteTimeoutSecs) * time.Second }
func (h HTTPConfig) RequestTimeout() time.Duration {
	return time.Duration(h.RequestTimeSecs) * time.Second
}
func (h HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownSecs) * time.Second
}

// AuthConfig configures bearer-token authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LLMConfig configures the Gemini adapter.
type LLMConfig struct {
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries"`
}

func (l LLMConfig) Timeout() time.Duration { return time.Duration(l.TimeoutSecs) * time.Second }

// AnalysisConfig tunes the analysis engines.
type AnalysisConfig struct {
	WeekStart       string  `yaml:"week_start"` // monday or sunday
	RegularIncomeCV float64 `yaml:"regular_income_cv"`
}

// ScheduleConfig tunes the background scheduler.
type ScheduleConfig struct {
	WeeklyCron   string `yaml:"weekly_cron"`
	DailyCron    string `yaml:"daily_cron"`
	BatchSize    int    `yaml:"batch_size"`
	BatchDelayMS int    `yaml:"batch_delay_ms"`
}

func (s ScheduleConfig) BatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMS) * time.Millisecond
}

// Load reads the YAML file at path (skipped when empty or absent),
// applies environment overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.Database.URL, "DATABASE_URL")
	override(&c.Redis.URL, "REDIS_URL")
	override(&c.LLM.APIKey, "LLM_API_KEY")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.App.URL, "APP_URL")
	override(&c.App.Env, "APP_ENV")
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "production"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifeSecs == 0 {
		c.Database.ConnMaxLifeSecs = 300
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSecs == 0 {
		c.HTTP.ReadTimeoutSecs = 15
	}
	if c.HTTP.WriteTimeoutSecs == 0 {
		c.HTTP.WriteTimeoutSecs = 30
	}
	if c.HTTP.RequestTimeSecs == 0 {
		c.HTTP.RequestTimeSecs = 30
	}
	if c.HTTP.ShutdownSecs == 0 {
		c.HTTP.ShutdownSecs = 10
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gemini-1.5-flash"
	}
	if c.LLM.TimeoutSecs == 0 {
		c.LLM.TimeoutSecs = 30
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}
	if c.Analysis.WeekStart == "" {
		c.Analysis.WeekStart = "monday"
	}
	if c.Analysis.RegularIncomeCV == 0 {
		c.Analysis.RegularIncomeCV = 0.2
	}
	if c.Schedule.WeeklyCron == "" {
		c.Schedule.WeeklyCron = "0 2 * * 1"
	}
	if c.Schedule.DailyCron == "" {
		c.Schedule.DailyCron = "0 3 * * *"
	}
	if c.Schedule.BatchSize == 0 {
		c.Schedule.BatchSize = 10
	}
	if c.Schedule.BatchDelayMS == 0 {
		c.Schedule.BatchDelayMS = 1000
	}
}

// Validate ensures the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d is out of range", c.HTTP.Port)
	}
	switch c.Analysis.WeekStart {
	case "monday", "sunday":
	default:
		return fmt.Errorf("analysis week_start must be monday or sunday, got %q", c.Analysis.WeekStart)
	}
	if c.Analysis.RegularIncomeCV <= 0 || c.Analysis.RegularIncomeCV >= 1 {
		return fmt.Errorf("analysis regular_income_cv must be in (0, 1), got %f", c.Analysis.RegularIncomeCV)
	}
	if c.Schedule.BatchSize <= 0 {
		return fmt.Errorf("schedule batch_size must be positive, got %d", c.Schedule.BatchSize)
	}
	return nil
}
