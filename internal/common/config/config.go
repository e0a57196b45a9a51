// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Integrations IntegrationConfig  `mapstructure:"integrations"`
	Classifier   ClassifierConfig   `mapstructure:"classifier"`
	Sources      []SourceConfig     `mapstructure:"sources"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Engine       EngineConfig       `mapstructure:"engine"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ServerConfig struct {
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	RawIndex  string   `mapstructure:"raw_index"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// IntegrationConfig holds settings for CRM, email, and SMS delivery.
type IntegrationConfig struct {
	CRM struct {
		BaseURL    string `mapstructure:"base_url"`
		OAuthToken string `mapstructure:"oauth_token"`
	} `mapstructure:"crm"`

	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled   bool   `mapstructure:"enabled"`
			FromEmail string `mapstructure:"from_email"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled            bool   `mapstructure:"enabled"`
			DefaultSMSSenderID string `mapstructure:"default_sms_sender_id"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

// ClassifierConfig configures the provider chain for event classification.
type ClassifierConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	TimeoutMS         int     `mapstructure:"timeout_ms"`
	InsightsThreshold float64 `mapstructure:"insights_threshold"`
}

func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// SourceConfig mirrors models.SourceConfig for the config file surface.
type SourceConfig struct {
	ID          string `mapstructure:"id"`
	TenantID    string `mapstructure:"tenant_id"`
	Type        string `mapstructure:"type"`
	Name        string `mapstructure:"name"`
	BaseURL     string `mapstructure:"base_url"`
	APIKey      string `mapstructure:"api_key"`
	EngineID    string `mapstructure:"engine_id"`
	Enabled     bool   `mapstructure:"enabled"`
	DailyBudget int    `mapstructure:"daily_budget"`
}

// ResilienceConfig sets circuit-breaker thresholds and snapshot behavior.
type ResilienceConfig struct {
	FailureThreshold int  `mapstructure:"failure_threshold"`
	LookbackMinutes  int  `mapstructure:"lookback_minutes"`
	CooldownSeconds  int  `mapstructure:"cooldown_seconds"`
	SnapshotEnabled  bool `mapstructure:"snapshot_enabled"`
}

func (r ResilienceConfig) Lookback() time.Duration {
	return time.Duration(r.LookbackMinutes) * time.Minute
}

func (r ResilienceConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// RetryConfig sets the per-source retry policy.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	BaseDelayMS int `mapstructure:"base_delay_ms"`
}

func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// DedupConfig sets the cross-history duplicate windows.
type DedupConfig struct {
	URLWindowDays    int `mapstructure:"url_window_days"`
	TitleWindowHours int `mapstructure:"title_window_hours"`
}

func (d DedupConfig) URLWindow() time.Duration {
	return time.Duration(d.URLWindowDays) * 24 * time.Hour
}

func (d DedupConfig) TitleWindow() time.Duration {
	return time.Duration(d.TitleWindowHours) * time.Hour
}

// EngineConfig sets orchestration-level knobs.
type EngineConfig struct {
	WorkerPoolSize      int `mapstructure:"worker_pool_size"`
	WindowDays          int `mapstructure:"window_days"`
	MaxResultsPerSource int `mapstructure:"max_results_per_source"`
	SourceTimeoutMS     int `mapstructure:"source_timeout_ms"`
	IntervalMinutes     int `mapstructure:"interval_minutes"` // 0 = one-shot
}

func (e EngineConfig) SourceTimeout() time.Duration {
	return time.Duration(e.SourceTimeoutMS) * time.Millisecond
}

func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalMinutes) * time.Minute
}
