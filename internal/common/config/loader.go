// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable env override like DATABASE_POSTGRES_PASSWORD
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, ignored when absent.
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	for _, p := range possiblePaths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "clientpulse"
	}
	if cfg.App.Environment == "" {
		cfg.App.Environment = "development"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Server.MetricsAddress == "" {
		cfg.Server.MetricsAddress = ":9402"
	}
	if cfg.Database.Elasticsearch.RawIndex == "" {
		cfg.Database.Elasticsearch.RawIndex = "monitoring-raw-results"
	}
	if cfg.Resilience.FailureThreshold <= 0 {
		cfg.Resilience.FailureThreshold = 5
	}
	if cfg.Resilience.LookbackMinutes <= 0 {
		cfg.Resilience.LookbackMinutes = 10
	}
	if cfg.Resilience.CooldownSeconds <= 0 {
		cfg.Resilience.CooldownSeconds = 60
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMS <= 0 {
		cfg.Retry.BaseDelayMS = 1000
	}
	if cfg.Dedup.URLWindowDays <= 0 {
		cfg.Dedup.URLWindowDays = 7
	}
	if cfg.Dedup.TitleWindowHours <= 0 {
		cfg.Dedup.TitleWindowHours = 24
	}
	if cfg.Engine.WorkerPoolSize <= 0 {
		cfg.Engine.WorkerPoolSize = 4
	}
	if cfg.Engine.WindowDays <= 0 {
		cfg.Engine.WindowDays = 7
	}
	if cfg.Engine.MaxResultsPerSource <= 0 {
		cfg.Engine.MaxResultsPerSource = 10
	}
	if cfg.Engine.SourceTimeoutMS <= 0 {
		cfg.Engine.SourceTimeoutMS = 15000
	}
	if cfg.Classifier.TimeoutMS <= 0 {
		cfg.Classifier.TimeoutMS = 20000
	}
	if cfg.Classifier.InsightsThreshold <= 0 {
		cfg.Classifier.InsightsThreshold = 0.7
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].DailyBudget <= 0 {
			cfg.Sources[i].DailyBudget = 100
		}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %q has no id", src.Name)
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
	}
	if cfg.Integrations.AWS.SES.Enabled && cfg.Integrations.AWS.SES.FromEmail == "" {
		return fmt.Errorf("aws.ses.from_email is required when SES is enabled")
	}
	return nil
}
