package application

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines billing configuration.
type Config struct {
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig defines the recurring backfill schedule.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	DailyAt string `yaml:"daily_at"`
}

// LoadConfig loads config from yaml or env. The startup backfill always
// runs; the schedule only controls the daily re-run.
func LoadConfig() (Config, error) {
	cfg := Config{}

	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.Schedule.DailyAt == "" {
		cfg.Schedule.DailyAt = getenvDefault("BILLING_BACKFILL_DAILY_AT", "02:00")
	}
	if !cfg.Schedule.Enabled && os.Getenv("BILLING_BACKFILL_SCHEDULE") == "1" {
		cfg.Schedule.Enabled = true
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
