// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	HTTPAddr             string        `mapstructure:"HTTP_ADDR"`
	DBURL                string        `mapstructure:"DB_URL"`
	GithubToken          string        `mapstructure:"GITHUB_TOKEN"`
	ReposFile            string        `mapstructure:"REPOS_FILE"`
	ReposToSync          []string      `mapstructure:"REPOS_TO_SYNC"`
	SyncInterval         time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncMode             string        `mapstructure:"SYNC_MODE"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	ReviewPRLimit        int           `mapstructure:"REVIEW_PR_LIMIT"`
	DefaultSyncSinceDate string        `mapstructure:"DEFAULT_SYNC_SINCE_DATE"`
	DefaultSyncSinceTime time.Time     `mapstructure:"-"`
	Repos                []RepoTarget  `mapstructure:"-"`
}

func loadViper() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("SYNC_INTERVAL", "1h")
	viper.SetDefault("SYNC_MODE", "incremental-dedupe")
	viper.SetDefault("REQUEST_TIMEOUT", "30s")
	viper.SetDefault("REVIEW_PR_LIMIT", 10)
	viper.SetDefault("DEFAULT_SYNC_SINCE_DATE", "")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.DefaultSyncSinceDate != "" {
		parsedTime, err := time.Parse(time.RFC3339, cfg.DefaultSyncSinceDate)
		if err != nil {
			return nil, errors.New("DEFAULT_SYNC_SINCE_DATE must be in RFC3339 format (e.g. 2023-01-01T00:00:00Z)")
		}
		cfg.DefaultSyncSinceTime = parsedTime
	}

	return &cfg, nil
}

// LoadConfig reads configuration for the sync service from file and/or
// environment variables. The tracked repository list comes from the
// line-oriented REPOS_FILE when set, otherwise from REPOS_TO_SYNC.
func LoadConfig() (*Config, error) {
	cfg, err := loadViper()
	if err != nil {
		return nil, err
	}

	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}

	if cfg.ReposFile != "" {
		cfg.Repos, err = LoadRepoFile(cfg.ReposFile)
	} else {
		cfg.Repos, err = ParseRepoList(cfg.ReposToSync)
	}
	if err != nil {
		return nil, err
	}
	if len(cfg.Repos) == 0 {
		return nil, errors.New("no repositories configured: set REPOS_FILE or REPOS_TO_SYNC")
	}

	return cfg, nil
}

// LoadSnapshotConfig reads configuration for the snapshot CLI, which
// needs GitHub credentials but no database.
func LoadSnapshotConfig() (*Config, error) {
	cfg, err := loadViper()
	if err != nil {
		return nil, err
	}
	if cfg.GithubToken == "" {
		return nil, errors.New("GITHUB_TOKEN is a required configuration field")
	}
	return cfg, nil
}
