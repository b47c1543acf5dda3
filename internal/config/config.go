package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/containerbox/boxprov/pkg/system"
)

// Config holds all application configuration
type Config struct {
	// Guest file locations
	ReleaseFile string `mapstructure:"release-file"`
	RepoFile    string `mapstructure:"repo-file"`
	MarkerPath  string `mapstructure:"marker-path"`
	RebootFlag  string `mapstructure:"reboot-flag"`
	LockPath    string `mapstructure:"lock-path"`

	// Database paths
	LedgerPath string `mapstructure:"ledger-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Upstream endpoints
	Mirror          string `mapstructure:"mirror"`
	ReleaseListing  string `mapstructure:"release-listing"`
	ComposeAPI      string `mapstructure:"compose-api"`
	ComposeDownload string `mapstructure:"compose-download"`
	ComposeBin      string `mapstructure:"compose-bin"`
	ComposeMaxBytes int64  `mapstructure:"compose-max-bytes"`

	// First-run setup
	Packages []string `mapstructure:"packages"`
	Service  string   `mapstructure:"service"`

	// Timeouts
	HTTPTimeout     time.Duration `mapstructure:"http-timeout"`
	DownloadTimeout time.Duration `mapstructure:"download-timeout"`
	ApkTimeout      time.Duration `mapstructure:"apk-timeout"`
	CommitTimeout   time.Duration `mapstructure:"commit-timeout"`

	// Run behavior
	RebootGrace time.Duration `mapstructure:"reboot-grace"`
	LockWait    time.Duration `mapstructure:"lock-wait"`

	// FSM configuration
	FSMMaxRetries int `mapstructure:"fsm-max-retries"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	// Set defaults
	viper.SetDefault("release-file", "/etc/alpine-release")
	viper.SetDefault("repo-file", "/etc/apk/repositories")
	viper.SetDefault("marker-path", "/etc/boxprov/provisioned")
	viper.SetDefault("reboot-flag", "/run/boxprov/reboot-pending")
	viper.SetDefault("lock-path", "/run/boxprov/run.lock")
	viper.SetDefault("ledger-path", "/var/lib/boxprov/runs.db")
	viper.SetDefault("fsm-db-path", "/var/lib/boxprov/fsm")
	viper.SetDefault("mirror", "https://dl-cdn.alpinelinux.org/alpine")
	viper.SetDefault("release-listing",
		fmt.Sprintf("https://dl-cdn.alpinelinux.org/alpine/latest-stable/releases/%s/latest-releases.yaml", system.Arch()))
	viper.SetDefault("compose-api", "https://api.github.com/repos/docker/compose/releases/latest")
	viper.SetDefault("compose-download", "https://github.com/docker/compose/releases/download")
	viper.SetDefault("compose-bin", "/usr/local/bin/docker-compose")
	viper.SetDefault("compose-max-bytes", 200*1024*1024)
	viper.SetDefault("packages", []string{"docker"})
	viper.SetDefault("service", "docker")
	viper.SetDefault("http-timeout", 15*time.Second)
	viper.SetDefault("download-timeout", 10*time.Minute)
	viper.SetDefault("apk-timeout", 15*time.Minute)
	viper.SetDefault("commit-timeout", 2*time.Minute)
	viper.SetDefault("reboot-grace", 5*time.Second)
	viper.SetDefault("lock-wait", 0*time.Second)
	viper.SetDefault("fsm-max-retries", 5)

	// Environment variables (will be BOXPROV_RELEASE_FILE, etc.)
	viper.SetEnvPrefix("BOXPROV")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/boxprov")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.ReleaseFile == "" {
		return fmt.Errorf("release-file cannot be empty")
	}
	if c.RepoFile == "" {
		return fmt.Errorf("repo-file cannot be empty")
	}
	if c.MarkerPath == "" {
		return fmt.Errorf("marker-path cannot be empty")
	}
	if c.RebootFlag == "" {
		return fmt.Errorf("reboot-flag cannot be empty")
	}
	if c.LockPath == "" {
		return fmt.Errorf("lock-path cannot be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.Mirror == "" {
		return fmt.Errorf("mirror cannot be empty")
	}
	if c.ReleaseListing == "" {
		return fmt.Errorf("release-listing cannot be empty")
	}
	if c.ComposeBin == "" {
		return fmt.Errorf("compose-bin cannot be empty")
	}
	if c.ComposeMaxBytes <= 0 {
		return fmt.Errorf("compose-max-bytes must be positive")
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("packages cannot be empty")
	}
	if c.Service == "" {
		return fmt.Errorf("service cannot be empty")
	}
	if c.HTTPTimeout <= 0 || c.DownloadTimeout <= 0 || c.ApkTimeout <= 0 || c.CommitTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.RebootGrace < 0 {
		return fmt.Errorf("reboot-grace must be non-negative")
	}
	if c.LockWait < 0 {
		return fmt.Errorf("lock-wait must be non-negative")
	}
	if c.FSMMaxRetries < 0 {
		return fmt.Errorf("fsm-max-retries must be non-negative")
	}
	return nil
}
