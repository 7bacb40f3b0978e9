package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// AppName is used for the config file name and the env prefix
	AppName = "resume-agent"

	// DefaultJobDescription is the role every resume is scored against unless overridden
	DefaultJobDescription = "Looking for candidates with Python, NLP, ML experience. Must have clean formatting and 1+ year in AI-related roles."
)

// Config holds application configuration
type Config struct {
	JobDescription string       `mapstructure:"job-description" json:"job_description"`
	ResumesDir     string       `mapstructure:"resumes-dir" json:"resumes_dir"`
	BatchLimit     int          `mapstructure:"batch-limit" json:"batch_limit"`
	Workers        int          `mapstructure:"workers" json:"workers"`
	DryRun         bool         `mapstructure:"dry-run" json:"dry_run"`
	Gmail          GmailConfig  `mapstructure:"gmail" json:"gmail"`
	Output         OutputConfig `mapstructure:"output" json:"output"`
	Server         ServerConfig `mapstructure:"server" json:"server"`
}

// GmailConfig holds mailbox access settings
type GmailConfig struct {
	CredentialsPath   string  `mapstructure:"credentials-path" json:"credentials_path"`
	TokenPath         string  `mapstructure:"token-path" json:"token_path"`
	User              string  `mapstructure:"user" json:"user"`
	Query             string  `mapstructure:"query" json:"query"`
	From              string  `mapstructure:"from" json:"from"`
	RequestsPerSecond float64 `mapstructure:"requests-per-second" json:"requests_per_second"`
	Burst             int     `mapstructure:"burst" json:"burst"`
}

// OutputConfig lists the run log sinks; empty paths are skipped
type OutputConfig struct {
	CSV    string `mapstructure:"csv" json:"csv"`
	XLSX   string `mapstructure:"xlsx" json:"xlsx"`
	SQLite string `mapstructure:"sqlite" json:"sqlite"`
}

// ServerConfig holds HTTP settings for the serve command
type ServerConfig struct {
	Port int `mapstructure:"port" json:"port"`
}

// DefaultConfig returns a new config with default values
func DefaultConfig() *Config {
	return &Config{
		JobDescription: DefaultJobDescription,
		ResumesDir:     "resumes",
		BatchLimit:     10,
		Workers:        1,
		Gmail: GmailConfig{
			CredentialsPath:   "credentials.json",
			TokenPath:         "token.json",
			User:              "me",
			Query:             "has:attachment",
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Output: OutputConfig{
			CSV: "processing_log.csv",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// SetDefaults registers every key with viper so env overrides apply on Unmarshal
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("job-description", d.JobDescription)
	v.SetDefault("resumes-dir", d.ResumesDir)
	v.SetDefault("batch-limit", d.BatchLimit)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("dry-run", d.DryRun)
	v.SetDefault("gmail.credentials-path", d.Gmail.CredentialsPath)
	v.SetDefault("gmail.token-path", d.Gmail.TokenPath)
	v.SetDefault("gmail.user", d.Gmail.User)
	v.SetDefault("gmail.query", d.Gmail.Query)
	v.SetDefault("gmail.from", d.Gmail.From)
	v.SetDefault("gmail.requests-per-second", d.Gmail.RequestsPerSecond)
	v.SetDefault("gmail.burst", d.Gmail.Burst)
	v.SetDefault("output.csv", d.Output.CSV)
	v.SetDefault("output.xlsx", d.Output.XLSX)
	v.SetDefault("output.sqlite", d.Output.SQLite)
	v.SetDefault("server.port", d.Server.Port)
}

// GetConfigPath returns the per-user configuration directory
// On Windows: %APPDATA%/ResumeFeedbackAgent
// On Unix: ~/.config/ResumeFeedbackAgent
func GetConfigPath() (string, error) {
	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, "ResumeFeedbackAgent"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "ResumeFeedbackAgent"), nil
}

// Load reads configuration into v and decodes it.
// An explicit path must exist; otherwise resume-agent.yaml is searched in the
// working directory and the user config directory, and defaults apply if none is found.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(strings.ReplaceAll(AppName, "-", "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := GetConfigPath(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JobDescription) == "" {
		return fmt.Errorf("job-description is required")
	}

	if c.BatchLimit <= 0 {
		return fmt.Errorf("batch-limit must be positive, got %d", c.BatchLimit)
	}

	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}

	if c.ResumesDir == "" {
		return fmt.Errorf("resumes-dir is required")
	}

	return nil
}

// ValidateMail checks the settings needed to talk to Gmail
func (c *Config) ValidateMail() error {
	if c.Gmail.CredentialsPath == "" {
		return fmt.Errorf("gmail.credentials-path is required")
	}
	if _, err := os.Stat(c.Gmail.CredentialsPath); err != nil {
		return fmt.Errorf("gmail credentials file not found: %w", err)
	}
	if c.Gmail.TokenPath == "" {
		return fmt.Errorf("gmail.token-path is required")
	}
	return nil
}
