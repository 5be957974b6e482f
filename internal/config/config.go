// Package config loads the server configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "YTDL"

// Config holds every environment-sourced option the server recognizes.
type Config struct {
	ListenAddr  string
	DownloadDir string

	// Extraction tool options.
	BinaryPath      string
	Format          string
	MergeFormat     string
	AudioFormat     string
	AudioQuality    string
	RecodeFormat    string
	ArchiveFile     string
	SelfUpdate      bool
	DownloadTimeout time.Duration

	// API options.
	AuthToken      string
	WebhookTimeout time.Duration

	// Scheduling and retention.
	MaxWorkers int
	QueueSize  int
	JobTTL     time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads configuration from YTDL_-prefixed environment variables,
// falling back to defaults suitable for local use.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("download_dir", "./downloads")
	v.SetDefault("binary_path", "yt-dlp")
	v.SetDefault("format", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/b")
	v.SetDefault("merge_format", "mp4")
	v.SetDefault("audio_format", "")
	v.SetDefault("audio_quality", "")
	v.SetDefault("recode_format", "")
	v.SetDefault("archive_file", "")
	v.SetDefault("self_update", false)
	v.SetDefault("download_timeout", 30*time.Minute)
	v.SetDefault("auth_token", "")
	v.SetDefault("webhook_timeout", 5*time.Second)
	v.SetDefault("max_workers", 4)
	v.SetDefault("queue_size", 100)
	v.SetDefault("job_ttl", time.Duration(0))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	cfg := &Config{
		ListenAddr:      v.GetString("listen_addr"),
		DownloadDir:     v.GetString("download_dir"),
		BinaryPath:      v.GetString("binary_path"),
		Format:          v.GetString("format"),
		MergeFormat:     v.GetString("merge_format"),
		AudioFormat:     v.GetString("audio_format"),
		AudioQuality:    v.GetString("audio_quality"),
		RecodeFormat:    v.GetString("recode_format"),
		ArchiveFile:     v.GetString("archive_file"),
		SelfUpdate:      v.GetBool("self_update"),
		DownloadTimeout: v.GetDuration("download_timeout"),
		AuthToken:       v.GetString("auth_token"),
		WebhookTimeout:  v.GetDuration("webhook_timeout"),
		MaxWorkers:      v.GetInt("max_workers"),
		QueueSize:       v.GetInt("queue_size"),
		JobTTL:          v.GetDuration("job_ttl"),
		LogLevel:        v.GetString("log_level"),
		LogFormat:       v.GetString("log_format"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DownloadDir == "" {
		return fmt.Errorf("download dir must not be empty")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be greater than 0, got %d", c.MaxWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("queue size must be greater than 0, got %d", c.QueueSize)
	}
	if c.JobTTL < 0 {
		return fmt.Errorf("job ttl must not be negative, got %s", c.JobTTL)
	}
	return nil
}

// AuthEnabled reports whether bearer-token auth is configured.
func (c *Config) AuthEnabled() bool {
	return c.AuthToken != ""
}
