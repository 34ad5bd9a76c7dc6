package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// TrackerConfig holds the per-worker settings for one mailbox → task
// list pairing. Each worker process runs exactly one tracker.
type TrackerConfig struct {
	// Mailbox connection settings.
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password is the mailbox password, or a "keyring:<key>" reference
	// resolved against the system keyring at startup.
	Password string `mapstructure:"password" yaml:"password"`

	// Folder is the mailbox folder to poll.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// Group and TaskListSlug identify the list this tracker feeds.
	Group        string `mapstructure:"group" yaml:"group"`
	TaskListSlug string `mapstructure:"task_list_slug" yaml:"task_list_slug"`

	// Priority is assigned to tasks created from mail.
	Priority int `mapstructure:"priority" yaml:"priority"`

	// TitleFormat is applied to new task titles; {subject} and {author}
	// placeholders are substituted from the message.
	TitleFormat string `mapstructure:"title_format" yaml:"title_format"`

	// ProcessAll selects every message in the folder instead of only
	// unseen ones.
	ProcessAll bool `mapstructure:"process_all" yaml:"process_all"`

	// PreserveMessages disables deletion of processed messages,
	// useful for replay and testing.
	PreserveMessages bool `mapstructure:"preserve_messages" yaml:"preserve_messages"`

	// MatchUsers enables mapping the sender address to a registered
	// user for the created_by field of new tasks.
	MatchUsers bool `mapstructure:"match_users" yaml:"match_users"`

	PollIntervalSec  int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
	SocketTimeoutSec int `mapstructure:"socket_timeout_sec" yaml:"socket_timeout_sec"`
}

// SMTPConfig holds outbound mail settings for notification delivery.
type SMTPConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`

	// FromAddress is the envelope sender for notifications.
	FromAddress string `mapstructure:"from_address" yaml:"from_address"`
}

// LogConfig holds logging output settings.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`

	// File enables rotated file output when set; console output is
	// always on.
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// AppConfig is the top-level application configuration. It is loaded
// once and passed explicitly into worker construction; nothing reads
// ambient global settings.
type AppConfig struct {
	// DBPath is the SQLite database file path.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	// Domain is the system domain embedded in synthetic thread markers
	// (thread-<id>@<domain>).
	Domain string `mapstructure:"domain" yaml:"domain"`

	Log  LogConfig  `mapstructure:"log" yaml:"log"`
	SMTP SMTPConfig `mapstructure:"smtp" yaml:"smtp"`

	// Mailers overrides the global SMTP block per task list slug.
	Mailers map[string]SMTPConfig `mapstructure:"mailers" yaml:"mailers"`

	// Trackers maps worker names to their mailbox/list pairing.
	Trackers map[string]TrackerConfig `mapstructure:"trackers" yaml:"trackers"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/todotrack/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "todotrack", "config.yaml")
}

func defaultAppConfig() *AppConfig {
	return &AppConfig{
		DBPath: "todotrack.db",
		Domain: "todotrack.local",
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. Defaults are applied for missing keys; a missing file is an
// error because a worker cannot run without mailbox credentials.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("db_path", "todotrack.db")
	v.SetDefault("domain", "todotrack.local")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for name, tr := range cfg.Trackers {
		if tr.Port == 0 {
			tr.Port = 993
		}
		if tr.Folder == "" {
			tr.Folder = "INBOX"
		}
		if tr.Priority == 0 {
			tr.Priority = 1
		}
		if tr.TitleFormat == "" {
			tr.TitleFormat = "{subject}"
		}
		if tr.PollIntervalSec == 0 {
			tr.PollIntervalSec = 60
		}
		if tr.SocketTimeoutSec == 0 {
			tr.SocketTimeoutSec = 30
		}
		cfg.Trackers[name] = tr
	}

	return cfg, nil
}

// Tracker returns the named tracker block. A missing entry is a
// configuration error and fatal for worker startup.
func (c *AppConfig) Tracker(name string) (TrackerConfig, error) {
	tr, ok := c.Trackers[name]
	if !ok {
		return TrackerConfig{}, fmt.Errorf("no tracker named %q in configuration", name)
	}
	return tr, nil
}

// Validate checks that a tracker block carries everything a worker
// needs to start.
func (t *TrackerConfig) Validate() error {
	switch {
	case t.Host == "":
		return fmt.Errorf("tracker: missing mailbox host")
	case t.Username == "":
		return fmt.Errorf("tracker: missing mailbox username")
	case t.Password == "":
		return fmt.Errorf("tracker: missing mailbox password")
	case t.Group == "":
		return fmt.Errorf("tracker: missing group name")
	case t.TaskListSlug == "":
		return fmt.Errorf("tracker: missing task_list_slug")
	}
	return nil
}

// MailerFor resolves the outbound mail settings for a task list slug:
// the per-list override when present, otherwise the global SMTP block.
// The mapping is resolved once at startup, not per send.
func (c *AppConfig) MailerFor(slug string) SMTPConfig {
	if m, ok := c.Mailers[slug]; ok {
		return m
	}
	return c.SMTP
}
