package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultAgentCommand  = "claude"
	defaultContextWindow = 200000

	defaultSleepPollSeconds     = 1
	defaultHangCheckSeconds     = 90
	defaultSilenceSeconds       = 300
	defaultMaxRetries           = 2
	defaultMaxIncompleteRetries = 5
	defaultIncompleteBaseDelay  = 5
	defaultIncompleteDelayCap   = 60
	defaultContextThreshold     = 85.0
	defaultMinSuccessorMinutes  = 10
	defaultCacheStaleSeconds    = 60
	defaultMaxPollFailures      = 30

	defaultLogMaxSize      = 512000
	defaultLogTruncateSize = 204800

	defaultNotificationsPort = "8083"
	defaultHubPort           = "8080"
)

type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	Timing   TimingConfig   `toml:"timing"`
	Paths    PathsConfig    `toml:"paths"`
	Services ServicesConfig `toml:"services"`
	Logging  LoggingConfig  `toml:"logging"`
}

type AgentConfig struct {
	Command       string `toml:"command"`
	ContextWindow int    `toml:"context_window"`
}

type TimingConfig struct {
	SleepPollSeconds     int     `toml:"sleep_poll_seconds"`
	HangCheckSeconds     int     `toml:"hang_check_seconds"`
	SilenceSeconds       int     `toml:"silence_seconds"`
	MaxRetries           int     `toml:"max_retries"`
	MaxIncompleteRetries int     `toml:"max_incomplete_retries"`
	IncompleteBaseDelay  int     `toml:"incomplete_base_delay_seconds"`
	IncompleteDelayCap   int     `toml:"incomplete_delay_cap_seconds"`
	ContextThreshold     float64 `toml:"context_threshold_pct"`
	MinSuccessorMinutes  int     `toml:"min_successor_minutes"`
	RunLimitMinutes      int     `toml:"run_limit_minutes"`
	CacheStaleSeconds    int     `toml:"cache_stale_seconds"`
	MaxPollFailures      int     `toml:"max_poll_failures"`
}

type PathsConfig struct {
	DataDir           string `toml:"data_dir"`
	ProjectsDir       string `toml:"projects_dir"`
	ContextPctFile    string `toml:"context_pct_file"`
	NotificationCache string `toml:"notification_cache"`
}

type ServicesConfig struct {
	NotificationsURL string `toml:"notifications_url"`
	HubURL           string `toml:"hub_url"`
}

type LoggingConfig struct {
	Level           string `toml:"level"`
	LogMaxSize      int64  `toml:"log_max_size"`
	LogTruncateSize int64  `toml:"log_truncate_size"`
}

func Default() Config {
	return Config{
		Agent: AgentConfig{
			Command:       defaultAgentCommand,
			ContextWindow: defaultContextWindow,
		},
		Timing: TimingConfig{
			SleepPollSeconds:     defaultSleepPollSeconds,
			HangCheckSeconds:     defaultHangCheckSeconds,
			SilenceSeconds:       defaultSilenceSeconds,
			MaxRetries:           defaultMaxRetries,
			MaxIncompleteRetries: defaultMaxIncompleteRetries,
			IncompleteBaseDelay:  defaultIncompleteBaseDelay,
			IncompleteDelayCap:   defaultIncompleteDelayCap,
			ContextThreshold:     defaultContextThreshold,
			MinSuccessorMinutes:  defaultMinSuccessorMinutes,
			CacheStaleSeconds:    defaultCacheStaleSeconds,
			MaxPollFailures:      defaultMaxPollFailures,
		},
		Paths: PathsConfig{
			ContextPctFile:    "/tmp/relaygent-context-pct",
			NotificationCache: "/tmp/relaygent-notifications-cache.json",
		},
		Logging: LoggingConfig{
			Level:           "info",
			LogMaxSize:      defaultLogMaxSize,
			LogTruncateSize: defaultLogTruncateSize,
		},
	}
}

// Load reads the config file at path, or the well-known location when path
// is empty. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		defaultPath, err := ConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}
	cfg := Default()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func (c Config) AgentCommand() string {
	command := strings.TrimSpace(c.Agent.Command)
	if command == "" {
		return defaultAgentCommand
	}
	return command
}

func (c Config) ContextWindow() int {
	if c.Agent.ContextWindow <= 0 {
		return defaultContextWindow
	}
	return c.Agent.ContextWindow
}

func (c Config) SleepPollInterval() time.Duration {
	return secondsOr(c.Timing.SleepPollSeconds, defaultSleepPollSeconds)
}

func (c Config) HangCheckDelay() time.Duration {
	return secondsOr(c.Timing.HangCheckSeconds, defaultHangCheckSeconds)
}

func (c Config) SilenceTimeout() time.Duration {
	return secondsOr(c.Timing.SilenceSeconds, defaultSilenceSeconds)
}

func (c Config) MaxRetries() int {
	if c.Timing.MaxRetries <= 0 {
		return defaultMaxRetries
	}
	return c.Timing.MaxRetries
}

func (c Config) MaxIncompleteRetries() int {
	if c.Timing.MaxIncompleteRetries <= 0 {
		return defaultMaxIncompleteRetries
	}
	return c.Timing.MaxIncompleteRetries
}

func (c Config) IncompleteBaseDelay() time.Duration {
	return secondsOr(c.Timing.IncompleteBaseDelay, defaultIncompleteBaseDelay)
}

func (c Config) IncompleteDelayCap() time.Duration {
	return secondsOr(c.Timing.IncompleteDelayCap, defaultIncompleteDelayCap)
}

func (c Config) ContextThreshold() float64 {
	if c.Timing.ContextThreshold <= 0 {
		return defaultContextThreshold
	}
	return c.Timing.ContextThreshold
}

func (c Config) MinSuccessorTime() time.Duration {
	minutes := c.Timing.MinSuccessorMinutes
	if minutes <= 0 {
		minutes = defaultMinSuccessorMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// RunLimit is zero when the deployment has no wall-clock limit; session
// boundaries are then driven entirely by context fill.
func (c Config) RunLimit() time.Duration {
	if c.Timing.RunLimitMinutes <= 0 {
		return 0
	}
	return time.Duration(c.Timing.RunLimitMinutes) * time.Minute
}

func (c Config) CacheStaleLimit() time.Duration {
	return secondsOr(c.Timing.CacheStaleSeconds, defaultCacheStaleSeconds)
}

func (c Config) MaxPollFailures() int {
	if c.Timing.MaxPollFailures <= 0 {
		return defaultMaxPollFailures
	}
	return c.Timing.MaxPollFailures
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) LogMaxSize() int64 {
	if c.Logging.LogMaxSize <= 0 {
		return defaultLogMaxSize
	}
	return c.Logging.LogMaxSize
}

func (c Config) LogTruncateSize() int64 {
	if c.Logging.LogTruncateSize <= 0 {
		return defaultLogTruncateSize
	}
	return c.Logging.LogTruncateSize
}

func (c Config) NotificationsURL() string {
	return serviceURL(c.Services.NotificationsURL, "RELAYGENT_NOTIFICATIONS_PORT", defaultNotificationsPort)
}

func (c Config) HubURL() string {
	return serviceURL(c.Services.HubURL, "RELAYGENT_HUB_PORT", defaultHubPort)
}

func serviceURL(configured, portEnv, defaultPort string) string {
	url := strings.TrimSpace(configured)
	if url != "" {
		return strings.TrimRight(url, "/")
	}
	port := strings.TrimSpace(os.Getenv(portEnv))
	if port == "" {
		port = defaultPort
	}
	return "http://127.0.0.1:" + port
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func expandHome(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
