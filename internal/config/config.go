package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"timetrack/internal/core"
)

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Addr string
	Mode string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// SweepConfig holds the automatic closure schedule.
type SweepConfig struct {
	Cron    string
	Enabled bool
}

// BarkConfig holds Bark notification settings.
type BarkConfig struct {
	URL     string
	Enabled bool
}

// NotificationConfig holds all notification settings.
type NotificationConfig struct {
	Bark BarkConfig
}

// Config holds all runtime configuration options for the daemon.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	Sweep        SweepConfig
	Notification NotificationConfig

	StateDir      string
	UseUTC        bool
	ShutdownGrace time.Duration
}

const (
	defaultAddr          = "0.0.0.0:8080"
	defaultMode          = "http"
	defaultLogLevel      = "info"
	defaultLogFormat     = "text"
	defaultShutdownGrace = 5 * time.Second
	appDirName           = "timetrack"
)

// Location returns the time zone used for cron evaluation and calendar days.
func (c *Config) Location() *time.Location {
	if c.UseUTC {
		return time.UTC
	}
	return time.Local
}

// getEnvString returns the environment variable value or default
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the environment variable as bool or default
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(val)); err == nil {
			return b
		}
		return strings.EqualFold(strings.TrimSpace(val), "yes")
	}
	return defaultVal
}

// getEnvDuration returns the environment variable as duration or default
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Parse reads configuration from os.Args.
func Parse() (*Config, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs builds a Config from args, the environment and optional .env files.
// Priority: CLI flags > environment variables > .env file > defaults
func ParseArgs(args []string) (*Config, error) {
	// .env files are optional; godotenv.Load never overrides variables
	// that are already set.
	envFiles := []string{}
	if _, err := os.Stat(".env"); err == nil {
		envFiles = append(envFiles, ".env")
	}
	if configDir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(configDir, appDirName, ".env")
		if _, err := os.Stat(path); err == nil {
			envFiles = append(envFiles, path)
		}
	}
	if len(envFiles) > 0 {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, fmt.Errorf("load env files: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnvString("TIMETRACK_ADDR", defaultAddr),
			Mode: getEnvString("TIMETRACK_MODE", defaultMode),
		},
		Log: LogConfig{
			Level:  getEnvString("TIMETRACK_LOG_LEVEL", defaultLogLevel),
			Format: getEnvString("TIMETRACK_LOG_FORMAT", defaultLogFormat),
		},
		Sweep: SweepConfig{
			Cron:    getEnvString("TIMETRACK_SWEEP_CRON", core.DefaultSweepCron),
			Enabled: getEnvBool("TIMETRACK_SWEEP_ENABLED", true),
		},
		Notification: NotificationConfig{
			Bark: BarkConfig{
				URL:     getEnvString("TIMETRACK_BARK_URL", ""),
				Enabled: getEnvBool("TIMETRACK_BARK_ENABLED", false),
			},
		},
		StateDir:      getEnvString("TIMETRACK_STATE_DIR", ""),
		UseUTC:        getEnvBool("TIMETRACK_USE_UTC", false),
		ShutdownGrace: getEnvDuration("TIMETRACK_SHUTDOWN_GRACE", defaultShutdownGrace),
	}

	fs := flag.NewFlagSet(appDirName, flag.ContinueOnError)
	addr := fs.String("addr", "", "HTTP listen address (overrides env)")
	mode := fs.String("mode", "", "Run mode: http, mcp or both")
	stateDir := fs.String("state-dir", "", "Directory to store the database")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := fs.String("log-format", "", "Log format (text, json)")
	sweepCron := fs.String("sweep-cron", "", "Cron expression for the automatic task closure")
	sweepEnabled := fs.Bool("sweep-enabled", true, "Run the automatic task closure on schedule")
	useUTC := fs.Bool("use-utc", false, "Use UTC instead of system local time for calendar days and cron")
	shutdownGrace := fs.Duration("shutdown-grace", 0, "Grace period when shutting down")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *mode != "" {
		cfg.Server.Mode = *mode
	}
	if *stateDir != "" {
		cfg.StateDir = *stateDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *sweepCron != "" {
		cfg.Sweep.Cron = *sweepCron
	}
	// For bool and duration flags, only explicitly set values override.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "sweep-enabled":
			cfg.Sweep.Enabled = *sweepEnabled
		case "use-utc":
			cfg.UseUTC = *useUTC
		case "shutdown-grace":
			cfg.ShutdownGrace = *shutdownGrace
		}
	})

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Server.Mode {
	case "http", "mcp", "both":
	default:
		return fmt.Errorf("invalid mode %q: want http, mcp or both", c.Server.Mode)
	}
	if _, err := core.ParseCron(c.Sweep.Cron); err != nil {
		return fmt.Errorf("sweep cron: %w", err)
	}
	if c.Notification.Bark.Enabled && strings.TrimSpace(c.Notification.Bark.URL) == "" {
		return fmt.Errorf("bark notifications enabled but TIMETRACK_BARK_URL is empty")
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}
	return nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, appDirName)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
