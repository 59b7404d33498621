package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FileName is the base name of the configuration file, without extension.
const FileName = "phasebuild.config"

// Config represents the complete phasebuild configuration
type Config struct {
	Execution ExecutionConfig `mapstructure:"execution"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Timeline  TimelineConfig  `mapstructure:"timeline"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// ExecutionConfig controls how operations are scheduled
type ExecutionConfig struct {
	// Parallelism is the maximum number of operations running at once.
	// Options: "max" (one per CPU), an integer, or a percentage of CPUs like "50%"
	Parallelism string `mapstructure:"parallelism"`
	// Incremental lets runners skip projects whose inputs did not change (default: true)
	Incremental bool `mapstructure:"incremental"`
	// Clean removes each phase's clean targets before it runs (default: false)
	Clean bool `mapstructure:"clean"`
}

// WatchConfig controls watch mode
type WatchConfig struct {
	// DebounceMs is the quiet period after the last file event before a rebuild (default: 200)
	DebounceMs int `mapstructure:"debounce_ms"`
	// Ignore lists glob patterns, relative to the workspace root, that never trigger a rebuild
	Ignore []string `mapstructure:"ignore"`
}

// TimelineConfig controls the parallelism chart printed after each cycle
type TimelineConfig struct {
	// Enabled prints the chart after every cycle (default: false)
	Enabled bool `mapstructure:"enabled"`
	// MaxWidth caps the chart width; 0 uses the terminal width
	MaxWidth int `mapstructure:"max_width"`
}

// TelemetryConfig controls the per-cycle telemetry files
type TelemetryConfig struct {
	// Enabled writes one JSON telemetry file per cycle (default: false)
	Enabled bool `mapstructure:"enabled"`
	// Dir is the telemetry directory, relative to the workspace root
	Dir string `mapstructure:"dir"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the log directory, relative to the workspace root
	Dir string `mapstructure:"dir"`
}

// PathsConfig controls where phasebuild reads and writes files
type PathsConfig struct {
	// WorkspaceFile is the workspace definition, relative to the working directory
	WorkspaceFile string `mapstructure:"workspace_file"`
	// StateDir holds the change analyzer state, relative to the workspace root
	StateDir string `mapstructure:"state_dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			Parallelism: "max",
			Incremental: true,
			Clean:       false,
		},
		Watch: WatchConfig{
			DebounceMs: 200,
			Ignore:     []string{".git/**", "**/node_modules/**", "**/.phasebuild/**"},
		},
		Timeline: TimelineConfig{
			Enabled:  false,
			MaxWidth: 0, // Terminal width
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
			Dir:     filepath.Join(".phasebuild", "telemetry"),
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Dir:     filepath.Join(".phasebuild", "logs"),
		},
		Paths: PathsConfig{
			WorkspaceFile: "phasebuild.yaml",
			StateDir:      filepath.Join(".phasebuild", "state"),
		},
	}
}

// Debounce returns the watch debounce as a time.Duration
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Resolve returns path resolved against baseDir. A leading ~ expands to the
// user's home directory and absolute paths are returned unchanged.
func Resolve(baseDir, path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return path
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Execution defaults
	viper.SetDefault("execution.parallelism", defaults.Execution.Parallelism)
	viper.SetDefault("execution.incremental", defaults.Execution.Incremental)
	viper.SetDefault("execution.clean", defaults.Execution.Clean)

	// Watch defaults
	viper.SetDefault("watch.debounce_ms", defaults.Watch.DebounceMs)
	viper.SetDefault("watch.ignore", defaults.Watch.Ignore)

	// Timeline defaults
	viper.SetDefault("timeline.enabled", defaults.Timeline.Enabled)
	viper.SetDefault("timeline.max_width", defaults.Timeline.MaxWidth)

	// Telemetry defaults
	viper.SetDefault("telemetry.enabled", defaults.Telemetry.Enabled)
	viper.SetDefault("telemetry.dir", defaults.Telemetry.Dir)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	// Paths defaults
	viper.SetDefault("paths.workspace_file", defaults.Paths.WorkspaceFile)
	viper.SetDefault("paths.state_dir", defaults.Paths.StateDir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "phasebuild")
	}
	// Fall back to ~/.config/phasebuild
	home, err := os.UserHomeDir()
	if err != nil {
		return ".phasebuild"
	}
	return filepath.Join(home, ".config", "phasebuild")
}

// ConfigFile returns the path to the user config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), FileName+".yaml")
}
