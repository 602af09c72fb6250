// Package config loads isobench settings.
//
// Values are layered, later sources overriding earlier ones:
//
//  1. Defaults
//  2. TOML file (-config, ISOBENCH_CONFIG, or ./isobench.toml)
//  3. Environment variables (ISOBENCH_*)
//  4. Command-line flags
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/utkarsh5026/isopool/isolate"
)

const (
	DefaultConfigFile = "isobench.toml"

	DefaultTasks = 10
	DefaultMin   = 90000000
	DefaultMax   = 90000100

	envPrefix = "ISOBENCH_"
)

// Runner names accepted in Config.Runners.
const (
	RunnerProcess      = "process"
	RunnerIsolated     = "isolated"
	RunnerNative       = "native"
	RunnerSharedThread = "shared-thread"
	RunnerSequential   = "sequential"
)

// AllRunners lists every runner in the order the benchmark runs them.
var AllRunners = []string{
	RunnerProcess,
	RunnerIsolated,
	RunnerNative,
	RunnerSharedThread,
	RunnerSequential,
}

// Config holds benchmark and executor settings.
type Config struct {
	ConfigFile string `toml:"-"`

	// Workload
	Tasks   int      `toml:"tasks"`
	Min     int64    `toml:"min"`
	Max     int64    `toml:"max"`
	Seed    int64    `toml:"seed"`
	Runners []string `toml:"runners"`

	// Executor
	Mode        string `toml:"mode"`
	MaxContexts int    `toml:"max_contexts"`
	PinCPU      bool   `toml:"pin_cpu"`

	// Output
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
	MetricsAddr string `toml:"metrics_addr"`
	CI          bool   `toml:"ci"`
	JSON        bool   `toml:"json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Tasks:       DefaultTasks,
		Min:         DefaultMin,
		Max:         DefaultMax,
		Runners:     append([]string(nil), AllRunners...),
		Mode:        isolate.FailFast.String(),
		MaxContexts: isolate.DefaultMaxContexts,
		LogLevel:    "warn",
		LogFormat:   "text",
	}
}

// Load builds the configuration from every source and validates it. Flags
// are registered on fs and parsed from args; callers may register their own
// flags on fs beforehand.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Default()

	path, explicit := configPath(args)
	if path != "" {
		if err := loadFile(cfg, path); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("loading config file %s: %w", path, err)
			}
		} else {
			cfg.ConfigFile = path
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := parseFlags(cfg, fs, args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath finds the config file to load. explicit reports whether the
// user named it, in which case a missing file is an error.
func configPath(args []string) (path string, explicit bool) {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}

	if v := os.Getenv(envPrefix + "CONFIG"); v != "" {
		return v, true
	}
	return DefaultConfigFile, false
}

func loadFile(cfg *Config, path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys: %v", undecoded)
	}
	return nil
}

func loadFromEnv(cfg *Config) error {
	var errs []error

	intVar := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	int64Var := func(key string, dst *int64) {
		if v := os.Getenv(envPrefix + key); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	boolVar := func(key string, dst *bool) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = boolFromString(v)
		}
	}
	stringVar := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}

	intVar("TASKS", &cfg.Tasks)
	int64Var("MIN", &cfg.Min)
	int64Var("MAX", &cfg.Max)
	int64Var("SEED", &cfg.Seed)
	if v := os.Getenv(envPrefix + "RUNNERS"); v != "" {
		cfg.Runners = splitAndTrim(v, ",")
	}
	stringVar("MODE", &cfg.Mode)
	intVar("MAX_CONTEXTS", &cfg.MaxContexts)
	boolVar("PIN_CPU", &cfg.PinCPU)
	stringVar("LOG_LEVEL", &cfg.LogLevel)
	stringVar("LOG_FORMAT", &cfg.LogFormat)
	stringVar("METRICS_ADDR", &cfg.MetricsAddr)
	boolVar("CI", &cfg.CI)
	boolVar("JSON", &cfg.JSON)

	return errors.Join(errs...)
}

func parseFlags(cfg *Config, fs *flag.FlagSet, args []string) error {
	if fs == nil {
		fs = flag.NewFlagSet("isobench", flag.ContinueOnError)
	}

	var configFile string
	fs.StringVar(&configFile, "config", cfg.ConfigFile, "Path to TOML config file")

	fs.IntVar(&cfg.Tasks, "tasks", cfg.Tasks, "Number of tasks per batch")
	fs.Int64Var(&cfg.Min, "min", cfg.Min, "Smallest factorial input")
	fs.Int64Var(&cfg.Max, "max", cfg.Max, "Largest factorial input")
	fs.Int64Var(&cfg.Seed, "seed", cfg.Seed, "Random seed for inputs (0 = time based)")
	runners := fs.String("runners", strings.Join(cfg.Runners, ","), "Comma-separated runners: "+strings.Join(AllRunners, ", "))

	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Failure mode: fail-fast or collect-all")
	fs.IntVar(&cfg.MaxContexts, "max-contexts", cfg.MaxContexts, "Live context budget (negative = unbounded)")
	fs.BoolVar(&cfg.PinCPU, "pin-cpu", cfg.PinCPU, "Pin each worker thread to one core")

	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Serve /metrics and /healthz on this address")
	fs.BoolVar(&cfg.CI, "ci", cfg.CI, "Plain output without colour or progress bar")
	fs.BoolVar(&cfg.JSON, "json", cfg.JSON, "Print results as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg.Runners = splitAndTrim(*runners, ",")
	return nil
}

// Validate checks the configuration for values the benchmark cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Tasks < 1 {
		errs = append(errs, fmt.Errorf("tasks must be positive, got %d", c.Tasks))
	}
	if c.Min < 0 {
		errs = append(errs, fmt.Errorf("min must not be negative, got %d", c.Min))
	}
	if c.Max < c.Min {
		errs = append(errs, fmt.Errorf("max (%d) must not be below min (%d)", c.Max, c.Min))
	}
	if len(c.Runners) == 0 {
		errs = append(errs, errors.New("at least one runner is required"))
	}
	for _, r := range c.Runners {
		if !isRunner(r) {
			errs = append(errs, fmt.Errorf("unknown runner %q (available: %s)", r, strings.Join(AllRunners, ", ")))
		}
	}
	if _, err := isolate.ParseMode(c.Mode); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// ExecutorMode returns the parsed failure mode.
func (c *Config) ExecutorMode() isolate.Mode {
	mode, _ := isolate.ParseMode(c.Mode)
	return mode
}

// ParseLogLevel maps a level name to its slog level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger creates a structured logger writing to w at the configured level
// and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLogLevel(c.LogLevel)
	opts := &slog.HandlerOptions{Level: level}

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isRunner(name string) bool {
	for _, r := range AllRunners {
		if r == name {
			return true
		}
	}
	return false
}

func boolFromString(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
