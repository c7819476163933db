// Package config loads the ptyhost daemon configuration from defaults, a
// YAML file, PTYHOST_* environment variables and command line flags, in
// that order of precedence (later wins).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for ptyhost.
type Config struct {
	SocketPath string `yaml:"socket_path" default:"~/.ptyhost/pty.sock"`
	LogDir     string `yaml:"log_dir" default:"~/.ptyhost/log"`
	LogLevel   string `yaml:"log_level" default:"info"`

	// Shell overrides shell autodetection when set.
	Shell string `yaml:"shell"`

	// Backend is the readiness primitive: auto, poll or select.
	Backend string `yaml:"backend" default:"auto"`
	// Strategy is the allocation strategy: auto, ptmx or openpty.
	Strategy string `yaml:"strategy" default:"auto"`

	// PreserveOutput keeps the slave open so output written right before a
	// shell exits is not lost.
	PreserveOutput bool `yaml:"preserve_output" default:"false"`
	// OutputBuffer is the per-session scrollback capacity in bytes.
	OutputBuffer int `yaml:"output_buffer" default:"65536"`
	// KillGrace is how long a shell gets between SIGTERM and SIGKILL.
	KillGrace time.Duration `yaml:"kill_grace" default:"2s"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	if path := os.Getenv("PTYHOST_CONFIG"); path != "" {
		return path
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ptyhost", "config.yml")
	}
	return "~/.ptyhost/config.yml"
}

// Load builds the configuration. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = DefaultPath()
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	if err := loadFromFile(cfg, expanded); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file %s: %w", expanded, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize expands paths and validates. Load calls it; callers that apply
// flags afterwards call it again.
func (c *Config) Finalize() error {
	var err error
	if c.SocketPath, err = ExpandPath(c.SocketPath); err != nil {
		return err
	}
	if c.LogDir, err = ExpandPath(c.LogDir); err != nil {
		return err
	}
	if err := validate(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func loadFromFile(cfg *Config, path string) error {
	// #nosec G304 - path comes from a flag or a standard location
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("PTYHOST_SOCKET"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("PTYHOST_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("PTYHOST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PTYHOST_SHELL"); v != "" {
		cfg.Shell = v
	}
	if v := os.Getenv("PTYHOST_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("PTYHOST_STRATEGY"); v != "" {
		cfg.Strategy = v
	}
	if v := os.Getenv("PTYHOST_PRESERVE_OUTPUT"); v != "" {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PTYHOST_PRESERVE_OUTPUT: %w", err)
		}
		cfg.PreserveOutput = b
	}
	if v := os.Getenv("PTYHOST_OUTPUT_BUFFER"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PTYHOST_OUTPUT_BUFFER: %w", err)
		}
		cfg.OutputBuffer = n
	}
	if v := os.Getenv("PTYHOST_KILL_GRACE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PTYHOST_KILL_GRACE: %w", err)
		}
		cfg.KillGrace = d
	}
	return nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, nil
	case "false", "0", "no":
		return false, nil
	}
	return false, fmt.Errorf("%q (use true/false)", v)
}

// RegisterFlags declares the flags ApplyFlags understands.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()
	fs.String("socket", d.SocketPath, "Path to the Unix socket")
	fs.String("log-dir", d.LogDir, "Directory for session transcripts")
	fs.String("shell", "", "Shell to spawn (default: autodetect)")
	fs.String("backend", d.Backend, "Multiplexer backend (auto, poll, select)")
	fs.String("strategy", d.Strategy, "PTY allocation strategy (auto, ptmx, openpty)")
	fs.Bool("preserve-output", d.PreserveOutput, "Hold the slave open to keep output after shell exit")
	fs.Int("output-buffer", d.OutputBuffer, "Per-session scrollback size in bytes")
	fs.Duration("kill-grace", d.KillGrace, "Delay between SIGTERM and SIGKILL on kill")
}

// ApplyFlags overlays flags the user actually set.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var err error
	set := func(name string, apply func() error) {
		if err == nil && fs.Changed(name) {
			err = apply()
		}
	}
	set("socket", func() (e error) { c.SocketPath, e = fs.GetString("socket"); return })
	set("log-dir", func() (e error) { c.LogDir, e = fs.GetString("log-dir"); return })
	set("shell", func() (e error) { c.Shell, e = fs.GetString("shell"); return })
	set("backend", func() (e error) { c.Backend, e = fs.GetString("backend"); return })
	set("strategy", func() (e error) { c.Strategy, e = fs.GetString("strategy"); return })
	set("preserve-output", func() (e error) { c.PreserveOutput, e = fs.GetBool("preserve-output"); return })
	set("output-buffer", func() (e error) { c.OutputBuffer, e = fs.GetInt("output-buffer"); return })
	set("kill-grace", func() (e error) { c.KillGrace, e = fs.GetDuration("kill-grace"); return })
	if err != nil {
		return err
	}
	return c.Finalize()
}

func validate(cfg *Config) error {
	if cfg.SocketPath == "" {
		return fmt.Errorf("socket_path is required")
	}
	switch strings.ToLower(cfg.Backend) {
	case "auto", "poll", "select":
	default:
		return fmt.Errorf("backend must be auto, poll or select, got %q", cfg.Backend)
	}
	switch strings.ToLower(cfg.Strategy) {
	case "auto", "ptmx", "openpty":
	default:
		return fmt.Errorf("strategy must be auto, ptmx or openpty, got %q", cfg.Strategy)
	}
	if cfg.OutputBuffer <= 0 {
		return fmt.Errorf("output_buffer must be positive")
	}
	if cfg.KillGrace < 0 {
		return fmt.Errorf("kill_grace must be non-negative")
	}
	return nil
}

// ExpandPath expands a leading tilde to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	if path[1] == '/' {
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
