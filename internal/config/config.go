package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort     = 8765
	DefaultToken    = "change-me"
	DefaultBind     = "0.0.0.0"
	DefaultInterval = 1 * time.Second
	DefaultLogLevel = "info"
)

// Config holds agent configuration. Fields are unexported so the value stays
// read-only after Load and can be shared by every session.
type Config struct {
	port     int
	bind     string
	token    string
	disk     string
	interval time.Duration
	logLevel string
	logFile  string
}

// Options controls where Load looks for configuration.
type Options struct {
	// EnvFile is loaded with godotenv before the environment is read.
	// A missing file is not an error.
	EnvFile string
	// ConfigFile is an optional YAML file. Falls back to AGENT_CONFIG.
	ConfigFile string
}

type fileConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	Token    string `yaml:"token"`
	Disk     string `yaml:"disk"`
	Interval string `yaml:"interval"`
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// DefaultDisk is the volume reported when AGENT_DISK is unset: the system
// drive on Windows, the root filesystem elsewhere.
func DefaultDisk() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SYSTEMDRIVE")
		if drive == "" {
			drive = "C:"
		}
		return strings.TrimRight(drive, `\`) + `\`
	}
	return "/"
}

func defaults() *Config {
	return &Config{
		port:     DefaultPort,
		bind:     DefaultBind,
		token:    DefaultToken,
		disk:     DefaultDisk(),
		interval: DefaultInterval,
		logLevel: DefaultLogLevel,
	}
}

// Load builds the configuration from defaults, then the optional YAML file,
// then the environment (after loading the .env file).
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading env file %s: %w", envFile, err)
	}

	cfg := defaults()

	path := opts.ConfigFile
	if path == "" {
		path = os.Getenv("AGENT_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	if fc.Port != 0 {
		c.port = fc.Port
	}
	if fc.Bind != "" {
		c.bind = fc.Bind
	}
	if fc.Token != "" {
		c.token = fc.Token
	}
	if fc.Disk != "" {
		c.disk = fc.Disk
	}
	if fc.Interval != "" {
		d, err := time.ParseDuration(fc.Interval)
		if err != nil {
			return fmt.Errorf("parsing config interval: %w", err)
		}
		c.interval = d
	}
	if fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if fc.LogFile != "" {
		c.logFile = fc.LogFile
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("AGENT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_PORT %q: %w", v, err)
		}
		c.port = port
	}
	if v, ok := os.LookupEnv("AGENT_TOKEN"); ok {
		c.token = v
	}
	if v := os.Getenv("AGENT_DISK"); v != "" {
		c.disk = v
	}
	if v := os.Getenv("AGENT_BIND"); v != "" {
		c.bind = v
	}
	if v := os.Getenv("AGENT_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid AGENT_INTERVAL %q: %w", v, err)
		}
		c.interval = d
	}
	if v := os.Getenv("AGENT_LOG_LEVEL"); v != "" {
		c.logLevel = v
	}
	if v := os.Getenv("AGENT_LOG_FILE"); v != "" {
		c.logFile = v
	}
	return nil
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("port %d out of range", c.port)
	}
	if c.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.interval)
	}
	if c.token == "" {
		return errors.New("token must not be empty")
	}
	if c.bind != "" && net.ParseIP(c.bind) == nil && c.bind != "localhost" {
		return fmt.Errorf("invalid bind address %q", c.bind)
	}
	return nil
}

// Getter methods (immutable from outside)

func (c *Config) Port() int {
	return c.port
}

func (c *Config) Bind() string {
	return c.bind
}

// ListenAddr is the host:port the agent binds to.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.bind, strconv.Itoa(c.port))
}

func (c *Config) Token() string {
	return c.token
}

// DefaultTokenInUse reports whether the operator left the placeholder secret.
func (c *Config) DefaultTokenInUse() bool {
	return c.token == DefaultToken
}

func (c *Config) Disk() string {
	return c.disk
}

func (c *Config) Interval() time.Duration {
	return c.interval
}

func (c *Config) LogLevel() string {
	return c.logLevel
}

func (c *Config) LogFile() string {
	return c.logFile
}
