package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/saveenergy/playertester/internal/logging"
)

// Config holds the harness server settings: where the HTTP surface listens,
// how the bridge and live hub behave, and where runs are stored.
type Config struct {
	Port        string
	BindAddress string

	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration

	AllowedOrigins []string

	WebSocketPingInterval time.Duration
	CommandTimeout        time.Duration
	PageWaitTimeout       time.Duration

	WebRoot       string
	DataDir       string
	MaxStoredRuns int

	MetricsEnabled bool
	LogLevel       logging.Level
}

func DefaultConfig() *Config {
	return &Config{
		Port:                  "8090",
		BindAddress:           "127.0.0.1",
		ReadHeaderTimeout:     15 * time.Second,
		IdleTimeout:           60 * time.Second,
		AllowedOrigins:        nil,
		WebSocketPingInterval: 30 * time.Second,
		CommandTimeout:        10 * time.Second,
		PageWaitTimeout:       60 * time.Second,
		WebRoot:               "",
		DataDir:               "./data",
		MaxStoredRuns:         1000,
		MetricsEnabled:        true,
		LogLevel:              logging.LevelInfo,
	}
}

func (c *Config) LoadFromEnv() error {
	if port := os.Getenv("PT_PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PT_PORT %q: must be a number", port)
		}
		c.Port = port
	}
	if addr := os.Getenv("PT_BIND_ADDRESS"); addr != "" {
		c.BindAddress = addr
	}
	if origins := os.Getenv("PT_ALLOWED_ORIGINS"); origins != "" {
		entries := strings.Split(origins, ",")
		c.AllowedOrigins = make([]string, 0, len(entries))
		for _, entry := range entries {
			value := strings.TrimSpace(entry)
			if value != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, value)
			}
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"PT_WS_PING_INTERVAL", &c.WebSocketPingInterval},
		{"PT_COMMAND_TIMEOUT", &c.CommandTimeout},
		{"PT_PAGE_WAIT", &c.PageWaitTimeout},
	}
	for _, d := range durations {
		val := os.Getenv(d.env)
		if val == "" {
			continue
		}
		parsed, err := time.ParseDuration(val)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("invalid %s %q: must be a positive duration (e.g. 30s)", d.env, val)
		}
		*d.dst = parsed
	}

	if webRoot := os.Getenv("PT_WEB_ROOT"); webRoot != "" {
		c.WebRoot = webRoot
	}
	if dataDir := os.Getenv("PT_DATA_DIR"); dataDir != "" {
		c.DataDir = dataDir
	}
	if max := os.Getenv("PT_MAX_STORED_RUNS"); max != "" {
		m, err := strconv.Atoi(max)
		if err != nil || m <= 0 {
			return fmt.Errorf("invalid PT_MAX_STORED_RUNS %q: must be a positive integer", max)
		}
		c.MaxStoredRuns = m
	}
	if enabled := os.Getenv("PT_METRICS_ENABLED"); enabled == "false" || enabled == "0" {
		c.MetricsEnabled = false
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = logging.ParseLevel(level)
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	// Port 0 lets the kernel pick; tests and ad-hoc runs rely on it.
	if p, err := strconv.Atoi(c.Port); err != nil || p < 0 || p > 65535 {
		return fmt.Errorf("invalid port %q: must be 0-65535", c.Port)
	}
	if c.BindAddress != "" && net.ParseIP(c.BindAddress) == nil && c.BindAddress != "localhost" {
		return fmt.Errorf("invalid bind address %q", c.BindAddress)
	}
	if c.WebSocketPingInterval <= 0 {
		return fmt.Errorf("websocket ping interval must be > 0")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command timeout must be > 0")
	}
	if c.PageWaitTimeout <= 0 {
		return fmt.Errorf("page wait timeout must be > 0")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}
	if c.MaxStoredRuns <= 0 {
		return fmt.Errorf("max stored runs must be > 0")
	}
	return nil
}

// ListenAddress is the host:port the HTTP surface binds.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.BindAddress, c.Port)
}
