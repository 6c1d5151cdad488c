// Package config loads cfnet settings from YAML.
//
// Example:
//
//	tls:
//	  address: 127.0.0.1:5308
//	  tries: 5
//	  timeout: 5s
//	  cert_file: /etc/cfnet/cert.pem
//	  key_file: /etc/cfnet/key.pem
//	  ca_file: /etc/cfnet/ca.pem
//	  server_name: node-1
//	ipc:
//	  timeout: 10s
//	  socket_path: /run/cfnet.sock
//	log:
//	  level: info
//	  protocol_log: /var/log/cfnet/probe.clog
//
// Durations use Go syntax ("250ms", "5s"). Missing keys keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cfnet-project/cfnet-go/pkg/ipc"
	"github.com/cfnet-project/cfnet-go/pkg/retry"
)

// ErrInvalid indicates a configuration that fails validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete cfnet configuration.
type Config struct {
	TLS TLS `yaml:"tls"`
	IPC IPC `yaml:"ipc"`
	Log Log `yaml:"log"`
}

// TLS configures encrypted sessions.
type TLS struct {
	// Address to listen on or dial.
	Address string `yaml:"address"`

	// Tries and Timeout form the retry policy of every session operation.
	Tries   int           `yaml:"tries"`
	Timeout time.Duration `yaml:"timeout"`

	// CertFile and KeyFile hold the PEM identity. Both or neither.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// CAFile holds trusted certificates in PEM.
	CAFile string `yaml:"ca_file"`

	// ServerName is checked against the server certificate by clients.
	ServerName string `yaml:"server_name"`
}

// IPC configures local messaging channels.
type IPC struct {
	Timeout    time.Duration `yaml:"timeout"`
	SocketPath string        `yaml:"socket_path"`
}

// Log configures logging.
type Log struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// ProtocolLog is the path of a CBOR protocol log (.clog). Empty disables.
	ProtocolLog string `yaml:"protocol_log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		TLS: TLS{
			Address: "127.0.0.1:5308",
			Tries:   retry.DefaultTries,
			Timeout: retry.DefaultTimeout,
		},
		IPC: IPC{
			Timeout: ipc.DefaultTimeout,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load reads and validates a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.TLSPolicy().Validate(); err != nil {
		return fmt.Errorf("%w: tls: %w", ErrInvalid, err)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: tls: cert_file and key_file must be set together", ErrInvalid)
	}
	if c.IPC.Timeout < 0 {
		return fmt.Errorf("%w: ipc: negative timeout %s", ErrInvalid, c.IPC.Timeout)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log: %w", ErrInvalid, err)
	}
	return nil
}

// TLSPolicy returns the retry policy for sessions.
func (c *Config) TLSPolicy() retry.Policy {
	return retry.Policy{Tries: c.TLS.Tries, Timeout: c.TLS.Timeout}
}

// SlogLevel returns the configured log level, info if it is invalid.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
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
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}
