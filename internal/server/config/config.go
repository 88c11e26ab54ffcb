// Package config handles configuration for the server, including defaults,
// a JSON or YAML file overlay and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds runtime settings for the server. It is built once at startup
// and never changed afterwards.
//
// Fields:
//   - Host / Port: listen address; Port 0 means 80, or 443 with TLS.
//   - Root: directory served; empty means the working directory.
//   - Smuggling: obfuscated upload form and HTML-smuggled downloads.
//   - TLS / CertFile / KeyFile: serve HTTPS with the given PEM pair.
//   - Onion: publish the service through a local Tor process.
//   - RateLimit / RateBurst: global request budget; RateLimit 0 disables it.
//   - S3*: optional replica bucket; empty S3Bucket disables it.
type Config struct {
	Host         string
	Port         int
	Root         string
	Smuggling    bool
	TLS          bool
	CertFile     string
	KeyFile      string
	Onion        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimit    float64
	RateBurst    int
	LogFormat    string
	LogLevel     string

	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3RootUser     string
	S3RootPassword string
	S3Prefix       string
}

// LoadDefaults populates Config with the stock settings.
func (c *Config) LoadDefaults() {
	c.Host = ""
	c.Port = 0
	c.Root = ""
	c.Smuggling = true
	c.TLS = false
	c.CertFile = "cert.pem"
	c.KeyFile = "key.pem"
	c.Onion = false
	c.ReadTimeout = 15 * time.Minute
	c.WriteTimeout = 15 * time.Minute
	c.RateLimit = 0
	c.RateBurst = 20
	c.LogFormat = "auto"
	c.LogLevel = "info"
	c.S3Region = "us-east-1"
}

// ListenPort resolves the zero port to the scheme default.
func (c *Config) ListenPort() int {
	if c.Port != 0 {
		return c.Port
	}
	if c.TLS {
		return 443
	}
	return 80
}

// Addr is the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.ListenPort()))
}

// ReplicaEnabled reports whether uploads are mirrored to S3.
func (c *Config) ReplicaEnabled() bool {
	return c.S3Bucket != ""
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.TLS && (c.CertFile == "" || c.KeyFile == "") {
		errs = append(errs, errors.New("tls needs both a certificate and a key file"))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		errs = append(errs, errors.New("rate burst must be positive"))
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional config file and finally from command-line flags.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
