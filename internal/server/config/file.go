package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dmitrijs2005/smugglebox/internal/flagx"
	"github.com/dmitrijs2005/smugglebox/internal/timex"
)

// FileConfig is the on-disk shape of the configuration. Interval fields use
// timex.Duration so both "15m" and integer nanoseconds are accepted.
//
// It is an intermediate DTO: it is pre-filled from the current Config, so
// keys absent from the file keep their earlier value.
type FileConfig struct {
	Host         string         `json:"host" yaml:"host"`
	Port         int            `json:"port" yaml:"port"`
	Root         string         `json:"root" yaml:"root"`
	Smuggling    bool           `json:"smuggling" yaml:"smuggling"`
	TLS          bool           `json:"tls" yaml:"tls"`
	CertFile     string         `json:"cert_file" yaml:"cert_file"`
	KeyFile      string         `json:"key_file" yaml:"key_file"`
	Onion        bool           `json:"onion" yaml:"onion"`
	ReadTimeout  timex.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout timex.Duration `json:"write_timeout" yaml:"write_timeout"`
	RateLimit    float64        `json:"rate_limit" yaml:"rate_limit"`
	RateBurst    int            `json:"rate_burst" yaml:"rate_burst"`
	LogFormat    string         `json:"log_format" yaml:"log_format"`
	LogLevel     string         `json:"log_level" yaml:"log_level"`

	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`
}

func fileConfigFrom(c *Config) *FileConfig {
	return &FileConfig{
		Host:           c.Host,
		Port:           c.Port,
		Root:           c.Root,
		Smuggling:      c.Smuggling,
		TLS:            c.TLS,
		CertFile:       c.CertFile,
		KeyFile:        c.KeyFile,
		Onion:          c.Onion,
		ReadTimeout:    timex.Duration{Duration: c.ReadTimeout},
		WriteTimeout:   timex.Duration{Duration: c.WriteTimeout},
		RateLimit:      c.RateLimit,
		RateBurst:      c.RateBurst,
		LogFormat:      c.LogFormat,
		LogLevel:       c.LogLevel,
		S3Bucket:       c.S3Bucket,
		S3Region:       c.S3Region,
		S3BaseEndpoint: c.S3BaseEndpoint,
		S3RootUser:     c.S3RootUser,
		S3RootPassword: c.S3RootPassword,
		S3Prefix:       c.S3Prefix,
	}
}

func (f *FileConfig) apply(c *Config) {
	c.Host = f.Host
	c.Port = f.Port
	c.Root = f.Root
	c.Smuggling = f.Smuggling
	c.TLS = f.TLS
	c.CertFile = f.CertFile
	c.KeyFile = f.KeyFile
	c.Onion = f.Onion
	c.ReadTimeout = f.ReadTimeout.Duration
	c.WriteTimeout = f.WriteTimeout.Duration
	c.RateLimit = f.RateLimit
	c.RateBurst = f.RateBurst
	c.LogFormat = f.LogFormat
	c.LogLevel = f.LogLevel
	c.S3Bucket = f.S3Bucket
	c.S3Region = f.S3Region
	c.S3BaseEndpoint = f.S3BaseEndpoint
	c.S3RootUser = f.S3RootUser
	c.S3RootPassword = f.S3RootPassword
	c.S3Prefix = f.S3Prefix
}

// parseFile overlays the file named by -c/-config onto config. Files ending
// in .yaml or .yml are YAML, everything else is JSON. Without the flag
// nothing is loaded.
func parseFile(config *Config) error {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	fc := fileConfigFrom(config)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	fc.apply(config)
	return nil
}
