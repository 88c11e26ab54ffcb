package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected func(*Config)
		wantErr  bool
	}{
		{
			name: "all flags",
			args: []string{"smugglebox",
				"-host", "127.0.0.1", "-port", "8443", "-root", "/srv/drop",
				"-no-html-smuggling", "-ssl", "-certfile", "c.pem", "-keyfile", "k.pem", "-onion",
				"-read-timeout", "1m", "-write-timeout", "2m", "-rate", "2.5", "-burst", "5",
				"-log-format", "json", "-log-level", "debug",
				"-s3-bucket", "loot", "-s3-region", "eu-west-1", "-s3-endpoint", "http://minio:9000",
				"-s3-user", "user", "-s3-password", "password", "-s3-prefix", "box",
			},
			expected: func(c *Config) {
				c.Host = "127.0.0.1"
				c.Port = 8443
				c.Root = "/srv/drop"
				c.Smuggling = false
				c.TLS = true
				c.CertFile = "c.pem"
				c.KeyFile = "k.pem"
				c.Onion = true
				c.ReadTimeout = time.Minute
				c.WriteTimeout = 2 * time.Minute
				c.RateLimit = 2.5
				c.RateBurst = 5
				c.LogFormat = "json"
				c.LogLevel = "debug"
				c.S3Bucket = "loot"
				c.S3Region = "eu-west-1"
				c.S3BaseEndpoint = "http://minio:9000"
				c.S3RootUser = "user"
				c.S3RootPassword = "password"
				c.S3Prefix = "box"
			},
		},
		{
			name:     "no flags keep defaults",
			args:     []string{"smugglebox"},
			expected: func(*Config) {},
		},
		{
			name:     "config file flag is ignored here",
			args:     []string{"smugglebox", "-c", "cfg.json", "-ssl"},
			expected: func(c *Config) { c.TLS = true },
		},
		{
			name:     "double dash",
			args:     []string{"smugglebox", "--port", "8000", "--no-html-smuggling"},
			expected: func(c *Config) { c.Port = 8000; c.Smuggling = false },
		},
		{
			name:    "bad duration",
			args:    []string{"smugglebox", "-read-timeout", "forever"},
			wantErr: true,
		},
	}

	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := defaults()
			err := parseFlags(config)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := defaults()
			tt.expected(want)
			assert.Empty(t, cmp.Diff(want, config))
		})
	}
}
