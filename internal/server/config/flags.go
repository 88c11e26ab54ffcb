package config

import (
	"flag"
	"io"
	"os"

	"github.com/dmitrijs2005/smugglebox/internal/flagx"
)

var (
	valueFlags = []string{
		"-host", "-port", "-root", "-certfile", "-keyfile",
		"-read-timeout", "-write-timeout", "-rate", "-burst",
		"-log-format", "-log-level",
		"-s3-bucket", "-s3-region", "-s3-endpoint", "-s3-user", "-s3-password", "-s3-prefix",
	}
	boolFlags = []string{"-no-html-smuggling", "-ssl", "-onion"}
)

// parseFlags overlays command-line flags onto config.
//
// Supported flags:
//
//	-host string            bind address (default all interfaces)
//	-port int               port, 0 for 80/443
//	-root string            directory to serve (default working directory)
//	-no-html-smuggling      plain upload form and plain downloads
//	-ssl                    serve HTTPS
//	-certfile / -keyfile    PEM certificate and key
//	-onion                  publish as a Tor onion service
//	-read-timeout / -write-timeout duration
//	-rate float / -burst int  global request rate limit
//	-log-format string      auto, text or json
//	-log-level string       debug, info, warn or error
//	-s3-*                   replica bucket settings
//
// The config file flags -c/-config are filtered out beforehand by
// flagx.Filter, so they never reach this flag set.
func parseFlags(config *Config) error {
	args := flagx.Filter(os.Args[1:], valueFlags, boolFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.Host, "host", config.Host, "host to bind to")
	fs.IntVar(&config.Port, "port", config.Port, "port to listen on, 0 picks 80 or 443")
	fs.StringVar(&config.Root, "root", config.Root, "directory to serve")

	noSmuggling := fs.Bool("no-html-smuggling", !config.Smuggling, "disable HTML smuggling")

	fs.BoolVar(&config.TLS, "ssl", config.TLS, "serve HTTPS")
	fs.StringVar(&config.CertFile, "certfile", config.CertFile, "TLS certificate (PEM)")
	fs.StringVar(&config.KeyFile, "keyfile", config.KeyFile, "TLS private key (PEM)")
	fs.BoolVar(&config.Onion, "onion", config.Onion, "publish as a Tor onion service")

	fs.DurationVar(&config.ReadTimeout, "read-timeout", config.ReadTimeout, "per-request read timeout")
	fs.DurationVar(&config.WriteTimeout, "write-timeout", config.WriteTimeout, "per-request write timeout")
	fs.Float64Var(&config.RateLimit, "rate", config.RateLimit, "requests per second, 0 disables limiting")
	fs.IntVar(&config.RateBurst, "burst", config.RateBurst, "rate limiter burst")

	fs.StringVar(&config.LogFormat, "log-format", config.LogFormat, "log format: auto, text or json")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	fs.StringVar(&config.S3Bucket, "s3-bucket", config.S3Bucket, "S3 replica bucket")
	fs.StringVar(&config.S3Region, "s3-region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "s3-endpoint", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3RootUser, "s3-user", config.S3RootUser, "S3 access key")
	fs.StringVar(&config.S3RootPassword, "s3-password", config.S3RootPassword, "S3 secret key")
	fs.StringVar(&config.S3Prefix, "s3-prefix", config.S3Prefix, "S3 object key prefix")

	if err := fs.Parse(args); err != nil {
		return err
	}

	config.Smuggling = !*noSmuggling
	return nil
}
