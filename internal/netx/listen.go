// Package netx opens the listening socket: plain TCP, TLS on top of it, or a
// Tor onion service with optional TLS.
package netx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cretz/bine/tor"
)

// OnionTimeout bounds publishing the onion service descriptor.
const OnionTimeout = 3 * time.Minute

var startTor = tor.Start

// Options selects the listener flavour.
type Options struct {
	// Addr is the host:port for TCP. For onion services only the port is
	// used, as the virtual port of the service.
	Addr     string
	TLS      bool
	CertFile string
	KeyFile  string
	Onion    bool
}

// Listener is a net.Listener that also knows the URL clients should use.
type Listener struct {
	net.Listener

	url     string
	cleanup func() error
}

// URL is the base URL of the service.
func (l *Listener) URL() string { return l.url }

// Close stops accepting and releases everything Listen started.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.cleanup != nil {
		err = errors.Join(err, l.cleanup())
	}
	return err
}

// Listen opens the listener described by opts. A certificate that cannot be
// loaded, an address that cannot be bound or a Tor process that cannot be
// started are all returned as errors.
func Listen(ctx context.Context, opts Options) (*Listener, error) {
	var tlsCfg *tls.Config
	if opts.TLS {
		cfg, err := LoadTLSConfig(opts.CertFile, opts.KeyFile)
		if err != nil {
			return nil, err
		}
		tlsCfg = cfg
	}

	var (
		ln      net.Listener
		host    string
		cleanup func() error
	)
	if opts.Onion {
		o, stop, err := listenOnion(ctx, opts.Addr)
		if err != nil {
			return nil, err
		}
		ln, cleanup = o, stop
		host = o.ID + ".onion"
		if p := virtualPort(opts.Addr); p != defaultPort(opts.TLS) {
			host = net.JoinHostPort(host, strconv.Itoa(p))
		}
	} else {
		var lc net.ListenConfig
		tcp, err := lc.Listen(ctx, "tcp", opts.Addr)
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", opts.Addr, err)
		}
		ln = tcp
		host = tcp.Addr().String()
	}

	scheme := "http"
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
		scheme = "https"
	}

	return &Listener{Listener: ln, url: scheme + "://" + host, cleanup: cleanup}, nil
}

// LoadTLSConfig reads a PEM certificate and key pair.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair %s/%s: %w", certFile, keyFile, err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func listenOnion(ctx context.Context, addr string) (*tor.OnionService, func() error, error) {
	t, err := startTor(ctx, &tor.StartConf{
		TempDataDirBase: os.TempDir(),
		NoAutoSocksPort: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("start tor: %w", err)
	}

	lctx, cancel := context.WithTimeout(ctx, OnionTimeout)
	defer cancel()

	onion, err := t.Listen(lctx, &tor.ListenConf{
		Version3:    true,
		RemotePorts: []int{virtualPort(addr)},
	})
	if err != nil {
		_ = t.Close()
		return nil, nil, fmt.Errorf("publish onion service: %w", err)
	}

	return onion, t.Close, nil
}

// virtualPort extracts the port of addr, falling back to 80.
func virtualPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	n, err := strconv.Atoi(p)
	if err != nil || n == 0 {
		return 80
	}
	return n
}

func defaultPort(useTLS bool) int {
	if useTLS {
		return 443
	}
	return 80
}
