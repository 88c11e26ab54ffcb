package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/smugglebox/internal/logging"
	"github.com/dmitrijs2005/smugglebox/internal/netx"
)

const (
	readHeaderTimeout = 30 * time.Second
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

// Server runs the handler on a netx listener until its context ends.
type Server struct {
	listen       netx.Options
	handler      http.Handler
	readTimeout  time.Duration
	writeTimeout time.Duration
	logger       logging.Logger
}

// NewServer returns a Server. Zero timeouts mean no limit.
func NewServer(listen netx.Options, handler http.Handler, readTimeout, writeTimeout time.Duration, l logging.Logger) *Server {
	return &Server{
		listen:       listen,
		handler:      handler,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		logger:       l.With("module", "http_server"),
	}
}

// Run opens the listener and serves until ctx is canceled. Failing to open
// the listener is returned as is.
func (s *Server) Run(ctx context.Context) error {
	ln, err := netx.Listen(ctx, s.listen)
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "Starting HTTP server", "url", ln.URL())
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled, then shuts down
// gracefully. ln is closed on return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(sctx)
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}
