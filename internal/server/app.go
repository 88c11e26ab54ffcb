// Package server assembles the file-exchange service from its parts and
// runs it until the process is told to stop.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/smugglebox/internal/cryptox"
	"github.com/dmitrijs2005/smugglebox/internal/filex"
	"github.com/dmitrijs2005/smugglebox/internal/logging"
	"github.com/dmitrijs2005/smugglebox/internal/netx"
	"github.com/dmitrijs2005/smugglebox/internal/server/config"
	"github.com/dmitrijs2005/smugglebox/internal/server/delivery"
	"github.com/dmitrijs2005/smugglebox/internal/server/ingest"
	"github.com/dmitrijs2005/smugglebox/internal/server/listing"
	"github.com/dmitrijs2005/smugglebox/internal/server/replica"
	"github.com/dmitrijs2005/smugglebox/internal/server/sandbox"
	"github.com/dmitrijs2005/smugglebox/internal/server/web"
)

// App owns the configured server and its optional replica.
type App struct {
	config  *config.Config
	logger  logging.Logger
	sandbox *sandbox.Sandbox
	replica *replica.Replica
	server  *web.Server
}

// NewApp builds every component once. The session key is generated here and
// handed to the components that need it; it never changes afterwards.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(os.Stdout, c.LogFormat, c.LogLevel)
	if err != nil {
		return nil, err
	}

	root := c.Root
	if root == "" {
		if root, err = filex.WorkDir(); err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}

	self, err := filex.Executable()
	if err != nil {
		logger.Warn(ctx, "cannot locate own executable, self protection disabled", "error", err)
		self = ""
	}

	sb, err := sandbox.New(root, self)
	if err != nil {
		return nil, err
	}

	key, err := cryptox.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}

	opts := []web.HandlerOption{web.WithRateLimit(c.RateLimit, c.RateBurst)}

	var rep *replica.Replica
	if c.ReplicaEnabled() {
		if rep, err = replica.New(ctx, c, logger); err != nil {
			return nil, err
		}
		opts = append(opts, web.WithMirror(rep))
	}

	handler := web.NewHandler(sb,
		listing.New(sb, key, c.Smuggling),
		delivery.New(key, c.Smuggling, logger),
		ingest.New(sb, key, c.Smuggling, logger),
		logger,
		opts...,
	)

	listen := netx.Options{
		Addr:     c.Addr(),
		TLS:      c.TLS,
		CertFile: c.CertFile,
		KeyFile:  c.KeyFile,
		Onion:    c.Onion,
	}

	return &App{
		config:  c,
		logger:  logger,
		sandbox: sb,
		replica: rep,
		server:  web.NewServer(listen, handler.Router(), c.ReadTimeout, c.WriteTimeout, logger),
	}, nil
}

func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		defer signal.Stop(sigs)
		select {
		case <-sigs:
			cancelFunc()
		case <-ctx.Done():
		}
	}()
}

// Run serves until ctx is canceled or a termination signal arrives, then
// waits for pending replica uploads. Startup failures are returned.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...",
		"root", app.sandbox.Root(),
		"smuggling", app.config.Smuggling,
		"replica", app.config.ReplicaEnabled(),
	)

	app.initSignalHandler(ctx, cancelFunc)

	err := app.server.Run(ctx)

	if app.replica != nil {
		app.replica.Wait()
	}

	return err
}
