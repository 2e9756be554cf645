package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/livebridge/internal/api"
	"github.com/mattjoyce/livebridge/internal/config"
	"github.com/mattjoyce/livebridge/internal/dispatch"
	"github.com/mattjoyce/livebridge/internal/events"
	"github.com/mattjoyce/livebridge/internal/host"
	"github.com/mattjoyce/livebridge/internal/journal"
	"github.com/mattjoyce/livebridge/internal/lock"
	"github.com/mattjoyce/livebridge/internal/log"
	"github.com/mattjoyce/livebridge/internal/server"
	"github.com/mattjoyce/livebridge/internal/session"
	"github.com/mattjoyce/livebridge/internal/storage"
)

const pruneInterval = time.Hour

func runHostStart(args []string) int {
	fs := flag.NewFlagSet("host start", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")

	fingerprint, err := config.Fingerprint(cfg)
	if err != nil {
		logger.Error("failed to fingerprint config", "error", err)
		return 1
	}
	logger.Info("livebridge starting", "version", version, "config", cfg.SourceFile, "fingerprint", fingerprint)

	pidLockPath := lock.PathForPort(cfg.Service.PIDDir, cfg.Host.Port)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another host may be running on this port)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := openHost(ctx, cfg, cfg.Host.Endpoint())
	if err != nil {
		logger.Error("failed to start host", "error", err)
		return 1
	}
	defer rt.close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() { errCh <- rt.run(ctx) }()

	logger.Info("livebridge running (press Ctrl+C to stop)", "listen", rt.addr().String())

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("shutdown error", "error", err)
			return 1
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("component failed", "error", err)
			return 1
		}
	}

	logger.Info("livebridge stopped")
	return 0
}

// hostRuntime is everything a running host owns.
type hostRuntime struct {
	cfg     *config.Config
	logger  *slog.Logger
	loop    *host.MainLoop
	session *session.Session
	hub     *events.Hub
	db      *sql.DB
	journal *journal.Store
	srv     *server.Server
	api     *api.Server
}

// openHost wires the host and binds its command socket on listen. Nothing
// runs until run is called.
func openHost(ctx context.Context, cfg *config.Config, listen string) (*hostRuntime, error) {
	rt := &hostRuntime{
		cfg:    cfg,
		logger: log.WithComponent("host"),
		hub:    events.NewHub(cfg.Events.Capacity),
		session: session.New(session.Options{
			Tracks:       cfg.Session.Tracks,
			Scenes:       cfg.Session.Scenes,
			BrowserDelay: cfg.Session.BrowserDelay,
		}),
	}

	reg, err := rt.session.Registry()
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}

	rt.loop = host.NewMainLoop(host.LoopOptions{
		TickInterval: cfg.Service.TickInterval,
		Tick:         rt.session.Tick,
		QueueSize:    cfg.Bridge.QueueSize,
	})
	bridge := host.NewBridge(rt.loop, host.BridgeOptions{
		Timeout:            cfg.Bridge.Timeout,
		LongRunningTimeout: cfg.Bridge.LongRunningTimeout,
	})

	opts := dispatch.Options{Events: rt.hub}
	if cfg.Journal.Enabled {
		rt.db, err = storage.OpenSQLite(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		rt.journal = journal.New(rt.db)
		opts.Journal = rt.journal
		rt.logger.Info("journal opened", "path", cfg.Journal.Path)
	}
	disp := dispatch.New(reg, bridge, opts)

	rt.srv = server.New(server.Config{
		Address:      listen,
		Greeting:     cfg.Host.GreetingMessage(),
		MaxFrameSize: cfg.Host.MaxFrameSize,
		WriteTimeout: cfg.Host.WriteTimeout,
	}, disp)
	if err := rt.srv.Listen(); err != nil {
		rt.close()
		return nil, err
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Commands:    reg,
			Connections: rt.srv,
			Events:      rt.hub,
			Session:     rt.session,
		}
		if rt.journal != nil {
			deps.Journal = rt.journal
		}
		rt.api = api.New(api.Config{Listen: cfg.API.Listen, Token: cfg.API.Token}, deps, log.WithComponent("api"))
	}

	return rt, nil
}

func (rt *hostRuntime) addr() net.Addr { return rt.srv.Addr() }

// run starts the main loop and every listener, and blocks until ctx is done
// or a component fails. The main loop is stopped before run returns.
func (rt *hostRuntime) run(ctx context.Context) error {
	if err := rt.loop.Start(ctx); err != nil {
		return fmt.Errorf("main loop: %w", err)
	}
	defer rt.loop.Stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rt.srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("command server: %w", err)
		}
		return nil
	})

	if rt.api != nil {
		g.Go(func() error {
			if err := rt.api.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("api: %w", err)
			}
			return nil
		})
		rt.logger.Info("API server enabled", "listen", rt.cfg.API.Listen)
	}

	if rt.journal != nil && rt.cfg.Journal.Retention > 0 {
		g.Go(func() error {
			rt.pruneLoop(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (rt *hostRuntime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := rt.journal.Prune(ctx, rt.cfg.Journal.Retention)
		if err != nil && ctx.Err() == nil {
			rt.logger.Warn("journal prune failed", "error", err)
		} else if n > 0 {
			rt.logger.Info("journal pruned", "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (rt *hostRuntime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
		rt.db = nil
	}
}
