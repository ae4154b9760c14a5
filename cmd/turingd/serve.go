package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/codefionn/turing/internal/chataddr"
	"github.com/codefionn/turing/internal/config"
	"github.com/codefionn/turing/internal/lockfile"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/metrics"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/socketserver"
	"github.com/codefionn/turing/internal/state"
	"github.com/codefionn/turing/internal/storage"
	"github.com/codefionn/turing/internal/web"
)

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the document server",
		Long: `Restore users and documents from the store, then serve the request protocol
over TCP and the registration, websocket and metrics endpoints over HTTP.
Stops on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *configFile)
		},
	}
}

// loadConfig reads the configuration and initializes the global logger.
func loadConfig(configFile string) (*config.Config, error) {
	v, err := config.New(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := logger.Init(cfg.LogLevel(), cfg.Log.Path); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if config.Watch(v, func(updated *config.Config) {
		logger.Global().SetLevel(updated.LogLevel())
	}) {
		logger.Debug("Watching %s for log level changes", v.ConfigFileUsed())
	}
	return cfg, nil
}

// lockStore takes the lock guarding the configured store on behalf of owner.
func lockStore(cfg *config.Config, owner string) (*lockfile.Lockfile, error) {
	lock := lockfile.ForStore(cfg.Storage.Path, owner)
	if err := lock.TryAcquire(); err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", cfg.Storage.Path, err)
	}
	logger.Debug("Acquired store lock %s", lock.Path())
	return lock, nil
}

// releaseStore drops a lock taken by lockStore.
func releaseStore(lock *lockfile.Lockfile) {
	if err := lock.Release(); err != nil {
		logger.Warn("Failed to release store lock: %v", err)
	}
}

// openDirectory opens the store and builds an empty directory on top of it.
func openDirectory(cfg *config.Config) (*state.Directory, *chataddr.Pool, storage.Store, error) {
	network, err := cfg.ChatNetwork()
	if err != nil {
		return nil, nil, nil, err
	}
	pool, err := chataddr.NewPool(network)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open %s store at %s: %w", cfg.Storage.Driver, cfg.Storage.Path, err)
	}
	return state.NewDirectory(store, pool, state.WithLimits(cfg.Limits())), pool, store, nil
}

func runServe(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	defer logger.Global().Close()

	logger.Info("turingd %s starting", version)

	lock, err := lockStore(cfg, "serve")
	if err != nil {
		return err
	}
	defer releaseStore(lock)

	dir, pool, store, err := openDirectory(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close store: %v", err)
		}
	}()

	if err := dir.Restore(ctx); err != nil {
		return fmt.Errorf("failed to restore state: %w", err)
	}
	logger.Info("Restored %d users from %s store", dir.UserCount(), cfg.Storage.Driver)
	logger.Info("Chat addresses drawn from %s (%d available)", pool.Network(), pool.Capacity())

	collector := metrics.NewCollector(metrics.Namespace)
	collector.RegisterState(metrics.Namespace, dir, pool)

	codec, err := protocol.CodecByName(cfg.Protocol.Codec)
	if err != nil {
		return err
	}

	sockets := socketserver.NewServer(socketserver.Config{
		Listen:                   cfg.Server.Listen,
		MaxWorkers:               cfg.Server.MaxWorkers,
		MaxConnections:           cfg.Server.MaxConnections,
		ReleaseLocksOnDisconnect: cfg.Server.ReleaseLocksOnDisconnect,
		WriteTimeout:             cfg.Server.WriteTimeout,
		MaxFrameBytes:            cfg.Protocol.MaxFrameBytes,
		ChatPort:                 cfg.Chat.Port,
		Codec:                    codec,
	}, dir, collector)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sockets.Start(ctx); err != nil {
		return err
	}

	side := web.NewServer(web.Config{
		Listen:          cfg.HTTP.Listen,
		EnableWebsocket: cfg.HTTP.EnableWebsocket,
		EnableMetrics:   cfg.HTTP.EnableMetrics,
		EnablePprof:     cfg.HTTP.EnablePprof,
		MaxFrameBytes:   cfg.Protocol.MaxFrameBytes,
	}, dir, sockets, collector)
	if err := side.Start(); err != nil {
		_ = sockets.Stop()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sockets.Wait()
		cancel()
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		return side.Stop()
	})

	err = g.Wait()
	logger.Info("turingd stopped")
	return err
}
