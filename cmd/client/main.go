package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/alignment-sync/internal/client"
	"github.com/DoyleJ11/alignment-sync/internal/config"
	"github.com/DoyleJ11/alignment-sync/internal/httpapi"
	"github.com/DoyleJ11/alignment-sync/internal/hub"
	"github.com/DoyleJ11/alignment-sync/internal/logging"
	"github.com/DoyleJ11/alignment-sync/internal/session"
	"github.com/DoyleJ11/alignment-sync/internal/transport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("exiting", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.New(ctx, cfg.Client(), client.WithLogger(logger))
	if err != nil {
		return err
	}
	unsubscribe := c.OnConnectionStateChange(func(s transport.ConnectionState) {
		logger.Info("connection state",
			zap.Bool("connected", s.IsConnected),
			zap.Bool("reconnecting", s.IsReconnecting),
			zap.String("last_error", s.LastError))
	})
	defer unsubscribe()

	// The hub outlives ctx so Shutdown can still close the client.
	h := hub.NewHub(context.Background(), logger.Named("hub"))
	key := cfg.GameID
	if key == "" {
		key = "local"
	}
	if err := h.Register(ctx, key, c); err != nil {
		_ = c.Close()
		return err
	}

	c.Start(ctx)
	if err := login(ctx, c, cfg); err != nil {
		_ = h.Shutdown(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:              cfg.StatusAddr,
		Handler:           httpapi.SetupRoutes(h, logger.Named("http")),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("status server listening", zap.String("addr", cfg.StatusAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return multierr.Combine(srv.Shutdown(shutdownCtx), h.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

// login logs the configured player in and, when a full identity is
// configured, joins its game so the client connects.
func login(ctx context.Context, c *client.Client, cfg config.Config) error {
	if _, err := c.Dispatch(ctx, session.Action{Type: session.ActionLogin, PlayerName: cfg.PlayerName}); err != nil {
		return err
	}
	id := cfg.Identity()
	if !id.Complete() {
		return nil
	}
	_, err := c.Dispatch(ctx, session.Action{Type: session.ActionJoinLobby, Identity: id})
	return err
}
