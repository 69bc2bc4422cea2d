package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dice-room-backend/internal/config"
	"github.com/DoyleJ11/dice-room-backend/internal/httpapi"
	"github.com/DoyleJ11/dice-room-backend/internal/hub"
	"github.com/DoyleJ11/dice-room-backend/internal/logging"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
	"github.com/DoyleJ11/dice-room-backend/internal/scheduler"
	"github.com/DoyleJ11/dice-room-backend/internal/store"
	"github.com/DoyleJ11/dice-room-backend/internal/store/memory"
	"github.com/DoyleJ11/dice-room-backend/internal/store/postgres"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, st.Close()) }()

	defaults := cfg.Settings()
	svc := room.NewService(st, log,
		room.WithDefaults(defaults),
		room.WithCommitRetries(cfg.CommitMaxRetries),
		room.WithClaimRetries(cfg.ClaimMaxRetries),
	)
	h := hub.NewHub(ctx, st, log)
	sched := scheduler.New(st, svc, cfg.SchedulerInterval, cfg.SchedulerConcurrency, log)

	// Build the router *with* the service and hub injected
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.SetupRoutes(svc, h, defaults, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		select {
		case h.Inbox() <- hub.ShutdownHub{}:
		case <-h.Done():
		}
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (store.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, rooms live in memory only")
		return memory.New(), nil
	}
	return postgres.Open(ctx, cfg.DatabaseURL, log)
}
