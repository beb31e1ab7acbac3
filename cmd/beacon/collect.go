package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/formbeacon/internal/api"
)

func collectCmd() *cobra.Command {
	var (
		addr   string
		dbPath string
		debug  bool
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a local collector for beacon events",
		Long: `Collect accepts the envelopes the beacon posts (POST /v1/collect), stores
each dedupe key once in SQLite and lists them back (GET /v1/events).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd.Context(), addr, dbPath, debug)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8123", "HTTP listen address")
	cmd.Flags().StringVar(&dbPath, "db", "events.db", "SQLite database path (empty for in-memory)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Log every request")
	return cmd
}

func runCollect(ctx context.Context, addr, dbPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store, err := api.OpenEventStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(store, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		logger.Info("collector starting", "addr", addr, "db", dbPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
		close(errC)
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down…")

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
