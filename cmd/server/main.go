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

	handler "buy-log-backend/api"
	"buy-log-backend/pkg/config"
	"buy-log-backend/pkg/database"
	"buy-log-backend/pkg/groups"
	"buy-log-backend/pkg/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ Server error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.GetDatabase(handler.DatabaseConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.CloseDatabase()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := tasks.NewScheduler()
	scheduler.AddTask(tasks.CleanupInvitesTask(groups.NewService(db), cfg.InviteTTL, cfg.InviteCleanupInterval))
	scheduler.Start(ctx)
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.NewRouter(cfg, db),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("🚀 Listening on :%s (%s)\n", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	fmt.Printf("🔄 Shutting down...\n")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
