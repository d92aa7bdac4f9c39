package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	r "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/you/courseq/internal/capture"
	"github.com/you/courseq/internal/config"
	"github.com/you/courseq/internal/httpapi"
	"github.com/you/courseq/internal/queue"
	"github.com/you/courseq/internal/resume"
	"github.com/you/courseq/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Fatalw("open postgres", "error", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, cfg.MigrationsDir); err != nil {
		logger.Fatalw("migrate", "error", err)
	}

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	store := storage.New(db)
	q := queue.New(rdb)
	merger := capture.New(store, cfg.CaptureMaxRetries, logger)
	coordinator := resume.New(store, logger)
	api := httpapi.NewServer(store, merger, coordinator, q, logger)

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infow("api listening", "addr", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalw("api exited", "error", err)
	}
}
