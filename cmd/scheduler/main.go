package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	r "github.com/redis/go-redis/v9"

	"github.com/you/courseq/internal/config"
	"github.com/you/courseq/internal/processor"
	"github.com/you/courseq/internal/queue"
	"github.com/you/courseq/internal/scheduler"
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

	if cfg.ProcessorURL == "" {
		logger.Fatalw("PROCESSOR_URL is required for the scheduler")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN)
	if err != nil {
		logger.Fatalw("open postgres", "error", err)
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	store := storage.New(db)
	signals := queue.New(rdb)
	invoker := processor.NewInvoker(cfg.ProcessorURL, &http.Client{}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewWithContext(ctx, store, invoker, signals, scheduler.Config{
		Interval:         cfg.TickInterval,
		ProcessorTimeout: cfg.ProcessorTimeout,
	}, logger)

	sched.Start()
	<-ctx.Done()
	sched.Stop()
}
