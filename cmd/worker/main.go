// Package main runs the background email retry worker.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/config"
	"github.com/assiworks/opening-registration/internal/bootstrap"
	"github.com/assiworks/opening-registration/internal/notify"
	"github.com/assiworks/opening-registration/internal/registrations"
	"github.com/assiworks/opening-registration/internal/worker"
	"github.com/assiworks/opening-registration/pkg/queue"
	"github.com/assiworks/opening-registration/pkg/redis"
)

func main() {
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if !cfg.Redis.Enabled() {
		logger.Fatal("REDIS_ADDR is required for the worker")
	}

	ctx := context.Background()
	st, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer st.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.NewHTTPSender(
		notify.BuildPolicy(cfg.Email.BaseURL, cfg.Email.Paths, cfg.Email.Senders()),
		&http.Client{},
		cfg.Email.Timeout,
		logger,
	)
	// Retries are not re-queued by the service; the processor owns backoff.
	svc := registrations.NewService(st, notifier, nil, registrations.Options{
		Event: notify.Event{
			Title:       cfg.Event.Title,
			Description: cfg.Event.Description,
			Location:    cfg.Event.Location,
			Dates:       cfg.Event.Dates,
			Timezone:    cfg.Event.Timezone,
		},
		StoreTimeout: cfg.Database.StoreTimeout,
	}, logger)
	processor := worker.NewEmailProcessor(jobQueue, svc, worker.Options{}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("queue", queue.QueueEmails))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}
