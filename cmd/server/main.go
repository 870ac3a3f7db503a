// Package main runs the registration HTTP API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/config"
	"github.com/assiworks/opening-registration/internal/admin"
	"github.com/assiworks/opening-registration/internal/bootstrap"
	"github.com/assiworks/opening-registration/internal/content"
	"github.com/assiworks/opening-registration/internal/emaillogs"
	"github.com/assiworks/opening-registration/internal/middleware"
	"github.com/assiworks/opening-registration/internal/notify"
	"github.com/assiworks/opening-registration/internal/registrations"
	"github.com/assiworks/opening-registration/internal/seats"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/pkg/queue"
	"github.com/assiworks/opening-registration/pkg/redis"
	"github.com/assiworks/opening-registration/pkg/response"
	"github.com/assiworks/opening-registration/pkg/storage"
)

func main() {
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx := context.Background()
	st, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer st.Close()

	// Email retry queue is optional; without Redis a failed send is only logged.
	var (
		emailQueue registrations.EmailQueue
		rdb        *redis.Client
	)
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		emailQueue = queue.NewQueue(rdb.Client, logger)
	} else {
		logger.Warn("REDIS_ADDR not set; failed emails will not be retried")
	}

	gin.SetMode(gin.ReleaseMode)
	contentSource, err := newContentSource(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("content source", zap.Error(err))
	}
	logger.Info("copy deck source", zap.String("source", contentSource.Describe()))

	notifier := notify.NewHTTPSender(
		notify.BuildPolicy(cfg.Email.BaseURL, cfg.Email.Paths, cfg.Email.Senders()),
		&http.Client{},
		cfg.Email.Timeout,
		logger,
	)

	seatSvc := seats.NewService(st, cfg.Event.Capacity, cfg.Event.SeatCacheTTL, logger)
	regSvc := registrations.NewService(st, notifier, emailQueue, registrations.Options{
		Event: notify.Event{
			Title:       cfg.Event.Title,
			Description: cfg.Event.Description,
			Location:    cfg.Event.Location,
			Dates:       cfg.Event.Dates,
			Timezone:    cfg.Event.Timezone,
		},
		StoreTimeout: cfg.Database.StoreTimeout,
		OnChange:     seatSvc.Invalidate,
	}, logger)
	adminSvc := admin.NewService(st, admin.Options{
		StoreTimeout: cfg.Database.StoreTimeout,
		Location:     cfg.Event.Zone(),
		OnChange:     seatSvc.Invalidate,
	}, logger)

	router := newRouter(cfg, services{
		store:         st,
		redis:         rdb,
		registrations: regSvc,
		seats:         seatSvc,
		admin:         adminSvc,
		content:       contentSource,
	}, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// services are the dependencies newRouter mounts.
type services struct {
	store         store.Store
	redis         *redis.Client // nil when the queue is disabled
	registrations *registrations.Service
	seats         *seats.Service
	admin         *admin.Service
	content       content.Source
}

func newRouter(cfg *config.Config, svc services, logger *zap.Logger) *gin.Engine {
	registrationHandler := registrations.NewHandler(svc.registrations, cfg.Server.PublicBaseURL, logger)
	seatHandler := seats.NewHandler(svc.seats, logger)
	contentHandler := content.NewHandler(svc.content, logger)
	adminHandler := admin.NewHandler(svc.admin, logger)
	emailLogsHandler := emaillogs.NewHandler(svc.store, svc.registrations, cfg.Server.PublicBaseURL, logger)

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())
	router.NoRoute(func(c *gin.Context) { response.NotFound(c, "not found") })
	router.NoMethod(func(c *gin.Context) { response.MethodNotAllowed(c) })

	router.GET("/health", healthHandler(svc.store, svc.redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Public
	limited := middleware.RateLimit(cfg.RateLimit.PublicRequests, cfg.RateLimit.Window)
	router.POST("/register", limited, registrationHandler.Register)
	router.GET("/cancel", registrationHandler.CancelStatus)
	router.POST("/cancel", limited, registrationHandler.Cancel)
	router.GET("/seat-status", seatHandler.Status)
	router.GET("/content", contentHandler.Get)

	// Admin (x-admin-token)
	adminGroup := router.Group("")
	adminGroup.Use(middleware.AdminAuth(middleware.AdminAuthConfig{
		Token:         cfg.Admin.Token,
		TokenHash:     cfg.Admin.TokenHash,
		MaxFailures:   cfg.Admin.MaxFailures,
		FailureWindow: cfg.Admin.FailureWindow,
	}, logger))
	{
		adminGroup.GET("/registrations", adminHandler.List)
		adminGroup.DELETE("/registrations", adminHandler.Delete)
		adminGroup.GET("/registrations/summary", adminHandler.Summary)
		adminGroup.GET("/email-logs", emailLogsHandler.List)
		adminGroup.POST("/email-logs/resend", emailLogsHandler.Resend)
		adminGroup.PUT("/content", contentHandler.Put)
	}
	return router
}

func newContentSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (content.Source, error) {
	if !cfg.AWS.ContentFromS3() {
		return content.FileSource{Path: cfg.Content.File, ReadOnly: cfg.Content.ReadOnly}, nil
	}
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:          cfg.AWS.Region,
		AccessKeyID:     cfg.AWS.AccessKeyID,
		SecretAccessKey: cfg.AWS.SecretAccessKey,
		Endpoint:        cfg.AWS.Endpoint,
	}, logger)
	if err != nil {
		return nil, err
	}
	return content.S3Source{Store: s3Client, Bucket: cfg.AWS.ContentBucket, Key: cfg.AWS.ContentKey}, nil
}

// healthHandler reports store and queue reachability. The queue is optional,
// so a missing or failing Redis only degrades the report.
func healthHandler(st store.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			response.Fail(c, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		queueState := "disabled"
		if rdb != nil {
			queueState = "ok"
			if err := rdb.Healthy(ctx); err != nil {
				queueState = "unavailable"
			}
		}
		response.OK(c, gin.H{"status": "ok", "store": "ok", "queue": queueState})
	}
}
