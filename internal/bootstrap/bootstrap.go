// Package bootstrap builds the process-wide dependencies shared by the
// server and worker binaries.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/assiworks/opening-registration/config"
	"github.com/assiworks/opening-registration/internal/store"
	"github.com/assiworks/opening-registration/internal/store/postgres"
	"github.com/assiworks/opening-registration/internal/store/sqlite"
	"github.com/assiworks/opening-registration/pkg/database"
)

// NewLogger returns the production JSON logger used by every binary.
func NewLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// OpenStore opens the configured registration store and applies migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.SQLitePath))
		return st, nil
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg.URL, database.PoolOptions{MaxConns: cfg.MaxConns}, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		names, _ := database.MigrationNames()
		logger.Info("migrations applied", zap.Strings("files", names))
		return postgres.NewRepository(pool), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
