// Package main runs the TrailMeet HTTP server with the live chat feed and graceful shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trailmeet/backend/config"
	"github.com/trailmeet/backend/internal/auth"
	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/internal/realtime"
	"github.com/trailmeet/backend/internal/store"
	"github.com/trailmeet/backend/internal/store/memory"
	"github.com/trailmeet/backend/internal/store/mongodb"
	"github.com/trailmeet/backend/internal/store/postgres"
	"github.com/trailmeet/backend/pkg/database"
	"github.com/trailmeet/backend/pkg/redis"
)

func main() {
	level := zap.NewAtomicLevel()
	logger := newLogger(level)
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logger.Warn("invalid LOG_LEVEL, using info", zap.String("level", cfg.LogLevel))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	logger.Info("store ready", zap.String("driver", cfg.Store.Driver))

	var hub *realtime.Hub
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, pubsub, pubsub)
	} else {
		logger.Info("redis disabled, live chat is local to this instance")
		hub = realtime.NewHub(logger, nil, nil)
	}
	hub.SetPresenceHandler(func(eventID string, count int) {
		logger.Debug("chat presence", zap.String("event_id", eventID), zap.Int("online", count))
	})

	sessions := auth.NewService(st.Users, auth.NewTokenIssuer(cfg.Session.Secret), auth.Identity{
		Email:   cfg.DemoUser.Email,
		Name:    cfg.DemoUser.Name,
		Picture: cfg.DemoUser.Picture,
	}, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.PerMinute > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
		go limiter.Run(ctx, 10*time.Minute)
	}

	router, err := newRouter(routerDeps{
		store:       st,
		sessions:    sessions,
		hub:         hub,
		limiter:     limiter,
		corsOrigins: cfg.Server.CORSOrigins,
		proxies:     cfg.Server.TrustedProxies,
		logger:      logger,
	})
	if err != nil {
		logger.Fatal("router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if st.Close != nil {
		if err := st.Close(shutdownCtx); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	logger.Info("server stopped")
}

// openStore connects the configured backend. Mongo index failures are logged and ignored;
// Postgres migrations must succeed.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*store.Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.Store.Driver {
	case config.DriverMongo:
		db, err := database.NewMongoDatabase(connectCtx, cfg.Store.MongoURL, cfg.Store.DBName, logger)
		if err != nil {
			return nil, err
		}
		if err := mongodb.EnsureIndexes(connectCtx, db); err != nil {
			logger.Warn("create indexes", zap.Error(err))
		}
		return mongodb.New(db), nil
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(connectCtx, cfg.Store.PostgresURL, cfg.Store.PostgresPool, logger)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(connectCtx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return postgres.New(pool), nil
	case config.DriverMemory:
		logger.Warn("memory store: data is lost on restart")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

func newLogger(level zap.AtomicLevel) *zap.Logger {
	config := zap.NewProductionConfig()
	config.Level = level
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
