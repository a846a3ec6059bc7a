// main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariebrainware/ltt-bedboard/board"
	"github.com/ariebrainware/ltt-bedboard/config"
	"github.com/ariebrainware/ltt-bedboard/endpoint"
	"github.com/ariebrainware/ltt-bedboard/localcache"
	"github.com/ariebrainware/ltt-bedboard/middleware"
	"github.com/ariebrainware/ltt-bedboard/util"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Load the configuration
	cfg := config.LoadConfig()

	logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.AppName)
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	util.SetJWTSecret(cfg.JWTSecret)

	db, err := config.ConnectMySQL()
	if err != nil {
		logger.Fatal("Error connecting to MySQL", zap.Error(err))
	}
	if err := board.Migrate(db); err != nil {
		logger.Fatal("Error migrating database", zap.Error(err))
	}

	rdb, err := config.ConnectRedisWith(cfg)
	if err != nil {
		logger.Warn("Redis unavailable, running without change feed", zap.Error(err))
	}

	util.SetBoardLogger(logger)
	util.SetBoardLoggerDB(db)

	cache, err := localcache.Open(cfg.LocalCachePath, logger)
	if err != nil {
		logger.Warn("Local cache unavailable", zap.String("path", cfg.LocalCachePath), zap.Error(err))
		cache = nil
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	b, err := board.New(board.Options{
		DB:             db,
		Redis:          rdb,
		Cache:          cache,
		DeviceID:       cfg.DeviceID,
		BedCount:       cfg.BedCount,
		TickInterval:   cfg.TickInterval,
		StaleAfter:     cfg.StaleAfter,
		ResyncInterval: cfg.ResyncInterval,
		PollInterval:   cfg.PollInterval,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("Error creating board", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := b.Start(ctx); err != nil {
		logger.Fatal("Error starting board", zap.Error(err))
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Board stopped", zap.Error(err))
		}
	}()

	// Set Gin mode from config
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	endpoint.RegisterRoutes(router, b, cfg.AppName, middleware.RateLimitConfig{})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.AppPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("error starting server", zap.Error(err))
		}
	}()
	logger.Info("Bed board listening", zap.String("addr", srv.Addr), zap.String("device_id", cfg.DeviceID))

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown", zap.Error(err))
	}
	<-done
}
