package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Aidin1998/swapdesk/internal/config"
	"github.com/Aidin1998/swapdesk/internal/repository"
	"github.com/Aidin1998/swapdesk/internal/server"
	"github.com/Aidin1998/swapdesk/internal/trade"
	"github.com/Aidin1998/swapdesk/internal/ws"
	"github.com/Aidin1998/swapdesk/pkg/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.LoadConfig(os.Getenv("SWAPDESK_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		zapLogger.Fatal("Failed to open item repository database", zap.Error(err))
	}

	repo, err := repository.NewGormRepository(zapLogger, db)
	if err != nil {
		zapLogger.Fatal("Failed to create item repository", zap.Error(err))
	}

	hub := ws.NewHub(zapLogger)
	registry := trade.NewRegistry(zapLogger)
	engine := trade.NewEngine(zapLogger, repo, registry, hub, trade.Options{
		SessionTTL:   cfg.Session.TTL,
		BulkAddLimit: cfg.Session.BulkAddLimit,
	})

	supervisor := trade.NewSupervisor(zapLogger, registry, engine, cfg.Session.SweepInterval)
	supervisor.Start()

	srv := server.NewServer(zapLogger, engine, hub)
	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down")

	supervisor.Stop()
	hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zapLogger.Error("HTTP server shutdown failed", zap.Error(err))
	}
}
