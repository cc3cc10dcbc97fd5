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

	"ambient-novel/internal/app"
	"ambient-novel/internal/config"
	deliveryhttp "ambient-novel/internal/delivery/http"
	"ambient-novel/internal/delivery/websocket"
	"ambient-novel/internal/logger"
	"ambient-novel/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env для локальной разработки, если есть
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logger())
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)
	log.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	application, err := app.Build(ctx, cfg, log)
	cancel()
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	sessions := session.NewManager(application.Deps, cfg.SessionIdleTTL)
	hub := websocket.NewHub(cfg.CORSAllowedOrigins, log)
	hub.Start()

	handler := deliveryhttp.NewHandler(deliveryhttp.Deps{
		Sessions:     sessions,
		Scenes:       application.Story,
		Playthroughs: application.Playthroughs,
		Preferences:  application.Preferences,
		Hub:          hub,
		StreamChunk:  100 * time.Millisecond,
		Logger:       log,
	})

	gin.SetMode(gin.ReleaseMode)
	router := deliveryhttp.NewRouter(handler, deliveryhttp.RouterConfig{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		NarrationDir:   cfg.NarrationDir,
	}, log)

	// WriteTimeout не задан: websocket и WAV поток живут долго
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server listen error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	hub.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	sessions.Close()

	log.Info("Server exiting")
}
