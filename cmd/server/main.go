package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/app"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/config"
	"github.com/whart-vanterra/vanterra-reporting-sub001/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no logger yet
		panic(err)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize app", zap.Error(err))
	}

	go func() {
		if err := application.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	log.Info("gateway started",
		zap.String("addr", cfg.Address()),
		zap.String("provider", cfg.Auth.Provider),
	)

	<-ctx.Done() // wait for Ctrl+C

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.HTTP.ShutdownTimeout,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Fatal("graceful shutdown failed", zap.Error(err))
	}

	log.Info("gateway stopped cleanly")
}
