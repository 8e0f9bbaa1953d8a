package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ast-secret/inboxcore/internal/config"
	"github.com/ast-secret/inboxcore/internal/devserver"
	"github.com/ast-secret/inboxcore/internal/observability"
)

func main() {
	cfg := config.Load()

	observability.InitLogger("astsecretd")
	log := observability.Log

	srv := devserver.NewServer(devserver.Options{})
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: srv.Router("astsecretd"),
	}

	ctx, cancel := setupSignalHandler(log)
	defer cancel()

	go func() {
		log.Info("astsecretd listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
}

func setupSignalHandler(log *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-ch
		log.Info("signal received", zap.String("signal", sig.String()))
		cancel()
	}()
	return ctx, cancel
}
