// Package main запускает HTTP-сервер сервиса гросермарт.
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
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/grocermart-system/internal/config"
	"github.com/mmeshcher/grocermart-system/internal/handler"
	"github.com/mmeshcher/grocermart-system/internal/middleware"
	"github.com/mmeshcher/grocermart-system/internal/payment"
	"github.com/mmeshcher/grocermart-system/internal/push"
	"github.com/mmeshcher/grocermart-system/internal/repository"
	"github.com/mmeshcher/grocermart-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var pushClient *push.Client
	if cfg.PushGatewayAddress != "" {
		pushClient = push.NewClient(cfg.PushGatewayAddress)
	}

	var paymentClient *payment.Client
	if cfg.PaymentGatewayAddress != "" {
		paymentClient = payment.NewClient(cfg.PaymentGatewayAddress, cfg.PaymentSecret)
	}

	svc := service.NewService(repo, pushClient, paymentClient, logger)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой доставки push-уведомлений
	g.Go(func() error {
		svc.StartNotificationDispatch(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting grocermart server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
