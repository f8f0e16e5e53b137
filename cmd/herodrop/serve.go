package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/herodrop/rewards-service/internal/api"
	"github.com/herodrop/rewards-service/internal/app"
	"github.com/herodrop/rewards-service/internal/domain"
	"github.com/herodrop/rewards-service/pkg/rabbitmq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, donation-event consumer and reminder scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET must be configured")
	}
	logger.Info("starting rewards service", zap.String("port", cfg.ServerPort), zap.String("store", cfg.StoreDriver))

	c, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.close()

	if cfg.RabbitMQURL != "" {
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL, logger)
		if err != nil {
			logger.Warn("rabbitmq consumer unavailable; donation events will not be processed", zap.Error(err))
		} else {
			defer consumer.Close()
			bindings := map[string]rabbitmq.Handler{
				domain.EventDonationRecorded: c.services.Pledges.HandleDonationRecorded,
			}
			if err := consumer.ConsumeWithBindings(ctx, cfg.EventExchange, cfg.DonationEventQueue, bindings); err != nil {
				return fmt.Errorf("start donation consumer: %w", err)
			}
			logger.Info("donation consumer started", zap.String("queue", cfg.DonationEventQueue))
		}
	}

	scheduler := app.NewScheduler(c.reminder, c.sweeper, app.Schedules{
		Reminders: cfg.ReminderSchedule,
		HoldSweep: cfg.HoldSweepSchedule,
	}, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	router := api.NewRouter(api.NewHandlers(c.services, logger), api.RouterConfig{
		JWTSecret:            cfg.JWTSecret,
		JWTIssuer:            cfg.JWTIssuer,
		AllowedOrigins:       cfg.AllowedOrigins,
		Limiter:              c.limiter,
		PromptLimitPerMinute: cfg.PromptRateLimitPerMinute,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			<-scheduler.Stop().Done()
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutdown started")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduler did not stop before the shutdown deadline")
	}
	logger.Info("shutdown complete")
	return nil
}
