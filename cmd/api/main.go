package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/payflow/payments/internal/bootstrap"
	"github.com/payflow/payments/internal/controller"
	infraRedis "github.com/payflow/payments/internal/infrastructure/redis"
	"github.com/payflow/payments/internal/repository/postgres"
	"github.com/payflow/payments/internal/service"
	"golang.org/x/sync/errgroup"
)

const serviceName = "payments-api"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, serviceName, "payments")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Repositories ---
	txnRepo := postgres.NewTransactionRepository(app.Pool)
	txManager := postgres.NewTxManager(app.Pool)

	// --- Services ---
	publisher, closePublisher := bootstrap.NewEventPublisher(app.Config.Events, app.Redis)
	defer func() {
		if err := closePublisher(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close event publisher")
		}
	}()

	providerFactory := bootstrap.NewProviderFactory(app.Config.Provider, app.Metrics, app.Logger)
	statusService := service.NewStatusService(txnRepo, txManager, publisher, app.Metrics, app.Logger)
	paymentService := service.NewPaymentService(
		txnRepo,
		statusService,
		providerFactory,
		infraRedis.NewLocker(app.Redis),
		app.Config.Payment.LockTTL,
		app.Metrics,
		app.Logger,
	)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		ServiceName:    serviceName,
		PaymentService: paymentService,
		HealthChecks: []controller.HealthCheck{
			controller.PostgresCheck(app.Pool),
			controller.RedisCheck(app.Redis),
		},
		Metrics:    app.Metrics,
		CORSConfig: app.Config.Server.CORS,
		Auth:       app.Config.Auth,
		RateLimit:  app.Config.RateLimit,
	})

	// --- HTTP server ---
	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().
			Str("addr", addr).
			Str("provider_mode", app.Config.Provider.Mode).
			Str("events_driver", app.Config.Events.Driver).
			Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server stopped with error")
	}
	app.Logger.Info().Msg("Server exited")
}
