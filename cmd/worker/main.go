package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/payflow/payments/internal/bootstrap"
	"github.com/payflow/payments/internal/infrastructure/kafka"
	infraRedis "github.com/payflow/payments/internal/infrastructure/redis"
	"github.com/payflow/payments/internal/relay"
	"golang.org/x/sync/errgroup"
)

// The worker relays transaction status events from the Redis stream to Kafka.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "payments-worker", "payments_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	eventsCfg := app.Config.Events
	if len(eventsCfg.KafkaBrokers) == 0 {
		app.Logger.Error().Msg("events.kafka_brokers is required to run the relay")
		return
	}

	publisher := kafka.NewPublisher(kafka.NewWriter(eventsCfg.KafkaBrokers, eventsCfg.KafkaTopic))
	defer func() {
		if err := publisher.Close(); err != nil {
			app.Logger.Warn().Err(err).Msg("Failed to close kafka writer")
		}
	}()

	workerCfg := app.Config.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.TransactionStream,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
		workerCfg.ClaimMinIdle,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
		return
	}

	app.Logger.Info().
		Str("stream", infraRedis.TransactionStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Str("topic", eventsCfg.KafkaTopic).
		Msg("Worker started, relaying status events")

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relay.New(consumer, publisher, app.Metrics, app.Logger).Run(gCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
