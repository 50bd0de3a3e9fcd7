// Command worker consumes storage notifications for queued lookup requests,
// runs each lookup, archives the report and publishes the outcome.
package main

import (
	"context"
	"os"

	"go.uber.org/zap"

	"urbanlens/internal/app"
	"urbanlens/internal/config"
	"urbanlens/internal/env"
	"urbanlens/internal/keys"
	"urbanlens/internal/service"
	"urbanlens/models"
	"urbanlens/pkg/graceful"
	"urbanlens/pkg/kafkaclient"
)

func main() {
	if err := run(); err != nil {
		zap.L().Error("worker failed", zap.Error(err))
		_ = zap.L().Sync()
		os.Exit(1)
	}
	_ = zap.L().Sync()
}

func run() error {
	loaded, err := env.LoadEnv()
	if err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		return err
	}
	if !loaded {
		zap.L().Info("no .env file found, assuming environment variables are set directly")
	}
	if err := cfg.Validate("worker"); err != nil {
		return err
	}

	ctx, cancel := graceful.Context(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	zap.L().Info("connecting to kafka",
		zap.Strings("brokers", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID))

	consumer := kafkaclient.NewKafkaConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID)
	defer consumer.Stop()

	h := &handler{lookups: a.Lookup}
	if cfg.Kafka.ResultsTopic != "" {
		publisher := kafkaclient.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic)
		defer publisher.Close()
		h.results = publisher
	}

	consumer.StartConsuming(ctx)
	iterator := service.NewIterator[*models.LookupRequest](consumer, a.Storage.GetRequest).WithKeyFilter(keys.IsRequest)

	processed := 0
	for obj := range iterator.Objects(ctx) {
		h.handle(ctx, *obj.Data)
		if ctx.Err() != nil {
			// Leave the interrupted request uncommitted so it is redelivered.
			break
		}
		if err := obj.Commit(ctx); err != nil {
			zap.L().Warn("failed to commit request", zap.String("key", obj.Key), zap.Error(err))
		}
		processed++
	}

	zap.L().Info("worker finished", zap.Int("processed", processed))
	return nil
}

