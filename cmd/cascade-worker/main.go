// cascade-worker drains the cascade-retry topic. Every message is a
// pending booking that lost its slot to an approval but could not be
// denied in process; the worker denies it and notifies the owner.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spacebook/internal/bookings/lifecycle"
	bookingrepo "spacebook/internal/bookings/repository"
	"spacebook/internal/notify"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	"spacebook/pkg/kafka"
	kafkaconfig "spacebook/pkg/kafka/config"
	kafkamw "spacebook/pkg/kafka/middleware"
	"spacebook/pkg/lock"

	"github.com/spf13/pflag"
)

const ServiceName = "cascade-worker"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var groupID string
	var topic string
	var logNotices bool

	flagSet := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
	flagSet.StringVar(&topic, "topic", "", "cascade retry topic (default: KAFKA_CASCADE_RETRY_TOPIC)")
	flagSet.StringVar(&groupID, "group", "", "consumer group (default: KAFKA_CASCADE_WORKER_GROUP)")
	flagSet.BoolVar(&logNotices, "log-notices", false, "log auto-denial notices instead of publishing them")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg := config.Load(ServiceName)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.StorageBackend != config.BackendMongo {
		return fmt.Errorf("cascade worker needs shared storage, got storage backend %q", cfg.StorageBackend)
	}
	kcfg, err := kafkaconfig.Load()
	if err != nil {
		return fmt.Errorf("invalid Kafka configuration: %w", err)
	}
	if topic == "" {
		topic = kcfg.CascadeRetryTopic
	}
	if groupID == "" {
		groupID = kcfg.CascadeWorkerGroup
	}
	cfg.LogConfiguration()
	kcfg.LogConfiguration(cfg.Log)

	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	metrics := &kafkamw.Metrics{}
	defer metrics.Log(cfg.Log)

	var notifier notify.Notifier = notify.NewLogNotifier(cfg.Log)
	if !logNotices {
		producer, err := kafka.NewProducer(kcfg, kcfg.NotificationsTopic, "", cfg.Log)
		if err != nil {
			return fmt.Errorf("create notice producer: %w", err)
		}
		defer producer.Close()
		producer.Use(metrics.ProducerMiddleware())
		notifier = notify.NewKafkaNotifier(producer, ServiceName)
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Log, cfg.NotifyTimeout, notify.DefaultConcurrency)
	defer dispatcher.Close()

	engine := lifecycle.NewEngine(
		bookingrepo.NewMongoBookingRepository(cfg),
		lock.NewMongoLocker(cfg),
		clock.Real(),
		dispatcher,
		nil,
		cfg,
	)

	consumer, err := kafka.NewConsumer(kcfg, topic, groupID, kcfg.CascadeDLQTopic, engine.HandleCascadeMessage, cfg.Log)
	if err != nil {
		return fmt.Errorf("create cascade consumer: %w", err)
	}
	defer consumer.Close()
	if kcfg.EnableMiddleware {
		consumer.Use(kafkamw.LoggingConsumerMiddleware(cfg.Log))
	}
	consumer.Use(metrics.ConsumerMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Cascade worker started", "topic", topic, "group", groupID, "dlq", kcfg.CascadeDLQTopic)
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("consume %s: %w", topic, err)
	}
	cfg.Log.Info("Cascade worker stopped")
	return nil
}
