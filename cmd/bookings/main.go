package main

import (
	"context"

	"spacebook/internal/availability/handler"
	availabilityservice "spacebook/internal/availability/service"
	bookinghandler "spacebook/internal/bookings/handler"
	"spacebook/internal/bookings/admission"
	"spacebook/internal/bookings/lifecycle"
	bookingrepo "spacebook/internal/bookings/repository"
	bookingservice "spacebook/internal/bookings/service"
	"spacebook/internal/bookings/validator"
	facilityhandler "spacebook/internal/facilities/handler"
	facilityrepo "spacebook/internal/facilities/repository"
	facilityservice "spacebook/internal/facilities/service"
	facilityvalidator "spacebook/internal/facilities/validator"
	holdhandler "spacebook/internal/holds/handler"
	holdrepo "spacebook/internal/holds/repository"
	holdservice "spacebook/internal/holds/service"
	"spacebook/internal/notify"
	"spacebook/pkg/app"
	"spacebook/pkg/clock"
	"spacebook/pkg/config"
	"spacebook/pkg/kafka"
	kafkaconfig "spacebook/pkg/kafka/config"
	kafkamw "spacebook/pkg/kafka/middleware"
	"spacebook/pkg/lock"
)

const ServiceName = "bookings"

type storage struct {
	bookings   bookingrepo.BookingRepository
	facilities facilityrepo.FacilityRepository
	locker     lock.Locker
}

type messaging struct {
	notifier  notify.Notifier
	retries   lifecycle.RetryQueue
	producers []*kafka.Producer
	metrics   *kafkamw.Metrics
}

func main() {
	cfg := config.Load(ServiceName)

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal("Invalid configuration", "error", err)
	}
	cfg.LogConfiguration()

	cfg.Log.Info("Starting Spacebook reservation service")
	clk := clock.Real()

	store := initStorage(cfg)
	holds := initHoldStore(cfg)
	msg := initMessaging(cfg)

	dispatcher := notify.NewDispatcher(msg.notifier, cfg.Log, cfg.NotifyTimeout, notify.DefaultConcurrency)
	engine := lifecycle.NewEngine(store.bookings, store.locker, clk, dispatcher, msg.retries, cfg)
	resolver := admission.NewResolver(store.bookings, store.facilities, clk, cfg)
	bookingValidator := validator.NewBookingValidator(cfg.Log)

	holdService := holdservice.NewHoldService(holds, store.facilities, store.bookings, bookingValidator, clk, cfg)
	bookingService := bookingservice.NewBookingService(
		store.bookings,
		resolver,
		engine,
		bookingValidator,
		store.locker,
		holdService,
		dispatcher,
		clk,
		cfg,
	)
	availabilityService := availabilityservice.NewAvailabilityService(store.facilities, store.bookings, holdService, engine, clk, cfg)
	facilityService := facilityservice.NewFacilityService(
		store.facilities,
		facilityvalidator.NewFacilityValidator(cfg.Log),
		store.locker,
		clk,
		cfg,
	)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		engine.RunSweeper(sweepCtx, cfg.ArrivalSweepInterval)
	}()

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		bookinghandler.NewBookingHandler(bookingService, cfg.Log),
		holdhandler.NewHoldHandler(holdService, cfg.Log),
		handler.NewAvailabilityHandler(availabilityService, cfg.Log),
		facilityhandler.NewFacilityHandler(facilityService, cfg.Log),
	)
	serverApp.OnShutdown(func(ctx context.Context) {
		stopSweeper()
		<-sweeperDone
		dispatcher.Close()
		for _, p := range msg.producers {
			if err := p.Close(); err != nil {
				cfg.Log.Error("Failed to close Kafka producer", "error", err)
			}
		}
		if msg.metrics != nil {
			msg.metrics.Log(cfg.Log)
		}
	})
	serverApp.Run()
}

func initStorage(cfg *config.Config) storage {
	if cfg.StorageBackend == config.BackendMemory {
		cfg.Log.Warn("Using in-memory storage, data is lost on restart")
		return storage{
			bookings:   bookingrepo.NewMemoryBookingRepository(),
			facilities: facilityrepo.NewMemoryFacilityRepository(),
			locker:     lock.NewMemoryLocker(),
		}
	}

	cfg.SetMongo()
	cfg.Log.Info("Storage initialized", "backend", cfg.StorageBackend, "database", cfg.MongoDatabaseName)
	return storage{
		bookings:   bookingrepo.NewMongoBookingRepository(cfg),
		facilities: facilityrepo.NewMongoFacilityRepository(cfg),
		locker:     lock.NewMongoLocker(cfg),
	}
}

func initHoldStore(cfg *config.Config) holdrepo.HoldStore {
	if cfg.HoldBackend == config.BackendMemory {
		return holdrepo.NewMemoryHoldStore()
	}
	cfg.SetRedis()
	cfg.Log.Info("Hold store initialized", "backend", cfg.HoldBackend, "addr", cfg.RedisAddr)
	return holdrepo.NewRedisHoldStore(cfg.Client.Redis)
}

func initMessaging(cfg *config.Config) messaging {
	if cfg.NotifyBackend != config.BackendKafka {
		return messaging{notifier: notify.NewLogNotifier(cfg.Log)}
	}

	kcfg, err := kafkaconfig.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)

	metrics := &kafkamw.Metrics{}
	newProducer := func(topic, dlq string) *kafka.Producer {
		p, err := kafka.NewProducer(kcfg, topic, dlq, cfg.Log)
		if err != nil {
			cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
		}
		if kcfg.EnableMiddleware {
			p.Use(kafkamw.LoggingProducerMiddleware(cfg.Log))
			p.Use(metrics.ProducerMiddleware())
		}
		return p
	}

	notices := newProducer(kcfg.NotificationsTopic, "")
	retries := newProducer(kcfg.CascadeRetryTopic, kcfg.CascadeDLQTopic)
	return messaging{
		notifier:  notify.NewKafkaNotifier(notices, ServiceName),
		retries:   lifecycle.NewKafkaRetryQueue(retries, ServiceName),
		producers: []*kafka.Producer{notices, retries},
		metrics:   metrics,
	}
}
