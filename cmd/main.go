package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/config"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/auth"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/connection"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/deliveredset"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/delivery"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/dispatch"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/fetcher"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/handlers"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/hub"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/kafka"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/logging"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/middleware"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/internal/presence"
	redisclient "github.com/CDeX-Labs/CDeX-Balloon-Service/internal/redis"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/contest"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/protocol"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	devMode := flag.Bool("dev", false, "load .env from the working directory")
	flag.Parse()

	cfg, err := config.Load(*devMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger, logCloser := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Pretty: cfg.Log.Pretty || *devMode,
		File:   cfg.Log.File,
		App:    cfg.App.Name,
	})
	defer logCloser.Close()

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Service stopped with error")
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	var rdb *redisclient.Client
	if cfg.Store.Backend == deliveredset.BackendRedis || cfg.Redis.SyncEnabled {
		var err error
		rdb, err = redisclient.NewClient(ctx, redisclient.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, m, logger)
		if err != nil {
			return err
		}
		defer rdb.Close()
	}

	backend, err := deliveredset.Open(ctx, deliveredset.Config{
		Backend:     cfg.Store.Backend,
		SQLitePath:  cfg.Store.SQLitePath,
		DatabaseURL: cfg.Store.DatabaseURL,
		RedisKey:    cfg.Redis.DeliveredKey,
	}, rdb, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	var (
		h     *hub.Hub
		store *delivery.Store
	)
	notify := func(message string) {
		h.Notify("error", message)
	}

	// print and notify sinks
	var sinks []dispatch.Sink
	if cfg.Print.WebhookURL != "" {
		sinks = append(sinks, dispatch.NewWebhookSink(cfg.Print.WebhookURL, cfg.Print.Timeout))
	}
	if cfg.KafkaEnabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.DeliveredTopic, logger)
		defer producer.Close()
		sinks = append(sinks, producer)
	}

	instanceID := uuid.New().String()[:8]
	var pubsub *redisclient.PubSub
	if rdb != nil && cfg.Redis.SyncEnabled {
		pubsub = redisclient.NewPubSub(rdb, func(envelope *redisclient.Envelope) {
			if envelope.Cleared() {
				store.ApplyRemoteCleared()
				return
			}
			store.ApplyRemoteDelivered(envelope.Event.Key, envelope.Event.DeliveredAt)
		}, logger)
		instanceID = pubsub.InstanceID()
		sinks = append(sinks, pubsub)
	}

	dispatcher := dispatch.New(sinks, dispatch.Options{
		SendTimeout: cfg.Print.Timeout,
		Recorder:    m,
		Notify:      notify,
	}, logger)

	store = delivery.NewStore(delivery.Options{
		Set: backend,
		Listener: &storeListener{
			dispatcher: dispatcher,
			pubsub:     pubsub,
			metrics:    m,
			timeout:    cfg.Print.Timeout,
			logger:     logger,
		},
		RecentLimit: cfg.Board.RecentLimit,
		Logger:      logger,
	})
	if err := store.Load(ctx); err != nil {
		return err
	}

	h = hub.NewHub(hub.CommandsFunc(func(ctx context.Context, id string) (interface{}, bool, error) {
		record, ok, err := store.MarkDelivered(ctx, id)
		return record, ok, err
	}), m, logger)

	store.OnChange(func(board delivery.Board) {
		h.BroadcastType(protocol.MsgBoard, board)
		m.SetDeliveries(countByStatus(store.Deliveries()))
	})

	var runners *presence.Manager
	if rdb != nil {
		runners = presence.NewManager(rdb, instanceID, logger)
		h.OnLeave(func(c *hub.Client) {
			if err := runners.SetOffline(context.Background(), c.UserID); err != nil {
				logger.Warn().Err(err).Str("userId", c.UserID).Msg("Failed to clear presence")
			}
		})
	}

	contestClient := fetcher.NewClient(fetcher.Config{
		URL:      cfg.Contest.URL,
		User:     cfg.Contest.User,
		Password: cfg.Contest.Password,
		Token:    cfg.Contest.Token,
		Timeout:  cfg.Contest.FetchTimeout,
	})

	scheduler := connection.NewScheduler(instrument(contestClient, m), func(snapshot *contest.Snapshot) {
		store.Apply(snapshot)
	}, connection.Config{
		PollInterval: cfg.Contest.PollInterval,
		FetchTimeout: cfg.Contest.FetchTimeout,
		Policy: connection.Policy{
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			MaxAttempts: cfg.Retry.MaxAttempts,
		},
	}, logger)

	phases := make([]string, 0, len(connection.Phases))
	for _, p := range connection.Phases {
		phases = append(phases, string(p))
	}
	scheduler.OnTransition(func(state connection.State) {
		m.SetConnectionPhase(string(state.Phase), phases)
		h.BroadcastType(protocol.MsgConnection, state)
		if state.Phase == connection.PhaseFailed {
			h.Notify("error", "Contest data unavailable, reconnect manually")
		}
	})

	limiter := middleware.NewRateLimiter(cfg.Auth.RateLimitMax, cfg.Auth.RateLimitWindow, logger)
	go limiter.Run(ctx)
	go h.Run(ctx)

	// detached so queued prints still go out while shutting down
	dispatcher.Start(context.Background())
	defer dispatcher.Stop()

	if pubsub != nil {
		if err := pubsub.Start(); err != nil {
			return err
		}
		defer pubsub.Stop()
	}

	if cfg.KafkaEnabled() {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, []string{cfg.Kafka.PrintResultTopic}, m, logger)
		kafka.NewHandlers(notify, logger).RegisterAll(consumer, cfg.Kafka.PrintResultTopic)
		consumer.Start()
		defer consumer.Stop()
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	var wsPresence handlers.Presence
	if runners != nil {
		wsPresence = runners
	}
	api := handlers.NewAPI(handlers.Deps{
		Deliveries: store,
		Connection: scheduler,
		Validator:  auth.NewJWTValidator(cfg.Auth.JWTSecret),
		Limiter:    limiter,
		Failures:   m,
		Gatherer:   prometheus.DefaultGatherer,
		WebSocket:  handlers.NewWebSocketHandler(h, store.Board, wsPresence, logger),
		Clients:    h.ClientCount,
	}, logger)

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.App.Port).Msg("Server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// instrument records fetch latency and outcome for every poll.
func instrument(f connection.Fetcher, m *metrics.Metrics) connection.Fetcher {
	return connection.FetcherFunc(func(ctx context.Context) (*contest.Snapshot, error) {
		start := time.Now()
		snapshot, err := f.Fetch(ctx)
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.ObserveSnapshot(status, time.Since(start).Seconds())
		return snapshot, err
	})
}

func countByStatus(records []delivery.Record) map[string]int {
	counts := map[string]int{
		string(delivery.StatusPending):   0,
		string(delivery.StatusAssigned):  0,
		string(delivery.StatusDelivered): 0,
		string(delivery.StatusConfirmed): 0,
	}
	for _, r := range records {
		counts[string(r.Status)]++
	}
	return counts
}

// storeListener forwards store events to the dispatcher and peer instances.
type storeListener struct {
	dispatcher *dispatch.Dispatcher
	pubsub     *redisclient.PubSub
	metrics    *metrics.Metrics
	timeout    time.Duration
	logger     zerolog.Logger
}

func (l *storeListener) Delivered(event events.DeliveredEvent) {
	l.metrics.IncMarks()
	l.dispatcher.Delivered(event)
}

func (l *storeListener) Cleared() {
	if l.pubsub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	if err := l.pubsub.PublishCleared(ctx); err != nil {
		l.logger.Error().Err(err).Msg("Failed to tell peers about clear")
	}
}
