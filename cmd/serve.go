package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"rentledger/internal/api"
	"rentledger/internal/auth"
	"rentledger/internal/blob"
	"rentledger/internal/config"
	"rentledger/internal/consumer"
	"rentledger/internal/ledger"
	"rentledger/internal/logging"
	"rentledger/internal/manager"
	"rentledger/internal/media"
	"rentledger/internal/messaging"
	"rentledger/internal/metrics"
	"rentledger/internal/notify"
	"rentledger/internal/storage"
	"rentledger/internal/telemetry"
	"rentledger/internal/worker"
)

func runServe(configPath string) error {
	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	log.Info("configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(cfg.Telemetry.ServiceName, cfg.Telemetry.Endpoint, cfg.Telemetry.Insecure, log)

	// Record store
	backend, release, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer release()
	store := storage.NewStore(backend, log, storage.WithSeed(manager.SeedDataset))
	if err := store.Load(ctx); err != nil {
		return err
	}
	log.WithField("driver", cfg.Storage.Driver).Info("record store ready")

	// Identity
	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}
	gate := auth.NewGate(tokens)
	admins, err := auth.AdminsFromConfig(cfg.Auth.Admins)
	if err != nil {
		return err
	}

	codes := newCodeStore(ctx, cfg, log)
	mailer := notify.NewMailer(cfg.Mail.Provider, cfg.Mail.WebhookURL, cfg.Mail.WebhookToken, log)
	dispatcher := notify.NewDispatcher(mailer, cfg.Mail.From, cfg.Mail.NotifyAdmins, log)

	// Events
	pool := worker.NewPool("events", cfg.Workers, 0, log)
	pool.Start()

	var (
		events   messaging.Publisher
		rabbit   *messaging.RabbitClient
		consumed *consumer.Consumer
	)
	if cfg.RabbitMQ.URL != "" {
		rabbit, err = messaging.NewRabbitClient(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue, log)
		if err != nil {
			return err
		}
		defer rabbit.Close()
		if err := rabbit.DeclareQueue(); err != nil {
			return err
		}
		consumed, err = consumer.StartConsumer(rabbit.GetConnection(), rabbit.Queue(), dispatcher.Handle, pool, log)
		if err != nil {
			return err
		}
		events = rabbit
		log.Info("RabbitMQ connected")
	} else {
		events = messaging.NewLocalPublisher(pool, dispatcher.Handle)
		log.Info("no broker configured, events are handled in-process")
	}

	// Components
	blobs, err := blob.NewLocalStorage(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix)
	if err != nil {
		return err
	}
	tm := manager.NewTenantManager(manager.Deps{
		Store:    store,
		Gate:     gate,
		Admins:   admins,
		Codes:    codes,
		Mailer:   mailer,
		MailFrom: cfg.Mail.From,
		Events:   events,
		Log:      log,
	})
	reg := media.New(store, blobs, events, media.Limits{
		MaxFileSize: cfg.Uploads.MaxFileSize,
		MaxFiles:    cfg.Uploads.MaxFiles,
	}, log)
	apiHandler := api.NewAPI(gate, tm, ledger.New(store, events, log), reg, store, cfg, log)

	// Start background loop for updating gauges
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if rabbit != nil {
					rabbit.UpdateQueueDepth()
				}
				tenants, payments, images := store.Counts()
				metrics.Records.WithLabelValues("tenants").Set(float64(tenants))
				metrics.Records.WithLabelValues("payments").Set(float64(payments))
				metrics.Records.WithLabelValues("images").Set(float64(images))
			}
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(apiHandler.Router(), cfg.Telemetry.ServiceName),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	runErr := serveUntilDone(ctx, server, log)

	// Shutdown sequence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown error")
	}
	if consumed != nil {
		consumed.Stop()
	}
	pool.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown error")
	}

	log.Info("graceful shutdown complete")
	return runErr
}

// serveUntilDone runs the server until ctx is cancelled or it fails to
// serve. A failure such as a port already in use is returned.
func serveUntilDone(ctx context.Context, server *http.Server, log logrus.FieldLogger) error {
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", server.Addr).Info("starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown initiated")
		return nil
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("server error")
		}
		return err
	}
}

// newCodeStore uses Redis when configured and reachable, falling back to
// memory for any call Redis cannot serve.
func newCodeStore(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) notify.CodeStore {
	memory := notify.NewMemoryCodeStore()
	if cfg.Redis.URL == "" {
		return memory
	}
	rs, err := notify.NewRedisCodeStore(cfg.Redis.URL)
	if err != nil {
		log.WithError(err).Warn("invalid redis url, reset codes kept in memory")
		return memory
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		log.WithError(err).Warn("redis unreachable, reset codes fall back to memory")
	}
	return &notify.FallbackCodeStore{Primary: rs, Secondary: memory, Log: log}
}
