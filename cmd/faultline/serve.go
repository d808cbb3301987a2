package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"faultline/db/migrations"
	"faultline/internal/app"
	"faultline/internal/auth"
	"faultline/internal/cache"
	"faultline/internal/channel"
	"faultline/internal/config"
	"faultline/internal/ingest"
	"faultline/internal/notifier"
	"faultline/internal/pipeline"
	"faultline/internal/reconciler"
	"faultline/internal/retrieval"
	"faultline/internal/search"
	"faultline/internal/store"
	"faultline/internal/sysinfo"
)

// errorStore is what the server needs from a dedup store backend.
type errorStore interface {
	pipeline.Store
	retrieval.PayloadStore
	app.Records
}

// notificationChannel is what the server needs from a channel backend.
type notificationChannel interface {
	channel.Channel
	channel.Responder
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var skipMigrations bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the NATS ingest subscriber",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.cfg, opts.logger, !skipMigrations)
		},
	}
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply migrations on startup")
	return cmd
}

func runServe(ctx context.Context, cfg config.Config, logger *zap.Logger, migrate bool) error {
	var (
		st    errorStore
		db    *sql.DB
		pgfts *search.PgFTS
	)
	if cfg.DatabaseURL != "" {
		opened, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{})
		if err != nil {
			return err
		}
		db = opened
		defer db.Close()

		if migrate {
			applied, err := store.ApplyMigrations(ctx, db, migrations.FS)
			if err != nil {
				return err
			}
			if len(applied) > 0 {
				logger.Info("Applied migrations", zap.Strings("versions", applied))
			}
		}
		st = store.NewPostgresStore(db)
		pgfts = search.NewPgFTS(db)
	} else {
		logger.Warn("No database_url configured, error records are kept in memory")
		st = store.NewMemoryStore()
	}

	var ch notificationChannel
	if cfg.DryRun() {
		logger.Warn("No webhook_url configured, running in dry-run mode")
		ch = channel.NewMemoryChannel(logger)
	} else {
		client, err := channel.NewClient(logger, channel.ClientConfig{
			WebhookURL:        cfg.WebhookURL,
			APIBaseURL:        cfg.DiscordAPIURL,
			Timeout:           cfg.DiscordTimeout,
			RequestsPerSecond: cfg.DiscordRate,
			Burst:             cfg.DiscordBurst,
			Username:          cfg.BotUser,
		})
		if err != nil {
			return err
		}
		ch = client
	}

	notifierOpts := notifier.Options{
		BotUser: cfg.BotUser,
		Metrics: sysinfo.NewProvider(logger),
	}
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer redisCache.Close()
		notifierOpts.Cache = redisCache.WithTTL(cfg.CacheTTL)
	}
	n := notifier.New(logger, ch, notifierOpts)
	reporter := pipeline.NewReporter(logger, st, n, reconciler.New(logger, n))

	var meili *search.Meili
	if cfg.MeiliURL != "" {
		meili = search.NewMeili(logger, cfg.MeiliURL, cfg.MeiliAPIKey)
		defer meili.Close()
	}
	var searcher app.Searcher
	if meili != nil || pgfts != nil {
		searchService := search.NewService(logger, meili, pgfts)
		reporter.WithObserver(searchService)
		searcher = searchService
		go searchService.ReindexAllFromPG(ctx)
	}

	retrievalOpts := retrieval.Options{AttachmentLimit: cfg.AttachmentLimit}
	if cfg.S3Endpoint != "" {
		archive, err := retrieval.NewObjectArchive(ctx, retrieval.ObjectArchiveConfig{
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Bucket:     cfg.S3Bucket,
			UseSSL:     cfg.S3UseSSL,
			LinkExpiry: cfg.ArchiveLinkExpiry,
		})
		if err != nil {
			return err
		}
		retrievalOpts.Archive = archive
	}
	retriever := retrieval.NewService(logger, st, retrievalOpts)

	var verifier *auth.InteractionVerifier
	if cfg.DiscordPublicKey != "" {
		key, err := auth.ParsePublicKey(cfg.DiscordPublicKey)
		if err != nil {
			return err
		}
		verifier = auth.NewInteractionVerifier(key, cfg.SignatureMaxSkew)
	}

	var subscriber *ingest.Subscriber
	if cfg.NATSURL != "" {
		nc, err := ingest.Connect(cfg.NATSURL, logger)
		if err != nil {
			return err
		}
		defer drain(nc, logger)
		subscriber = ingest.NewSubscriber(logger, nc, reporter, retriever, ch, ingest.SubscriberOptions{
			Queue:       cfg.IngestQueue,
			Timeout:     cfg.ReportTimeout,
			MaxInFlight: cfg.IngestMaxInFlight,
		})
		if err := subscriber.Start(); err != nil {
			return err
		}
	}

	service := app.New(logger, app.Dependencies{
		Records:       st,
		Reporter:      reporter,
		Retriever:     retriever,
		Search:        searcher,
		Verifier:      verifier,
		TokenSecret:   []byte(cfg.IngestTokenSecret),
		ReportTimeout: cfg.ReportTimeout,
	})
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ReportTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("faultline listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.Bool("dry_run", cfg.DryRun()),
			zap.Bool("postgres", db != nil),
			zap.Bool("nats", subscriber != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown error", zap.Error(err))
	}
	if subscriber != nil {
		if err := subscriber.Stop(shutdownCtx); err != nil {
			logger.Warn("Ingest shutdown error", zap.Error(err))
		}
	}
	return nil
}

func drain(nc *nats.Conn, logger *zap.Logger) {
	if err := nc.Drain(); err != nil {
		logger.Warn("NATS drain failed", zap.Error(err))
		nc.Close()
	}
}
