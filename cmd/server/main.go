package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"dirsync/internal/correlation"
	"dirsync/internal/directory"
	"dirsync/internal/directory/cursor"
	"dirsync/internal/directory/ldapdir"
	"dirsync/internal/discriminator"
	"dirsync/internal/discriminator/celeval"
	"dirsync/internal/events"
	"dirsync/internal/platform/config"
	"dirsync/internal/platform/httpserver"
	"dirsync/internal/platform/kafka"
	"dirsync/internal/platform/logger"
	"dirsync/internal/platform/metrics"
	"dirsync/internal/platform/redisclient"
	"dirsync/internal/registry/store"
	httptransport "dirsync/internal/transport/http"
	"dirsync/internal/username"
	derrors "dirsync/pkg/domain-errors"
)

// main wires the engine's dependencies and keeps the process lifecycle
// small. Business logic lives in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	m := metrics.New(registry)

	personStore, closeStore, err := newRegistryStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Directory connection.
	conn, err := ldap.DialURL(cfg.Directory.URL)
	if err != nil {
		return fmt.Errorf("dial directory: %w", err)
	}
	defer conn.Close()
	if cfg.Directory.BindDN != "" {
		if err := conn.Bind(cfg.Directory.BindDN, cfg.Directory.BindPassword); err != nil {
			return fmt.Errorf("bind directory: %w", err)
		}
	}
	dir, err := ldapdir.New(conn, ldapdir.Config{
		BaseDN:        cfg.Directory.BaseDN,
		UniqueIDAttr:  cfg.Directory.UniqueIDAttr,
		UsernameAttrs: cfg.Directory.UsernameAttrs,
		PageSize:      cfg.Directory.PageSize,
	}, ldapdir.WithLogger(log))
	if err != nil {
		return err
	}
	collisions, err := dir.Collisions()
	if err != nil {
		return err
	}

	// Username generation.
	generator, err := username.NewGenerator(username.Policy{
		Patterns:     cfg.Engine.UsernamePatterns,
		Forbidden:    cfg.Engine.ForbiddenUsernames,
		Replacements: cfg.Engine.Replacements,
		StripVowels:  cfg.Engine.StripVowels,
	})
	if err != nil {
		return err
	}
	taken := username.TakenFuncOf(collisions)

	// Correlation policy.
	var keyPattern *regexp.Regexp
	if cfg.Engine.SecondaryKeyPattern != "" {
		if keyPattern, err = regexp.Compile(cfg.Engine.SecondaryKeyPattern); err != nil {
			return fmt.Errorf("secondary key pattern: %w", err)
		}
	}
	policy := discriminator.Policy{
		Mode:   discriminator.Mode(cfg.Engine.DiscriminatorMode),
		Field:  cfg.Engine.DiscriminatorField,
		Values: cfg.Engine.DiscriminatorValues,
	}
	var evaluator discriminator.Evaluator
	if policy.Mode == discriminator.ModeTemplate {
		if evaluator, err = celeval.New(); err != nil {
			return err
		}
	}

	resolver, err := correlation.New(dir, personStore, generator, taken, evaluator, correlation.Config{
		SecondaryKeyAttr:    cfg.Engine.SecondaryKeyAttr,
		SecondaryKeyPattern: keyPattern,
		Discriminator:       policy,
	}, correlation.WithLogger(log), correlation.WithObserver(m))
	if err != nil {
		return err
	}

	// Event pipeline.
	producerClient, err := kafka.NewProducerClient(cfg.Kafka.Brokers)
	if err != nil {
		return err
	}
	defer producerClient.Close()
	if err := kafka.EnsureTopics(ctx, producerClient, 3, cfg.Kafka.PersonTopic, cfg.Kafka.EntryTopic); err != nil {
		return err
	}
	producer := kafka.NewProducer(producerClient)

	readAttrs := []string{cfg.Engine.SecondaryKeyAttr}
	if cfg.Engine.DiscriminatorField != "" {
		readAttrs = append(readAttrs, cfg.Engine.DiscriminatorField)
	}
	handlers, err := events.NewHandlers(personStore, dir, resolver, events.HandlersConfig{
		CreateOU:         cfg.Directory.CreateOU,
		ObjectClasses:    cfg.Directory.ObjectClasses,
		UsernameAttr:     cfg.Directory.UsernameAttrs[0],
		SecondaryKeyAttr: cfg.Engine.SecondaryKeyAttr,
		ReadAttrs:        readAttrs,
	}, events.WithLogger(log), events.WithObserver(m))
	if err != nil {
		return err
	}

	consumerClient, err := kafka.NewConsumerClient(cfg.Kafka.Brokers, cfg.Kafka.Group,
		cfg.Kafka.PersonTopic, cfg.Kafka.EntryTopic)
	if err != nil {
		return err
	}
	defer consumerClient.Close()
	consumer := kafka.NewConsumer(consumerClient,
		handlers.Route(cfg.Kafka.PersonTopic, cfg.Kafka.EntryTopic),
		kafka.ConsumerConfig{
			MaxAttempts: cfg.Kafka.MaxAttempts,
			Retryable:   derrors.Retryable,
		},
		kafka.WithConsumerLogger(log),
		kafka.WithConsumerObserver(m),
	)

	// Directory change poller.
	cursors, closeRedis, err := newCursorStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeRedis()
	poller := directory.NewPoller(dir, cursors, events.NewEntrySink(producer, cfg.Kafka.EntryTopic),
		directory.PollerConfig{
			Interval: cfg.Directory.PollInterval,
			Horizon:  cfg.Directory.PollHorizon,
			Attrs:    readAttrs,
		}, directory.WithPollerLogger(log))

	// Admin HTTP surface.
	adminHandler := httptransport.NewHandler(personStore, resolver, generator, taken,
		producer, cfg.Kafka.PersonTopic, log)
	router := httptransport.NewRouter(adminHandler, httptransport.NewHMACValidator(cfg.Server.JWTSigningKey), registry, log)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error {
		log.Info("starting dirsync", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// registryStore is the union of store capabilities the process wires.
type registryStore interface {
	correlation.Registry
	events.Registry
	httptransport.Registry
}

func newRegistryStore(ctx context.Context, cfg config.Config, log *slog.Logger) (registryStore, func(), error) {
	if cfg.Postgres.URL == "" {
		log.Warn("no postgres configured, using in-memory registry store")
		return store.NewMemory(), func() {}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	return store.NewPostgres(pool), pool.Close, nil
}

func newCursorStore(ctx context.Context, cfg config.Config, log *slog.Logger) (cursor.Store, func(), error) {
	client, err := redisclient.New(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("no redis configured, using in-memory poll cursor")
		return cursor.NewMemory(), func() {}, nil
	}
	return cursor.NewRedis(client.Client), func() { _ = client.Close() }, nil
}
