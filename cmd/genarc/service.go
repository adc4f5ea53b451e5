package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/internal/telemetry"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/archive"
	"github.com/fedarchive/genarc/pkg/auth"
	"github.com/fedarchive/genarc/pkg/config"
	"github.com/fedarchive/genarc/pkg/crypt4gh"
	"github.com/fedarchive/genarc/pkg/download"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/ingest"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
	"github.com/fedarchive/genarc/pkg/upload"
)

// deps bundles the infrastructure every service shares.
type deps struct {
	cfg      *config.Config
	client   *store.Client
	aliases  *storage.Aliases
	verifier *auth.Verifier
	pub      events.Publisher
}

// runtime describes what one service contributes on top of the shared
// infrastructure: its HTTP surface, the topics it consumes, its event
// handlers, and any background loops.
type runtime struct {
	mount      func(chi.Router)
	consumes   []string
	register   func(*events.Subscriber)
	background []func(context.Context)
}

// runService starts one of the pipeline services and blocks until a
// shutdown signal arrives or the server fails.
func runService(service string) {
	serviceFlags := flag.NewFlagSet(service, flag.ExitOnError)
	configFile := serviceFlags.String("config", "", "Path to config file (default: ./config.yaml)")

	if err := serviceFlags.Parse(os.Args[2:]); err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.Service = service
	initLogger(cfg, service)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    service,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	}
	telemetryShutdown, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Service starting", "service", service, "version", version)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}

	client, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to document store: %v", err)
	}
	defer func() {
		if err := client.Close(context.Background()); err != nil {
			logger.Error("failed to disconnect from document store", logger.Err(err))
		}
	}()

	aliases, err := buildAliases(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to configure storage endpoints: %v", err)
	}

	verifier, err := auth.NewVerifier(cfg.AuthKeys)
	if err != nil {
		log.Fatalf("Failed to load auth keys: %v", err)
	}

	outbox := store.NewOutbox(client, cfg.Collections.Events)
	pub := events.NewOutboxPublisher(outbox)
	writer := events.NewKafkaWriter(cfg.Kafka.Brokers)
	defer writer.Close()

	flusher := events.NewFlusher(outbox, writer, cfg.Kafka.FlushInterval)
	go flusher.Run(ctx)

	rt, err := buildRuntime(service, cfg, deps{
		cfg:      cfg,
		client:   client,
		aliases:  aliases,
		verifier: verifier,
		pub:      pub,
	})
	if err != nil {
		log.Fatalf("Failed to build %s service: %v", service, err)
	}

	router := api.NewRouter(cfg.API, api.ReadyCheck{Name: "document_store", Check: client.Ping})
	rt.mount(router)

	idem := store.NewIdempotenceStore(client, cfg.Collections.Idempotence)
	groupID := cfg.Kafka.GroupID
	if groupID == "" {
		groupID = service
	}
	var dlq events.BrokerWriter
	if cfg.Kafka.DLQTopic != "" {
		dlq = writer
	}

	var subscribers []*events.Subscriber
	for _, topic := range rt.consumes {
		reader := events.NewKafkaReader(cfg.Kafka.Brokers, groupID, topic,
			int(cfg.Kafka.FetchMinBytes), int(cfg.Kafka.FetchMaxBytes))
		sub := events.NewSubscriber(reader, dlq, cfg.Kafka.DLQTopic, idem)
		rt.register(sub)
		subscribers = append(subscribers, sub)

		go func(topic string, sub *events.Subscriber) {
			if err := sub.Run(ctx); err != nil {
				logger.Error("subscriber stopped", logger.Topic(topic), logger.Err(err))
			}
		}(topic, sub)
		logger.Info("Consuming topic", logger.Topic(topic), "group_id", groupID)
	}
	defer func() {
		for _, sub := range subscribers {
			if err := sub.Close(); err != nil {
				logger.Error("failed to close subscriber", logger.Err(err))
			}
		}
	}()

	for _, bg := range rt.background {
		go bg(ctx)
	}

	srv := api.NewServer(cfg.API, router)
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", logger.Err(err))
			os.Exit(1)
		}
		logger.Info("Server stopped")
	}
}

// buildRuntime wires the domain layer of one service.
func buildRuntime(service string, cfg *config.Config, d deps) (runtime, error) {
	switch service {
	case "ucs":
		return buildUploadController(d), nil
	case "fis":
		return buildIngestService(cfg, d)
	case "ifrs":
		return buildRegistryService(cfg, d), nil
	case "dcs":
		return buildDownloadController(cfg, d), nil
	default:
		return runtime{}, fmt.Errorf("unknown service %q", service)
	}
}

func buildUploadController(d deps) runtime {
	boxes := store.NewDAO[upload.FileUploadBox](d.client, "fileUploadBoxes")
	uploads := store.NewDAO[upload.FileUpload](d.client, "fileUploads")
	details := store.NewDAO[upload.S3UploadDetails](d.client, "s3UploadDetails")

	ctrl := upload.NewController(boxes, uploads, details, d.aliases, d.pub)
	handler := upload.NewRESTHandler(ctrl, d.verifier)

	return runtime{mount: handler.Mount}
}

func buildIngestService(cfg *config.Config, d deps) (runtime, error) {
	if cfg.Ingest.PrivateKeyPath == "" {
		return runtime{}, errors.New("ingest.private_key_path is required")
	}
	privateKey, err := crypt4gh.LoadPrivateKey(cfg.Ingest.PrivateKeyPath, cfg.Ingest.Passphrase)
	if err != nil {
		return runtime{}, fmt.Errorf("failed to load service private key: %w", err)
	}

	interrogations := store.NewDAO[ingest.FileUnderInterrogation](d.client, "filesUnderInterrogation")
	keys := keystore.NewClient(cfg.KeyStore)

	svc := ingest.NewService(privateKey, interrogations, keys, d.pub)
	handler := ingest.NewRESTHandler(svc, d.verifier)

	return runtime{
		mount:    handler.Mount,
		consumes: []string{events.TopicFileRegistrations, events.TopicFileDeletions},
		register: svc.RegisterHandlers,
	}, nil
}

func buildRegistryService(cfg *config.Config, d deps) runtime {
	registry := store.NewDAO[archive.FileMetadata](d.client, "registeredFiles")
	pending := store.NewDAO[archive.PendingFileUpload](d.client, "pendingUploads")
	accessions := store.NewDAO[archive.AccessionMapping](d.client, "accessionMappings")

	svc := archive.NewService(registry, pending, accessions, d.aliases, cfg.Archive.PermanentAlias, d.pub)
	handler := archive.NewRESTHandler(svc, d.verifier)

	return runtime{
		mount: handler.Mount,
		consumes: []string{
			events.TopicFileInterrogations,
			events.TopicFileStagingRequests,
			events.TopicFileDeletions,
		},
		register: svc.RegisterHandlers,
	}
}

func buildDownloadController(cfg *config.Config, d deps) runtime {
	objects := store.NewDAO[download.DrsObject](d.client, "drsObjects")
	keys := keystore.NewClient(cfg.KeyStore)

	svc := download.NewService(objects, d.aliases, keys, d.pub, download.Config{
		OutboxAlias:              cfg.Download.OutboxAlias,
		DrsServerURI:             cfg.Download.DrsServerURI,
		PresignedURLExpiresAfter: cfg.Download.PresignedURLExpiresAfter,
		URLExpirationBuffer:      cfg.Download.URLExpirationBuffer,
		OutboxCacheTimeout:       time.Duration(cfg.Download.OutboxCacheTimeoutDays) * 24 * time.Hour,
		StagingSpeedMBps:         cfg.Download.StagingSpeedMBps,
		RetryAfterMin:            cfg.Download.RetryAfterMin,
		RetryAfterMax:            cfg.Download.RetryAfterMax,
	})
	handler := download.NewRESTHandler(svc, d.verifier)

	cleanup := func(ctx context.Context) {
		ticker := time.NewTicker(cfg.Download.CleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := svc.CleanupOutbox(ctx); err != nil && ctx.Err() == nil {
					logger.Error("outbox cleanup pass failed", logger.Err(err))
				}
			}
		}
	}

	return runtime{
		mount:      handler.Mount,
		consumes:   []string{events.TopicFileRegistrations, events.TopicFileDeletions},
		register:   svc.RegisterHandlers,
		background: []func(context.Context){cleanup},
	}
}

// buildAliases constructs one S3 client per configured storage alias.
func buildAliases(ctx context.Context, cfg *config.Config) (*storage.Aliases, error) {
	endpoints := make(map[string]storage.Endpoint, len(cfg.StorageAliases))
	for alias, ac := range cfg.StorageAliases {
		st, err := storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:            ac.Endpoint,
			Region:              ac.Region,
			AccessKeyID:         ac.AccessKeyID,
			SecretAccessKey:     ac.SecretAccessKey,
			ForcePathStyle:      ac.ForcePathStyle,
			PartURLExpiresAfter: cfg.Upload.PartURLExpiresAfter,
		})
		if err != nil {
			return nil, fmt.Errorf("alias %q: %w", alias, err)
		}
		endpoints[alias] = storage.Endpoint{Storage: st, Bucket: ac.Bucket}
		logger.Info("Storage alias configured", logger.StorageAlias(alias), logger.Bucket(ac.Bucket))
	}
	return storage.NewAliases(endpoints), nil
}
