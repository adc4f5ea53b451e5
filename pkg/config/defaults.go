package config

import (
	"time"

	"github.com/fedarchive/genarc/internal/bytesize"
)

// ApplyDefaults fills every unset field with its default value. Explicitly
// configured values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)

	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.API.RequestTimeout == 0 {
		cfg.API.RequestTimeout = 60 * time.Second
	}

	if cfg.Database.URI == "" {
		cfg.Database.URI = "mongodb://localhost:27017"
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = "genarc"
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.FlushInterval == 0 {
		cfg.Kafka.FlushInterval = time.Second
	}
	if cfg.Kafka.FetchMinBytes == 0 {
		cfg.Kafka.FetchMinBytes = bytesize.B
	}
	if cfg.Kafka.FetchMaxBytes == 0 {
		cfg.Kafka.FetchMaxBytes = 10 * bytesize.MiB
	}

	if cfg.KeyStore.BaseURL == "" {
		cfg.KeyStore.BaseURL = "http://localhost:8090"
	}
	if cfg.KeyStore.RequestTimeout == 0 {
		cfg.KeyStore.RequestTimeout = 10 * time.Second
	}
	if cfg.KeyStore.RetryMax == 0 {
		cfg.KeyStore.RetryMax = 3
	}

	if cfg.Upload.PartURLExpiresAfter == 0 {
		cfg.Upload.PartURLExpiresAfter = time.Hour
	}

	applyDownloadDefaults(&cfg.Download)
	applyCollectionsDefaults(&cfg.Collections)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyDownloadDefaults(cfg *DownloadConfig) {
	if cfg.PresignedURLExpiresAfter == 0 {
		cfg.PresignedURLExpiresAfter = time.Hour
	}
	if cfg.URLExpirationBuffer == 0 {
		cfg.URLExpirationBuffer = 5 * time.Minute
	}
	if cfg.OutboxCacheTimeoutDays == 0 {
		cfg.OutboxCacheTimeoutDays = 7
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.StagingSpeedMBps == 0 {
		cfg.StagingSpeedMBps = 100
	}
	if cfg.RetryAfterMin == 0 {
		cfg.RetryAfterMin = 5 * time.Second
	}
	if cfg.RetryAfterMax == 0 {
		cfg.RetryAfterMax = 5 * time.Minute
	}
}

func applyCollectionsDefaults(cfg *CollectionsConfig) {
	if cfg.Events == "" {
		cfg.Events = "persistedEvents"
	}
	if cfg.Idempotence == "" {
		cfg.Idempotence = "processedEvents"
	}
	if cfg.Lock == "" {
		cfg.Lock = "migrationLocks"
	}
	if cfg.Version == "" {
		cfg.Version = "dbVersions"
	}
}

// GetDefaultConfig returns a configuration with every default applied,
// suitable as the starting point for a sample file.
func GetDefaultConfig() *Config {
	cfg := &Config{
		StorageAliases: map[string]StorageAliasConfig{
			"test": {
				Bucket:          "test-inbox",
				Endpoint:        "http://localhost:9000",
				Region:          "us-east-1",
				AccessKeyID:     "genarc",
				SecretAccessKey: "change-me",
				ForcePathStyle:  true,
			},
		},
		Download: DownloadConfig{
			DrsServerURI: "drs://localhost/",
			OutboxAlias:  "test",
		},
		Upload:  UploadConfig{InboxAlias: "test"},
		Archive: ArchiveConfig{InboxAlias: "test", PermanentAlias: "test"},
	}
	ApplyDefaults(cfg)
	return cfg
}
