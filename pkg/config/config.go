// Package config loads and validates the configuration of the pipeline
// services. All four services share one flat configuration record; each
// service reads the sections it needs.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (GENARC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/fedarchive/genarc/internal/bytesize"
	"github.com/fedarchive/genarc/pkg/api"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/store"
)

// Config is the configuration record shared by all services.
type Config struct {
	// Service is the service this process runs as: ucs, fis, ifrs, dcs.
	// Set by the CLI subcommand, not by the file.
	Service string `mapstructure:"-" yaml:"-"`

	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// API configures the HTTP server.
	API api.Config `mapstructure:"api" yaml:"api"`

	// Database configures the document store connection.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Kafka configures the event broker.
	Kafka KafkaConfig `mapstructure:"kafka" yaml:"kafka"`

	// StorageAliases maps each alias to one S3 endpoint and bucket.
	// All cross-service storage references go through these aliases.
	StorageAliases map[string]StorageAliasConfig `mapstructure:"storage_aliases" yaml:"storage_aliases"`

	// Upload configures the upload controller (UCS).
	Upload UploadConfig `mapstructure:"upload" yaml:"upload"`

	// Ingest configures the file ingest service (FIS).
	Ingest IngestConfig `mapstructure:"ingest" yaml:"ingest"`

	// Archive configures the internal file registry (IFRS).
	Archive ArchiveConfig `mapstructure:"archive" yaml:"archive"`

	// Download configures the download controller (DCS).
	Download DownloadConfig `mapstructure:"download" yaml:"download"`

	// KeyStore configures the encryption key store client.
	KeyStore keystore.Config `mapstructure:"keystore" yaml:"keystore"`

	// AuthKeys maps each data hub to its PEM-encoded JWT public key.
	AuthKeys map[string]string `mapstructure:"auth_keys" yaml:"auth_keys"`

	// Collections names the bookkeeping collections shared by all services.
	Collections CollectionsConfig `mapstructure:"collections" yaml:"collections"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the output format: text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure   bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
}

// KafkaConfig configures the event broker connection.
type KafkaConfig struct {
	// Brokers is the list of bootstrap servers.
	Brokers []string `mapstructure:"brokers" validate:"required,min=1" yaml:"brokers"`

	// GroupID is the consumer group; defaults to the service name.
	GroupID string `mapstructure:"group_id" yaml:"group_id"`

	// DLQTopic receives poison messages. Empty disables dead-lettering.
	DLQTopic string `mapstructure:"dlq_topic" yaml:"dlq_topic"`

	// FlushInterval is the outbox flush period.
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`

	// FetchMinBytes and FetchMaxBytes bound the consumer's fetch requests.
	// Both accept unit suffixes, e.g. "512Ki" or "10Mi".
	FetchMinBytes bytesize.ByteSize `mapstructure:"fetch_min_bytes" yaml:"fetch_min_bytes"`
	FetchMaxBytes bytesize.ByteSize `mapstructure:"fetch_max_bytes" yaml:"fetch_max_bytes"`
}

// StorageAliasConfig describes one S3 endpoint/bucket pair.
type StorageAliasConfig struct {
	Bucket          string `mapstructure:"bucket" validate:"required" yaml:"bucket"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
}

// UploadConfig configures the upload controller.
type UploadConfig struct {
	// InboxAlias is the storage alias fresh uploads land in.
	InboxAlias string `mapstructure:"inbox_alias" yaml:"inbox_alias"`

	// PartURLExpiresAfter is the validity of presigned part URLs.
	PartURLExpiresAfter time.Duration `mapstructure:"part_url_expires_after" yaml:"part_url_expires_after"`
}

// IngestConfig configures the file ingest service.
type IngestConfig struct {
	// PrivateKeyPath and PublicKeyPath locate the service's Crypt4GH keypair.
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`
	PublicKeyPath  string `mapstructure:"public_key_path" yaml:"public_key_path"`

	// Passphrase decrypts the private key file when it is encrypted.
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase"`
}

// ArchiveConfig configures the internal file registry.
type ArchiveConfig struct {
	// InboxAlias is where interrogated uploads are read from.
	InboxAlias string `mapstructure:"inbox_alias" yaml:"inbox_alias"`

	// PermanentAlias is the archival storage alias.
	PermanentAlias string `mapstructure:"permanent_alias" yaml:"permanent_alias"`
}

// DownloadConfig configures the download controller.
type DownloadConfig struct {
	// OutboxAlias is the staging storage alias downloads are served from.
	OutboxAlias string `mapstructure:"outbox_alias" yaml:"outbox_alias"`

	// DrsServerURI is the base of self URIs, e.g. "drs://archive.example/".
	DrsServerURI string `mapstructure:"drs_server_uri" validate:"required" yaml:"drs_server_uri"`

	// PresignedURLExpiresAfter is the validity of served download URLs.
	PresignedURLExpiresAfter time.Duration `mapstructure:"presigned_url_expires_after" yaml:"presigned_url_expires_after"`

	// URLExpirationBuffer is subtracted from the URL validity for the
	// Cache-Control max-age so cached URLs never outlive their signature.
	URLExpirationBuffer time.Duration `mapstructure:"url_expiration_buffer" yaml:"url_expiration_buffer"`

	// OutboxCacheTimeoutDays is how long unaccessed outbox objects live.
	OutboxCacheTimeoutDays int `mapstructure:"outbox_cache_timeout_days" yaml:"outbox_cache_timeout_days"`

	// CleanupInterval is how often the outbox cleanup pass runs.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`

	// StagingSpeedMBps estimates staging throughput for Retry-After.
	StagingSpeedMBps float64 `mapstructure:"staging_speed_mbps" yaml:"staging_speed_mbps"`

	// RetryAfterMin and RetryAfterMax clamp the Retry-After estimate.
	RetryAfterMin time.Duration `mapstructure:"retry_after_min" yaml:"retry_after_min"`
	RetryAfterMax time.Duration `mapstructure:"retry_after_max" yaml:"retry_after_max"`
}

// CollectionsConfig names the per-service bookkeeping collections.
type CollectionsConfig struct {
	Events      string `mapstructure:"events" yaml:"events"`
	Idempotence string `mapstructure:"idempotence" yaml:"idempotence"`
	Lock        string `mapstructure:"lock" yaml:"lock"`
	Version     string `mapstructure:"version" yaml:"version"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// Without a file, run on the development defaults.
	if !configFileFound {
		return GetDefaultConfig(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes the configuration as YAML. File permissions are
// restricted because the record carries storage credentials.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the GENARC_ prefix, e.g.
// GENARC_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GENARC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/genarc")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks parses durations given as strings ("30s", "5m") and
// byte sizes given as strings ("512Ki") or plain numbers.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		byteSizeDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		return time.ParseDuration(data.(string))
	}
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML numbers may arrive as floats.
			return bytesize.ByteSize(v), nil
		}
		return data, nil
	}
}
