package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fedarchive/genarc/internal/bytesize"
)

const sampleYAML = `
logging:
  level: DEBUG
  format: json
  output: stdout
api:
  port: 9001
database:
  uri: mongodb://db:27017
  database: dcs
kafka:
  brokers: ["kafka:9092"]
  dlq_topic: dcs-dlq
  fetch_max_bytes: 512Ki
storage_aliases:
  test:
    bucket: test-outbox
    endpoint: http://minio:9000
    region: us-east-1
    access_key_id: ak
    secret_access_key: sk
    force_path_style: true
download:
  outbox_alias: test
  drs_server_uri: drs://archive.example/
  presigned_url_expires_after: 1h
  url_expiration_buffer: 5m
  retry_after_min: 5s
  retry_after_max: 3m
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Logging.Level != "DEBUG" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.API.Port != 9001 {
		t.Errorf("api.port = %d, want 9001", cfg.API.Port)
	}
	if cfg.Download.PresignedURLExpiresAfter != time.Hour {
		t.Errorf("presigned_url_expires_after = %s, want 1h", cfg.Download.PresignedURLExpiresAfter)
	}
	if cfg.Download.RetryAfterMin != 5*time.Second {
		t.Errorf("retry_after_min = %s, want 5s", cfg.Download.RetryAfterMin)
	}
	// Defaults filled for unset fields.
	if cfg.Collections.Events != "persistedEvents" {
		t.Errorf("collections.events = %q", cfg.Collections.Events)
	}
	if cfg.Kafka.FlushInterval != time.Second {
		t.Errorf("kafka.flush_interval = %s", cfg.Kafka.FlushInterval)
	}
	if cfg.Kafka.FetchMaxBytes != 512*bytesize.KiB {
		t.Errorf("kafka.fetch_max_bytes = %d, want %d", cfg.Kafka.FetchMaxBytes, 512*bytesize.KiB)
	}
	if cfg.Kafka.FetchMinBytes != bytesize.B {
		t.Errorf("kafka.fetch_min_bytes = %d, want default 1", cfg.Kafka.FetchMinBytes)
	}
}

func TestLoadNoConfigFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		// Pure defaults fail validation only if they are inconsistent;
		// the default record must be valid.
		if cfg.Logging.Level != "INFO" {
			t.Errorf("default level = %q, want INFO", cfg.Logging.Level)
		}
		return
	}
	t.Fatalf("Load() error = %v, want default config", err)
}

func TestValidateRejectsBadDrsURI(t *testing.T) {
	bad := strings.Replace(sampleYAML, "drs://archive.example/", "https://archive.example/", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "drs_server_uri") {
		t.Errorf("Load() error = %v, want drs_server_uri validation failure", err)
	}
}

func TestValidateRejectsUnknownAlias(t *testing.T) {
	bad := strings.Replace(sampleYAML, "outbox_alias: test", "outbox_alias: nope", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "unknown storage alias") {
		t.Errorf("Load() error = %v, want unknown alias failure", err)
	}
}

func TestValidateRejectsInvertedRetryClamp(t *testing.T) {
	bad := strings.Replace(sampleYAML, "retry_after_max: 3m", "retry_after_max: 1s", 1)
	_, err := Load(writeConfig(t, bad))
	if err == nil || !strings.Contains(err.Error(), "retry_after_min") {
		t.Errorf("Load() error = %v, want retry clamp failure", err)
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := GetDefaultConfig()
	if err := SaveConfig(cfg, path); err != nil {
		t.Fatalf("SaveConfig() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() of saved config error = %v", err)
	}
	if loaded.Download.DrsServerURI != cfg.Download.DrsServerURI {
		t.Errorf("drs_server_uri = %q, want %q", loaded.Download.DrsServerURI, cfg.Download.DrsServerURI)
	}
}

func TestGetDefaultConfigIsValid(t *testing.T) {
	if err := Validate(GetDefaultConfig()); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}
