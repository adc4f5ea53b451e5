package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// drsURIPattern is the required shape of the DRS server URI: a drs:// base
// ending in a slash so object ids can be appended directly.
var drsURIPattern = regexp.MustCompile(`^drs://.+/$`)

// Validate checks the configuration for structural and cross-field errors.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if !drsURIPattern.MatchString(cfg.Download.DrsServerURI) {
		return fmt.Errorf("download.drs_server_uri %q must match %s", cfg.Download.DrsServerURI, drsURIPattern)
	}

	// Every alias referenced by a service must be configured.
	refs := map[string]string{
		"upload.inbox_alias":      cfg.Upload.InboxAlias,
		"archive.inbox_alias":     cfg.Archive.InboxAlias,
		"archive.permanent_alias": cfg.Archive.PermanentAlias,
		"download.outbox_alias":   cfg.Download.OutboxAlias,
	}
	for field, alias := range refs {
		if alias == "" {
			continue
		}
		if _, ok := cfg.StorageAliases[alias]; !ok {
			return fmt.Errorf("%s references unknown storage alias %q", field, alias)
		}
	}

	if cfg.Download.RetryAfterMin > cfg.Download.RetryAfterMax {
		return fmt.Errorf("download.retry_after_min %s exceeds retry_after_max %s",
			cfg.Download.RetryAfterMin, cfg.Download.RetryAfterMax)
	}
	if cfg.Download.URLExpirationBuffer >= cfg.Download.PresignedURLExpiresAfter {
		return fmt.Errorf("download.url_expiration_buffer %s must be below presigned_url_expires_after %s",
			cfg.Download.URLExpirationBuffer, cfg.Download.PresignedURLExpiresAfter)
	}

	return nil
}
