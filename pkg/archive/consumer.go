package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/store"
)

// RegisterHandlers subscribes the registry to the events it acts on:
// validated uploads, staging requests, and deletion requests.
func (s *Service) RegisterHandlers(sub *events.Subscriber) {
	sub.On(events.TypeFileUploadValidationSuccess, s.onValidationSuccess)
	sub.On(events.TypeNonStagedFileRequested, s.onStagingRequested)
	sub.On(events.TypeFileDeletionRequested, s.onDeletionRequested)
}

func (s *Service) onValidationSuccess(ctx context.Context, env events.Envelope) error {
	var ev events.FileUploadValidationSuccess
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	return s.HandleFileUpload(ctx, PendingFileUpload{
		FileID:            ev.FileID,
		ObjectID:          ev.ObjectID,
		SecretID:          ev.SecretID,
		StorageAlias:      ev.StorageAlias,
		BucketID:          ev.BucketID,
		DecryptedSHA256:   ev.DecryptedSHA256,
		DecryptedSize:     ev.DecryptedSize,
		EncryptedSize:     ev.EncryptedSize,
		PartSize:          ev.PartSize,
		PartChecksumsMD5:  ev.PartChecksumsMD5,
		PartChecksumsSHA2: ev.PartChecksumsSHA2,
	})
}

func (s *Service) onStagingRequested(ctx context.Context, env events.Envelope) error {
	var ev events.NonStagedFileRequested
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	// Staging requests carry the pipeline file id; the registry keys its
	// records by accession, so resolve through the join first.
	mapping, err := s.accessions.Get(ctx, ev.FileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.WarnCtx(ctx, "staging requested for unknown file", logger.FileID(ev.FileID))
		return nil
	}
	if err != nil {
		return err
	}

	err = s.StageRegisteredFile(ctx, mapping.Accession, ev.DecryptedSHA256, ev.TargetObjectID, ev.TargetBucketID)

	// A request for an unregistered accession is not retryable; skip it
	// instead of dead-lettering.
	var notRegistered *FileNotInRegistryError
	if errors.As(err, &notRegistered) {
		logger.WarnCtx(ctx, "staging requested for unregistered accession",
			logger.Accession(mapping.Accession), logger.FileID(ev.FileID))
		return nil
	}
	return err
}

func (s *Service) onDeletionRequested(ctx context.Context, env events.Envelope) error {
	var ev events.FileDeletionRequested
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}
	return s.DeleteFileByID(ctx, ev.FileID)
}
