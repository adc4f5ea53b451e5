package download

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fedarchive/genarc/pkg/events"
)

// RegisterHandlers subscribes the download controller to registration and
// deletion events.
func (s *Service) RegisterHandlers(sub *events.Subscriber) {
	sub.On(events.TypeFileInternallyRegistered, s.onFileRegistered)
	sub.On(events.TypeFileDeletionRequested, s.onDeletionRequested)
}

func (s *Service) onFileRegistered(ctx context.Context, env events.Envelope) error {
	var ev events.FileInternallyRegistered
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	return s.RegisterNewFile(ctx, DrsObject{
		ID:              ev.FileID,
		Accession:       ev.Accession,
		ObjectID:        ev.ObjectID,
		SecretID:        ev.SecretID,
		StorageAlias:    ev.StorageAlias,
		DecryptedSHA256: ev.DecryptedSHA256,
		DecryptedSize:   ev.DecryptedSize,
		EncryptedSize:   ev.EncryptedSize,
	})
}

func (s *Service) onDeletionRequested(ctx context.Context, env events.Envelope) error {
	var ev events.FileDeletionRequested
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}
	return s.DeleteFile(ctx, ev.FileID)
}
