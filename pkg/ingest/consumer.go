package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/events"
)

// RegisterHandlers subscribes the ingest service to the pipeline events it
// reacts to: archival confirmations and deletion requests.
func (s *Service) RegisterHandlers(sub *events.Subscriber) {
	sub.On(events.TypeFileInternallyRegistered, s.onFileRegistered)
	sub.On(events.TypeFileDeletionRequested, s.onFileDeletionRequested)
}

func (s *Service) onFileRegistered(ctx context.Context, env events.Envelope) error {
	var ev events.FileInternallyRegistered
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	err := s.Transition(ctx, ev.FileID, StateArchived)
	var notFound *FileNotFoundError
	if errors.As(err, &notFound) {
		// Registered through another route; nothing to track here.
		logger.DebugCtx(ctx, "archived file not under interrogation", logger.FileID(ev.FileID))
		return nil
	}
	return err
}

func (s *Service) onFileDeletionRequested(ctx context.Context, env events.Envelope) error {
	var ev events.FileDeletionRequested
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return fmt.Errorf("failed to decode %s event: %w", env.Type, err)
	}

	err := s.Transition(ctx, ev.FileID, StateCancelled)
	var notFound *FileNotFoundError
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}
