package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/store"
)

// Transition moves a file to a new interrogation state. Transitions are
// monotonic: a received state ranked below the stored one is stale (events
// may arrive out of order) and is ignored without error.
func (s *Service) Transition(ctx context.Context, fileID string, state InterrogationState) error {
	record, err := s.interrogations.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return &FileNotFoundError{FileID: fileID}
	}
	if err != nil {
		return err
	}

	if stateRank[state] < stateRank[record.State] {
		logger.DebugCtx(ctx, "stale interrogation state ignored",
			logger.FileID(fileID),
			"received", string(state),
			"current", string(record.State))
		return nil
	}
	if state == record.State {
		return nil
	}

	record.State = state
	record.Interrogated = record.Interrogated || state == StateInterrogated
	record.CanRemove = state == StateFailed || state == StateArchived || state == StateCancelled
	record.UpdatedAt = time.Now().UTC()

	if err := s.interrogations.Upsert(ctx, record); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "interrogation state changed",
		logger.FileID(fileID), "state", string(state))
	return nil
}

// HandleReport applies an interrogation worker's verdict.
func (s *Service) HandleReport(ctx context.Context, report InterrogationReport) error {
	switch report.Outcome {
	case "pass":
		return s.Transition(ctx, report.FileID, StateInterrogated)
	case "fail":
		return s.Transition(ctx, report.FileID, StateFailed)
	default:
		return &WrongDecryptedFormatError{Reason: "outcome must be pass or fail"}
	}
}

// GetFile returns the interrogation record for one file.
func (s *Service) GetFile(ctx context.Context, fileID string) (FileUnderInterrogation, error) {
	record, err := s.interrogations.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return FileUnderInterrogation{}, &FileNotFoundError{FileID: fileID}
	}
	return record, err
}

// ListFiles returns all files currently tracked by the ingest service.
func (s *Service) ListFiles(ctx context.Context) ([]FileUnderInterrogation, error) {
	return s.interrogations.All(ctx)
}
