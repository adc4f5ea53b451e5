package archive

import (
	"context"
	"errors"
	"time"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/metrics"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
)

// Service implements the internal file registry. Registration is driven by
// a two-sided join: a validated upload and its accession arrive
// independently, and whichever half lands second triggers the archival.
type Service struct {
	registry       store.DAO[FileMetadata]
	pending        store.DAO[PendingFileUpload]
	accessions     store.DAO[AccessionMapping]
	aliases        *storage.Aliases
	permanentAlias string
	pub            events.Publisher
}

// NewService wires the registry service. permanentAlias names the archival
// storage all registered files are copied into.
func NewService(
	registry store.DAO[FileMetadata],
	pending store.DAO[PendingFileUpload],
	accessions store.DAO[AccessionMapping],
	aliases *storage.Aliases,
	permanentAlias string,
	pub events.Publisher,
) *Service {
	return &Service{
		registry:       registry,
		pending:        pending,
		accessions:     accessions,
		aliases:        aliases,
		permanentAlias: permanentAlias,
		pub:            pub,
	}
}

// RegisterFile archives one validated upload under its accession: verify
// the inbox object, copy it into permanent storage, persist the metadata,
// and announce the registration.
//
// Registration is idempotent: an existing record with equal content is a
// no-op. An existing record with different content means two registrations
// disagree; the newcomer is logged and dropped rather than surfaced, so a
// poisoned event cannot wedge the topic.
func (s *Service) RegisterFile(ctx context.Context, meta FileMetadata) error {
	existing, err := s.registry.Get(ctx, meta.Accession)
	if err == nil {
		if existing.equalContent(meta) {
			logger.DebugCtx(ctx, "file already registered", logger.Accession(meta.Accession))
			return nil
		}
		logger.WarnCtx(ctx, "conflicting registration dropped",
			logger.Accession(meta.Accession), logger.FileID(meta.FileID))
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	source, err := s.aliases.Get(meta.StorageAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "registration references unconfigured storage",
			logger.Accession(meta.Accession), logger.StorageAlias(meta.StorageAlias), logger.Err(err))
		return err
	}
	permanent, err := s.aliases.Get(s.permanentAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "permanent storage alias not configured",
			logger.StorageAlias(s.permanentAlias), logger.Err(err))
		return err
	}

	size, err := source.Storage.GetObjectSize(ctx, meta.BucketID, meta.ObjectID)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return &FileNotInInterrogationError{FileID: meta.FileID, Bucket: meta.BucketID}
	}
	if err != nil {
		return err
	}
	if size != meta.EncryptedSize {
		return &SizeMismatchError{FileID: meta.FileID, Expected: meta.EncryptedSize, Actual: size}
	}

	if err := source.Storage.CopyObject(ctx, meta.BucketID, meta.ObjectID, permanent.Bucket, meta.ObjectID); err != nil {
		copyErr := &CopyOperationError{FileID: meta.FileID, Err: err}
		logger.CriticalCtx(ctx, "archival copy failed",
			logger.Accession(meta.Accession),
			logger.FileID(meta.FileID),
			logger.ObjectID(meta.ObjectID),
			logger.Bucket(permanent.Bucket),
			logger.Err(err))
		return copyErr
	}

	meta.StorageAlias = s.permanentAlias
	meta.BucketID = permanent.Bucket
	if meta.ArchiveDate == "" {
		meta.ArchiveDate = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.registry.Upsert(ctx, meta); err != nil {
		return err
	}

	err = s.pub.Publish(ctx, events.TopicFileRegistrations, meta.Accession,
		events.TypeFileInternallyRegistered,
		events.FileInternallyRegistered{
			Accession:         meta.Accession,
			FileID:            meta.FileID,
			ObjectID:          meta.ObjectID,
			SecretID:          meta.SecretID,
			StorageAlias:      meta.StorageAlias,
			BucketID:          meta.BucketID,
			DecryptedSHA256:   meta.DecryptedSHA256,
			DecryptedSize:     meta.DecryptedSize,
			EncryptedSize:     meta.EncryptedSize,
			PartSize:          meta.PartSize,
			PartChecksumsMD5:  meta.PartChecksumsMD5,
			PartChecksumsSHA2: meta.PartChecksumsSHA2,
			ArchiveDate:       meta.ArchiveDate,
		})
	if err != nil {
		return err
	}

	metrics.FilesRegistered.WithLabelValues(s.permanentAlias).Inc()
	logger.InfoCtx(ctx, "file registered",
		logger.Accession(meta.Accession),
		logger.FileID(meta.FileID),
		logger.ObjectID(meta.ObjectID),
		logger.Bucket(permanent.Bucket))
	return nil
}

// StageRegisteredFile copies a registered file from permanent storage into a
// download bucket under the requested object id.
func (s *Service) StageRegisteredFile(ctx context.Context, accession, decryptedSHA256, targetObjectID, targetBucketID string) error {
	meta, err := s.registry.Get(ctx, accession)
	if errors.Is(err, store.ErrNotFound) {
		return &FileNotInRegistryError{Accession: accession}
	}
	if err != nil {
		return err
	}

	if decryptedSHA256 != meta.DecryptedSHA256 {
		return &ChecksumMismatchError{
			Accession: accession,
			Expected:  meta.DecryptedSHA256,
			Actual:    decryptedSHA256,
		}
	}

	permanent, err := s.aliases.Get(meta.StorageAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "registered file references unconfigured storage",
			logger.Accession(accession), logger.StorageAlias(meta.StorageAlias), logger.Err(err))
		return err
	}

	err = permanent.Storage.CopyObject(ctx, meta.BucketID, meta.ObjectID, targetBucketID, targetObjectID)
	if errors.Is(err, storage.ErrObjectNotFound) {
		lost := &FileInRegistryButNotInStorageError{
			Accession: accession,
			Bucket:    meta.BucketID,
			ObjectID:  meta.ObjectID,
		}
		logger.CriticalCtx(ctx, "registered file missing from permanent storage",
			logger.Accession(accession),
			logger.ObjectID(meta.ObjectID),
			logger.Bucket(meta.BucketID))
		return lost
	}
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file staged for download",
		logger.Accession(accession),
		logger.ObjectID(targetObjectID),
		logger.Bucket(targetBucketID))
	return nil
}

// DeleteFile forgets a file: best-effort delete of the permanent object,
// then the registry record and join halves, then the confirmation event.
// A missing object or record counts as already deleted.
func (s *Service) DeleteFile(ctx context.Context, accession string) error {
	meta, err := s.registry.Get(ctx, accession)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	registered := err == nil

	fileID := ""
	if registered {
		fileID = meta.FileID
		permanent, err := s.aliases.Get(meta.StorageAlias)
		if err != nil {
			logger.CriticalCtx(ctx, "registered file references unconfigured storage",
				logger.Accession(accession), logger.StorageAlias(meta.StorageAlias), logger.Err(err))
			return err
		}
		if err := permanent.Storage.DeleteObject(ctx, meta.BucketID, meta.ObjectID); err != nil {
			return err
		}
		if err := s.registry.Delete(ctx, accession); err != nil {
			return err
		}
	} else {
		// The accession may still hold an unregistered join half.
		mappings, err := s.accessions.FindBy(ctx, "accession", accession)
		if err != nil {
			return err
		}
		if len(mappings) > 0 {
			fileID = mappings[0].FileID
		}
	}

	return s.forgetFile(ctx, accession, fileID)
}

// DeleteFileByID forgets a file named by its pipeline id, resolving the
// accession through the join. An id the registry never joined still purges
// the pending upload half and confirms the deletion.
func (s *Service) DeleteFileByID(ctx context.Context, fileID string) error {
	mapping, err := s.accessions.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return s.forgetFile(ctx, "", fileID)
	}
	if err != nil {
		return err
	}
	return s.DeleteFile(ctx, mapping.Accession)
}

// forgetFile drops whatever join halves remain and publishes the
// confirmation, keyed by the file id when it is known.
func (s *Service) forgetFile(ctx context.Context, accession, fileID string) error {
	if fileID != "" {
		if err := s.pending.Delete(ctx, fileID); err != nil {
			return err
		}
		if err := s.accessions.Delete(ctx, fileID); err != nil {
			return err
		}
	}

	key := fileID
	if key == "" {
		key = accession
	}
	if err := s.pub.Publish(ctx, events.TopicFileDeletions, key,
		events.TypeFileDeleted, events.FileDeleted{FileID: key}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file deleted",
		logger.Accession(accession), logger.FileID(fileID))
	return nil
}

// StoreAccession records one half of the registration join. When the
// matching validated upload is already known, the registration runs
// immediately.
func (s *Service) StoreAccession(ctx context.Context, accession, fileID string) error {
	if err := s.accessions.Upsert(ctx, AccessionMapping{FileID: fileID, Accession: accession}); err != nil {
		return err
	}

	pending, err := s.pending.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.DebugCtx(ctx, "accession stored, awaiting upload",
			logger.Accession(accession), logger.FileID(fileID))
		return nil
	}
	if err != nil {
		return err
	}

	return s.RegisterFile(ctx, metadataFrom(pending, accession))
}

// HandleFileUpload records the other half of the join. When the accession is
// already known, the registration runs immediately.
func (s *Service) HandleFileUpload(ctx context.Context, upload PendingFileUpload) error {
	if err := s.pending.Upsert(ctx, upload); err != nil {
		return err
	}

	mapping, err := s.accessions.Get(ctx, upload.FileID)
	if errors.Is(err, store.ErrNotFound) {
		logger.DebugCtx(ctx, "upload stored, awaiting accession", logger.FileID(upload.FileID))
		return nil
	}
	if err != nil {
		return err
	}

	return s.RegisterFile(ctx, metadataFrom(upload, mapping.Accession))
}

// GetFile returns the registry record for one accession.
func (s *Service) GetFile(ctx context.Context, accession string) (FileMetadata, error) {
	meta, err := s.registry.Get(ctx, accession)
	if errors.Is(err, store.ErrNotFound) {
		return FileMetadata{}, &FileNotInRegistryError{Accession: accession}
	}
	return meta, err
}

func metadataFrom(upload PendingFileUpload, accession string) FileMetadata {
	return FileMetadata{
		Accession:         accession,
		FileID:            upload.FileID,
		ObjectID:          upload.ObjectID,
		SecretID:          upload.SecretID,
		StorageAlias:      upload.StorageAlias,
		BucketID:          upload.BucketID,
		DecryptedSHA256:   upload.DecryptedSHA256,
		DecryptedSize:     upload.DecryptedSize,
		EncryptedSize:     upload.EncryptedSize,
		PartSize:          upload.PartSize,
		PartChecksumsMD5:  upload.PartChecksumsMD5,
		PartChecksumsSHA2: upload.PartChecksumsSHA2,
	}
}
