package download

import (
	"context"
	"errors"
	"time"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/metrics"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
)

// Config carries the download-side tuning knobs.
type Config struct {
	// OutboxAlias names the staging storage downloads are served from.
	OutboxAlias string

	// DrsServerURI is the base of self URIs, e.g. "drs://archive.example/".
	DrsServerURI string

	// PresignedURLExpiresAfter is the validity of served download URLs;
	// URLExpirationBuffer is subtracted for the advertised cache lifetime.
	PresignedURLExpiresAfter time.Duration
	URLExpirationBuffer      time.Duration

	// OutboxCacheTimeout is how long an unaccessed outbox object lives.
	OutboxCacheTimeout time.Duration

	// StagingSpeedMBps estimates staging throughput for Retry-After.
	StagingSpeedMBps float64

	// RetryAfterMin and RetryAfterMax clamp the Retry-After estimate.
	RetryAfterMin time.Duration
	RetryAfterMax time.Duration
}

// Service implements the download controller.
type Service struct {
	objects store.DAO[DrsObject]
	aliases *storage.Aliases
	keys    keystore.KeyStore
	pub     events.Publisher
	cfg     Config
	now     func() time.Time
}

// NewService wires the download controller.
func NewService(
	objects store.DAO[DrsObject],
	aliases *storage.Aliases,
	keys keystore.KeyStore,
	pub events.Publisher,
	cfg Config,
) *Service {
	return &Service{
		objects: objects,
		aliases: aliases,
		keys:    keys,
		pub:     pub,
		cfg:     cfg,
		now:     time.Now,
	}
}

// AccessDrsObject resolves a DRS object to a presigned download URL. When
// the object is not staged in the outbox yet, a staging request is emitted
// and the caller gets a *RetryAccessLaterError sized to the expected
// staging duration.
func (s *Service) AccessDrsObject(ctx context.Context, id string) (Access, error) {
	obj, err := s.objects.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Access{}, &DrsObjectNotFoundError{ObjectID: id}
	}
	if err != nil {
		return Access{}, err
	}

	outbox, err := s.aliases.Get(s.cfg.OutboxAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "outbox storage alias not configured",
			logger.StorageAlias(s.cfg.OutboxAlias), logger.Err(err))
		return Access{}, err
	}

	staged, err := outbox.Storage.DoesObjectExist(ctx, outbox.Bucket, obj.ObjectID)
	if err != nil {
		return Access{}, err
	}
	if !staged {
		if err := s.pub.Publish(ctx, events.TopicFileStagingRequests, obj.ID,
			events.TypeNonStagedFileRequested,
			events.NonStagedFileRequested{
				FileID:          obj.ID,
				DecryptedSHA256: obj.DecryptedSHA256,
				TargetObjectID:  obj.ObjectID,
				TargetBucketID:  outbox.Bucket,
			}); err != nil {
			return Access{}, err
		}

		metrics.StagingRequests.WithLabelValues(s.cfg.OutboxAlias).Inc()
		retryAfter := s.retryAfter(obj.DecryptedSize)
		logger.InfoCtx(ctx, "staging requested",
			logger.FileID(obj.ID),
			logger.ObjectID(obj.ObjectID),
			"retry_after", retryAfter.String())
		return Access{}, &RetryAccessLaterError{RetryAfter: retryAfter}
	}

	url, err := outbox.Storage.PresignedDownloadURL(ctx, outbox.Bucket, obj.ObjectID, s.cfg.PresignedURLExpiresAfter)
	if err != nil {
		return Access{}, err
	}

	obj.LastAccessed = s.now().UTC()
	if err := s.objects.Upsert(ctx, obj); err != nil {
		return Access{}, err
	}

	if err := s.pub.Publish(ctx, events.TopicFileDownloads, obj.ID,
		events.TypeFileDownloadServed,
		events.FileDownloadServed{
			FileID:          obj.ID,
			DecryptedSHA256: obj.DecryptedSHA256,
			TargetBucketID:  outbox.Bucket,
		}); err != nil {
		return Access{}, err
	}

	metrics.DownloadsServed.WithLabelValues(s.cfg.OutboxAlias).Inc()
	logger.InfoCtx(ctx, "download served",
		logger.FileID(obj.ID),
		logger.ObjectID(obj.ObjectID),
		logger.Bucket(outbox.Bucket))

	return Access{
		Object:    s.drsBody(obj, url),
		URLMaxAge: s.urlMaxAge(),
	}, nil
}

// ServeEnvelope fetches the object's Crypt4GH envelope re-encrypted for the
// given recipient public key.
func (s *Service) ServeEnvelope(ctx context.Context, id string, recipientPublicKey []byte) ([]byte, error) {
	obj, err := s.objects.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &DrsObjectNotFoundError{ObjectID: id}
	}
	if err != nil {
		return nil, err
	}

	envelope, err := s.keys.FetchEnvelope(ctx, obj.SecretID, recipientPublicKey)
	if errors.Is(err, keystore.ErrSecretNotFound) {
		return nil, &EnvelopeNotFoundError{SecretID: obj.SecretID}
	}
	if err != nil {
		return nil, &APICommunicationError{Err: err}
	}
	return envelope, nil
}

// RegisterNewFile records a freshly archived file for download. A duplicate
// with equal content is a no-op; a conflicting duplicate is logged and
// dropped.
func (s *Service) RegisterNewFile(ctx context.Context, obj DrsObject) error {
	existing, err := s.objects.Get(ctx, obj.ID)
	if err == nil {
		if existing.equalContent(obj) {
			logger.DebugCtx(ctx, "file already registered for download", logger.FileID(obj.ID))
			return nil
		}
		logger.WarnCtx(ctx, "conflicting download registration dropped", logger.FileID(obj.ID))
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	now := s.now().UTC()
	obj.CreatedAt = now
	obj.LastAccessed = now
	if err := s.objects.Upsert(ctx, obj); err != nil {
		return err
	}

	if err := s.pub.Publish(ctx, events.TopicFileDownloads, obj.ID,
		events.TypeFileRegisteredForDownload,
		events.FileRegisteredForDownload{
			FileID:          obj.ID,
			DecryptedSHA256: obj.DecryptedSHA256,
			DrsURI:          s.cfg.DrsServerURI + obj.ID,
		}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file registered for download",
		logger.FileID(obj.ID), logger.ObjectID(obj.ObjectID))
	return nil
}

// DeleteFile forgets a file: best-effort secret delete, outbox object
// delete, record delete, then the confirmation event.
func (s *Service) DeleteFile(ctx context.Context, id string) error {
	obj, err := s.objects.Get(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	known := err == nil

	if known {
		if err := s.keys.DeleteSecret(ctx, obj.SecretID); err != nil {
			logger.WarnCtx(ctx, "failed to delete secret, continuing",
				logger.SecretID(obj.SecretID), logger.Err(err))
		}
		outbox, err := s.aliases.Get(s.cfg.OutboxAlias)
		if err != nil {
			logger.CriticalCtx(ctx, "outbox storage alias not configured",
				logger.StorageAlias(s.cfg.OutboxAlias), logger.Err(err))
			return err
		}
		if err := outbox.Storage.DeleteObject(ctx, outbox.Bucket, obj.ObjectID); err != nil {
			return err
		}
		if err := s.objects.Delete(ctx, id); err != nil {
			return err
		}
	}

	if err := s.pub.Publish(ctx, events.TopicFileDeletions, id,
		events.TypeFileDeleted, events.FileDeleted{FileID: id}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file forgotten", logger.FileID(id))
	return nil
}

// CleanupOutbox removes outbox objects whose DRS object has not been
// accessed within the cache timeout. Records are never deleted. An object
// with no matching record means registry and storage have diverged; it is
// reported and left alone.
func (s *Service) CleanupOutbox(ctx context.Context) error {
	outbox, err := s.aliases.Get(s.cfg.OutboxAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "outbox storage alias not configured",
			logger.StorageAlias(s.cfg.OutboxAlias), logger.Err(err))
		return err
	}

	objectIDs, err := outbox.Storage.ListObjectIDs(ctx, outbox.Bucket)
	if err != nil {
		return err
	}

	deadline := s.now().UTC().Add(-s.cfg.OutboxCacheTimeout)
	for _, objectID := range objectIDs {
		matches, err := s.objects.FindBy(ctx, "object_id", objectID)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			metrics.OutboxOrphanObjects.WithLabelValues(s.cfg.OutboxAlias).Inc()
			orphan := &CleanupError{Bucket: outbox.Bucket, ObjectID: objectID}
			logger.CriticalCtx(ctx, "orphan object in outbox bucket",
				logger.ObjectID(objectID),
				logger.Bucket(outbox.Bucket),
				logger.StorageAlias(s.cfg.OutboxAlias),
				logger.Err(orphan))
			continue
		}

		if matches[0].LastAccessed.After(deadline) {
			continue
		}
		if err := outbox.Storage.DeleteObject(ctx, outbox.Bucket, objectID); err != nil {
			return err
		}
		metrics.OutboxObjectsDeleted.WithLabelValues(s.cfg.OutboxAlias).Inc()
		logger.InfoCtx(ctx, "expired outbox object removed",
			logger.ObjectID(objectID), logger.Bucket(outbox.Bucket))
	}
	return nil
}

// retryAfter estimates how long staging will take, clamped to the
// configured bounds.
func (s *Service) retryAfter(decryptedSize int64) time.Duration {
	speed := s.cfg.StagingSpeedMBps
	if speed <= 0 {
		return s.cfg.RetryAfterMax
	}
	estimate := time.Duration(float64(decryptedSize) / (speed * 1e6) * float64(time.Second))
	if estimate < s.cfg.RetryAfterMin {
		return s.cfg.RetryAfterMin
	}
	if estimate > s.cfg.RetryAfterMax {
		return s.cfg.RetryAfterMax
	}
	return estimate
}

// urlMaxAge is the cache lifetime advertised with presigned URLs. The
// buffer keeps cached URLs from outliving their signature.
func (s *Service) urlMaxAge() time.Duration {
	maxAge := s.cfg.PresignedURLExpiresAfter - s.cfg.URLExpirationBuffer
	if maxAge < s.cfg.URLExpirationBuffer {
		maxAge = s.cfg.URLExpirationBuffer
	}
	return maxAge
}

func (s *Service) drsBody(obj DrsObject, url string) DrsObjectBody {
	return DrsObjectBody{
		ID:          obj.ID,
		SelfURI:     s.cfg.DrsServerURI + obj.ID,
		Size:        obj.EncryptedSize,
		CreatedTime: obj.CreatedAt,
		Checksums: []DrsChecksum{
			{Checksum: obj.DecryptedSHA256, Type: "sha-256"},
		},
		AccessMethods: []AccessMethod{
			{Type: "s3", AccessURL: AccessURL{URL: url}},
		},
	}
}
