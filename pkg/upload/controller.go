package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/metrics"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
)

// Controller implements the upload box and file upload operations. Boxes,
// uploads, and multipart bookkeeping live in three collections keyed by
// their natural ids; the inbox bucket is addressed through the box's
// storage alias.
type Controller struct {
	boxes   store.DAO[FileUploadBox]
	uploads store.DAO[FileUpload]
	details store.DAO[S3UploadDetails]
	aliases *storage.Aliases
	pub     events.Publisher
}

// NewController wires the upload controller.
func NewController(
	boxes store.DAO[FileUploadBox],
	uploads store.DAO[FileUpload],
	details store.DAO[S3UploadDetails],
	aliases *storage.Aliases,
	pub events.Publisher,
) *Controller {
	return &Controller{
		boxes:   boxes,
		uploads: uploads,
		details: details,
		aliases: aliases,
		pub:     pub,
	}
}

// CreateBox creates an unlocked, empty box bound to the given storage alias
// and returns its id. An unknown alias fails before anything is persisted.
func (c *Controller) CreateBox(ctx context.Context, storageAlias string) (string, error) {
	if _, err := c.aliases.Get(storageAlias); err != nil {
		logger.CriticalCtx(ctx, "box creation addressed unconfigured storage",
			logger.StorageAlias(storageAlias), logger.Err(err))
		return "", err
	}

	box := FileUploadBox{
		ID:           uuid.NewString(),
		StorageAlias: storageAlias,
	}
	if err := c.boxes.Upsert(ctx, box); err != nil {
		return "", err
	}

	if err := c.pub.Publish(ctx, events.TopicUploadBoxes, box.ID, events.TypeBoxCreated,
		events.BoxCreated{BoxID: box.ID, StorageAlias: storageAlias}); err != nil {
		return "", err
	}

	logger.InfoCtx(ctx, "upload box created",
		logger.BoxID(box.ID), logger.StorageAlias(storageAlias))
	return box.ID, nil
}

// GetBox returns the box or *BoxNotFoundError.
func (c *Controller) GetBox(ctx context.Context, boxID string) (FileUploadBox, error) {
	box, err := c.boxes.Get(ctx, boxID)
	if errors.Is(err, store.ErrNotFound) {
		return FileUploadBox{}, &BoxNotFoundError{BoxID: boxID}
	}
	return box, err
}

// ListFileIDs returns the ids of all file uploads in the box.
func (c *Controller) ListFileIDs(ctx context.Context, boxID string) ([]string, error) {
	if _, err := c.GetBox(ctx, boxID); err != nil {
		return nil, err
	}

	uploads, err := c.uploads.FindBy(ctx, "box_id", boxID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(uploads))
	for _, u := range uploads {
		ids = append(ids, u.ID)
	}
	return ids, nil
}

// LockBox locks the box against further changes. Locking an already locked
// box is a no-op. A box with incomplete uploads cannot be locked; the caller
// gets the offending file ids back in an *IncompleteUploadsError.
func (c *Controller) LockBox(ctx context.Context, boxID string) error {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if box.Locked {
		return nil
	}

	uploads, err := c.uploads.FindBy(ctx, "box_id", boxID)
	if err != nil {
		return err
	}
	var incomplete []string
	for _, u := range uploads {
		if !u.Completed {
			incomplete = append(incomplete, u.ID)
		}
	}
	if len(incomplete) > 0 {
		return &IncompleteUploadsError{BoxID: boxID, FileIDs: incomplete}
	}

	box.Locked = true
	if err := c.boxes.Upsert(ctx, box); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "upload box locked", logger.BoxID(boxID))
	return c.publishBoxUpdated(ctx, box)
}

// UnlockBox reopens a locked box. Unlocking an unlocked box is a no-op.
func (c *Controller) UnlockBox(ctx context.Context, boxID string) error {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if !box.Locked {
		return nil
	}

	box.Locked = false
	if err := c.boxes.Upsert(ctx, box); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "upload box unlocked", logger.BoxID(boxID))
	return c.publishBoxUpdated(ctx, box)
}

// InitiateFileUpload registers a new file upload in the box and starts the
// backing multipart upload. The returned file id doubles as the object key
// in the inbox bucket.
//
// A registration left without multipart details marks an attempt that died
// mid-initiate. Retrying the alias resumes it under the same file id: either
// the multipart upload starts cleanly this time, or the storage still holds
// the stray upload from the crash, in which case the registration is deleted
// and the caller gets an *OrphanedMultipartUploadError. The attempt after
// that starts over under a fresh id while an operator aborts the stray
// upload using the logged id.
func (c *Controller) InitiateFileUpload(ctx context.Context, boxID, alias, checksum string, size int64) (string, error) {
	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return "", err
	}
	if box.Locked {
		return "", &LockedBoxError{BoxID: boxID}
	}

	endpoint, err := c.aliases.Get(box.StorageAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "box references unconfigured storage",
			logger.BoxID(boxID), logger.StorageAlias(box.StorageAlias), logger.Err(err))
		return "", err
	}

	existing, err := c.uploads.FindBy(ctx, "box_id", boxID)
	if err != nil {
		return "", err
	}
	for _, u := range existing {
		if u.Alias != alias {
			continue
		}
		_, derr := c.details.Get(ctx, u.ID)
		if derr == nil || u.Completed {
			return "", &FileUploadAlreadyExistsError{BoxID: boxID, Alias: alias}
		}
		if !errors.Is(derr, store.ErrNotFound) {
			return "", derr
		}

		logger.WarnCtx(ctx, "resuming interrupted file upload registration",
			logger.BoxID(boxID), logger.FileID(u.ID))
		u.Checksum = checksum
		u.Size = size
		if err := c.uploads.Upsert(ctx, u); err != nil {
			return "", err
		}
		if err := c.startMultipart(ctx, box, endpoint, u); err != nil {
			return "", err
		}
		return u.ID, nil
	}

	upload := FileUpload{
		ID:       uuid.NewString(),
		BoxID:    boxID,
		Alias:    alias,
		Checksum: checksum,
		Size:     size,
	}
	if err := c.uploads.Upsert(ctx, upload); err != nil {
		return "", err
	}
	if err := c.startMultipart(ctx, box, endpoint, upload); err != nil {
		return "", err
	}
	return upload.ID, nil
}

// startMultipart starts the backing multipart upload for the registration's
// key and records its details. A refusal to start rolls the registration
// back; an in-progress upload on the key is the stray from an interrupted
// attempt and surfaces as *OrphanedMultipartUploadError. Failing to record
// the details leaves the detailless registration for the next attempt to
// resume.
func (c *Controller) startMultipart(ctx context.Context, box FileUploadBox, endpoint storage.Endpoint, upload FileUpload) error {
	s3UploadID, err := endpoint.Storage.InitMultipartUpload(ctx, endpoint.Bucket, upload.ID)
	if err != nil {
		if delErr := c.uploads.Delete(ctx, upload.ID); delErr != nil {
			logger.ErrorCtx(ctx, "failed to roll back file upload registration",
				logger.FileID(upload.ID), logger.Err(delErr))
		}
		if errors.Is(err, storage.ErrMultipartInProgress) {
			logger.CriticalCtx(ctx, "orphaned multipart upload blocks file upload",
				logger.FileID(upload.ID), logger.Bucket(endpoint.Bucket), logger.Err(err))
			return &OrphanedMultipartUploadError{
				FileID: upload.ID,
				Bucket: endpoint.Bucket,
				Err:    err,
			}
		}
		return fmt.Errorf("failed to start multipart upload for file %s: %w", upload.ID, err)
	}

	if err := c.details.Upsert(ctx, S3UploadDetails{
		ID:           upload.ID,
		StorageAlias: box.StorageAlias,
		S3UploadID:   s3UploadID,
		InitiatedAt:  time.Now().UTC(),
	}); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file upload initiated",
		logger.BoxID(box.ID),
		logger.FileID(upload.ID),
		logger.UploadID(s3UploadID),
		logger.Size(upload.Size))
	return nil
}

// GetPartUploadURL returns a presigned URL for uploading one part of the
// file. A multipart upload the storage has forgotten surfaces as
// *S3UploadNotFoundError; the client must remove the upload and start over.
func (c *Controller) GetPartUploadURL(ctx context.Context, boxID, fileID string, partNumber int32) (string, error) {
	upload, err := c.getFileUpload(ctx, boxID, fileID)
	if err != nil {
		return "", err
	}

	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return "", err
	}
	if box.Locked {
		return "", &LockedBoxError{BoxID: boxID}
	}

	details, err := c.details.Get(ctx, upload.ID)
	if errors.Is(err, store.ErrNotFound) {
		return "", &S3UploadNotFoundError{FileID: fileID}
	}
	if err != nil {
		return "", err
	}

	endpoint, err := c.aliases.Get(details.StorageAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "upload references unconfigured storage",
			logger.FileID(fileID), logger.StorageAlias(details.StorageAlias), logger.Err(err))
		return "", err
	}

	url, err := endpoint.Storage.PartUploadURL(ctx, details.S3UploadID, endpoint.Bucket, fileID, partNumber)
	if errors.Is(err, storage.ErrUploadNotFound) {
		return "", &S3UploadNotFoundError{FileID: fileID, S3UploadID: details.S3UploadID}
	}
	if err != nil {
		return "", err
	}

	logger.DebugCtx(ctx, "part upload URL issued",
		logger.FileID(fileID),
		logger.UploadID(details.S3UploadID),
		logger.PartNumber(int(partNumber)))
	return url, nil
}

// CompleteFileUpload finishes the multipart upload and marks the file upload
// complete. Completing an already completed upload is a no-op. A completion
// retried after a crash converges: if the storage has forgotten the upload
// but the object exists, the earlier attempt went through.
func (c *Controller) CompleteFileUpload(ctx context.Context, boxID, fileID string) error {
	upload, err := c.getFileUpload(ctx, boxID, fileID)
	if err != nil {
		return err
	}

	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if box.Locked {
		return &LockedBoxError{BoxID: boxID}
	}

	if upload.Completed {
		// Converged already; only the derived box stats might lag.
		return c.refreshBoxStats(ctx, box)
	}

	details, err := c.details.Get(ctx, upload.ID)
	if errors.Is(err, store.ErrNotFound) {
		return &S3UploadNotFoundError{FileID: fileID}
	}
	if err != nil {
		return err
	}

	endpoint, err := c.aliases.Get(details.StorageAlias)
	if err != nil {
		logger.CriticalCtx(ctx, "upload references unconfigured storage",
			logger.FileID(fileID), logger.StorageAlias(details.StorageAlias), logger.Err(err))
		return err
	}

	if err := endpoint.Storage.CompleteMultipartUpload(ctx, details.S3UploadID, endpoint.Bucket, fileID); err != nil {
		if errors.Is(err, storage.ErrUploadNotFound) {
			return &S3UploadNotFoundError{FileID: fileID, S3UploadID: details.S3UploadID}
		}
		return &UploadCompletionError{FileID: fileID, Err: err}
	}

	now := time.Now().UTC()
	details.CompletedAt = &now
	if err := c.details.Upsert(ctx, details); err != nil {
		return err
	}

	upload.Completed = true
	if err := c.uploads.Upsert(ctx, upload); err != nil {
		return err
	}

	metrics.UploadsCompleted.WithLabelValues(details.StorageAlias).Inc()
	logger.InfoCtx(ctx, "file upload completed",
		logger.BoxID(boxID),
		logger.FileID(fileID),
		logger.UploadID(details.S3UploadID))

	return c.refreshBoxStats(ctx, box)
}

// RemoveFileUpload removes a file upload from its box. A completed upload's
// inbox object is deleted; an in-flight upload's multipart upload is
// aborted. The bookkeeping rows go last so a crash mid-removal leaves a
// retryable state, never an untracked object.
func (c *Controller) RemoveFileUpload(ctx context.Context, boxID, fileID string) error {
	upload, err := c.getFileUpload(ctx, boxID, fileID)
	if err != nil {
		return err
	}

	box, err := c.GetBox(ctx, boxID)
	if err != nil {
		return err
	}
	if box.Locked {
		return &LockedBoxError{BoxID: boxID}
	}

	details, err := c.details.Get(ctx, upload.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	hasDetails := err == nil

	if hasDetails {
		endpoint, err := c.aliases.Get(details.StorageAlias)
		if err != nil {
			logger.CriticalCtx(ctx, "upload references unconfigured storage",
				logger.FileID(fileID), logger.StorageAlias(details.StorageAlias), logger.Err(err))
			return err
		}

		if upload.Completed {
			if err := endpoint.Storage.DeleteObject(ctx, endpoint.Bucket, fileID); err != nil {
				return err
			}
		} else {
			if err := endpoint.Storage.AbortMultipartUpload(ctx, details.S3UploadID, endpoint.Bucket, fileID); err != nil {
				return err
			}
		}

		if err := c.details.Delete(ctx, fileID); err != nil {
			return err
		}
	}

	if err := c.uploads.Delete(ctx, fileID); err != nil {
		return err
	}

	logger.InfoCtx(ctx, "file upload removed",
		logger.BoxID(boxID), logger.FileID(fileID))
	return c.refreshBoxStats(ctx, box)
}

// getFileUpload loads the upload and checks it belongs to the box.
func (c *Controller) getFileUpload(ctx context.Context, boxID, fileID string) (FileUpload, error) {
	upload, err := c.uploads.Get(ctx, fileID)
	if errors.Is(err, store.ErrNotFound) {
		return FileUpload{}, &FileUploadNotFoundError{BoxID: boxID, FileID: fileID}
	}
	if err != nil {
		return FileUpload{}, err
	}
	if upload.BoxID != boxID {
		return FileUpload{}, &FileUploadNotFoundError{BoxID: boxID, FileID: fileID}
	}
	return upload, nil
}

// refreshBoxStats recomputes the box's derived size and file count from the
// completed uploads. Stats are always rebuilt from scratch, never
// incremented, so retried operations cannot double-count. The box is only
// persisted, and an update only published, when something changed.
func (c *Controller) refreshBoxStats(ctx context.Context, box FileUploadBox) error {
	uploads, err := c.uploads.FindBy(ctx, "box_id", box.ID)
	if err != nil {
		return err
	}

	var size, count int64
	for _, u := range uploads {
		if u.Completed {
			size += u.Size
			count++
		}
	}

	if size == box.Size && count == box.FileCount {
		return nil
	}

	box.Size = size
	box.FileCount = count
	if err := c.boxes.Upsert(ctx, box); err != nil {
		return err
	}
	return c.publishBoxUpdated(ctx, box)
}

func (c *Controller) publishBoxUpdated(ctx context.Context, box FileUploadBox) error {
	return c.pub.Publish(ctx, events.TopicUploadBoxes, box.ID, events.TypeBoxUpdated,
		events.BoxUpdated{
			BoxID:     box.ID,
			Locked:    box.Locked,
			Size:      box.Size,
			FileCount: box.FileCount,
		})
}
