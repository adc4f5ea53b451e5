package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/fedarchive/genarc/internal/telemetry"
)

// S3Config describes one S3-compatible endpoint.
type S3Config struct {
	// Endpoint is the base URL of the S3 endpoint. Empty means AWS.
	Endpoint string

	// Region is the S3 region. S3-compatible backends usually accept any value.
	Region string

	// AccessKeyID and SecretAccessKey are static credentials for the endpoint.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle selects path-style addressing, required by MinIO and
	// most self-hosted backends.
	ForcePathStyle bool

	// PartURLExpiresAfter is the validity of presigned part-upload URLs.
	// Default: 1 hour.
	PartURLExpiresAfter time.Duration
}

// S3Storage implements ObjectStorage on top of one S3 endpoint.
//
// The implementation holds no per-upload state: multipart bookkeeping lives
// on the backend and in the owning service's document store, so any instance
// can serve any request.
type S3Storage struct {
	client  *s3.Client
	presign *s3.PresignClient
	partTTL time.Duration
}

// NewS3Client creates an S3 client from configuration parameters.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return client, nil
}

// NewS3Storage creates an ObjectStorage bound to the configured endpoint.
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client, err := NewS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewS3StorageFromClient(client, cfg.PartURLExpiresAfter), nil
}

// NewS3StorageFromClient wraps an existing client, mainly for tests against
// local S3 stand-ins.
func NewS3StorageFromClient(client *s3.Client, partTTL time.Duration) *S3Storage {
	if partTTL == 0 {
		partTTL = time.Hour
	}
	return &S3Storage{
		client:  client,
		presign: s3.NewPresignClient(client),
		partTTL: partTTL,
	}
}

// InitMultipartUpload starts a multipart upload for bucket/object.
func (s *S3Storage) InitMultipartUpload(ctx context.Context, bucket, object string) (uploadID string, err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, "init_multipart", bucket, object)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	// The backend happily keeps several concurrent uploads per key; the
	// pipeline treats that as a bookkeeping fault, so probe first.
	existing, err := s.findMultipartUpload(ctx, bucket, object)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return "", fmt.Errorf("%w: %s/%s (upload id %s)", ErrMultipartInProgress, bucket, object, existing)
	}

	out, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		return "", fmt.Errorf("failed to initiate multipart upload for %s/%s: %w", bucket, object, err)
	}

	return aws.ToString(out.UploadId), nil
}

// findMultipartUpload returns the upload id of an in-progress multipart
// upload for the exact key, or "".
func (s *S3Storage) findMultipartUpload(ctx context.Context, bucket, object string) (string, error) {
	out, err := s.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(bucket),
		Prefix: aws.String(object),
	})
	if err != nil {
		return "", fmt.Errorf("failed to list multipart uploads in %s: %w", bucket, err)
	}
	for _, u := range out.Uploads {
		if aws.ToString(u.Key) == object {
			return aws.ToString(u.UploadId), nil
		}
	}
	return "", nil
}

// PartUploadURL returns a presigned PUT URL for one part.
func (s *S3Storage) PartUploadURL(ctx context.Context, uploadID, bucket, object string, partNumber int32) (string, error) {
	// Probe the upload first so an expired or aborted upload surfaces as
	// ErrUploadNotFound instead of a URL that can never succeed.
	_, err := s.client.ListParts(ctx, &s3.ListPartsInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(object),
		UploadId: aws.String(uploadID),
		MaxParts: aws.Int32(1),
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return "", fmt.Errorf("%w: %s for %s/%s", ErrUploadNotFound, uploadID, bucket, object)
		}
		return "", fmt.Errorf("failed to check multipart upload %s: %w", uploadID, err)
	}

	req, err := s.presign.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(bucket),
		Key:        aws.String(object),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(s.partTTL))
	if err != nil {
		return "", fmt.Errorf("failed to presign part %d of upload %s: %w", partNumber, uploadID, err)
	}

	return req.URL, nil
}

// CompleteMultipartUpload finishes the upload from the parts recorded on the
// backend.
func (s *S3Storage) CompleteMultipartUpload(ctx context.Context, uploadID, bucket, object string) (err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, "complete_multipart", bucket, object,
		telemetry.UploadID(uploadID))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	parts, err := s.listCompletedParts(ctx, uploadID, bucket, object)
	if err != nil {
		if isNoSuchUpload(err) {
			return s.completeAfterCrash(ctx, uploadID, bucket, object)
		}
		return fmt.Errorf("failed to list parts of upload %s: %w", uploadID, err)
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(object),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: parts,
		},
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return s.completeAfterCrash(ctx, uploadID, bucket, object)
		}
		return fmt.Errorf("failed to complete multipart upload %s for %s/%s: %w", uploadID, bucket, object, err)
	}

	return nil
}

// completeAfterCrash resolves a NoSuchUpload during completion: if the
// object exists the previous attempt succeeded before the caller crashed.
func (s *S3Storage) completeAfterCrash(ctx context.Context, uploadID, bucket, object string) error {
	exists, err := s.DoesObjectExist(ctx, bucket, object)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return fmt.Errorf("%w: %s for %s/%s", ErrUploadNotFound, uploadID, bucket, object)
}

func (s *S3Storage) listCompletedParts(ctx context.Context, uploadID, bucket, object string) ([]types.CompletedPart, error) {
	var parts []types.CompletedPart

	paginator := s3.NewListPartsPaginator(s.client, &s3.ListPartsInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(object),
		UploadId: aws.String(uploadID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, p := range page.Parts {
			parts = append(parts, types.CompletedPart{
				ETag:       p.ETag,
				PartNumber: p.PartNumber,
			})
		}
	}

	return parts, nil
}

// AbortMultipartUpload aborts the upload; an unknown upload is swallowed.
func (s *S3Storage) AbortMultipartUpload(ctx context.Context, uploadID, bucket, object string) (err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, "abort_multipart", bucket, object,
		telemetry.UploadID(uploadID))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	_, err = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(object),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		if isNoSuchUpload(err) {
			return nil
		}
		return &AbortError{Bucket: bucket, Object: object, UploadID: uploadID, Err: err}
	}
	return nil
}

// GetObjectSize returns the object's size in bytes.
func (s *S3Storage) GetObjectSize(ctx context.Context, bucket, object string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, object)
		}
		return 0, fmt.Errorf("failed to head %s/%s: %w", bucket, object, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// DoesObjectExist reports whether the object exists.
func (s *S3Storage) DoesObjectExist(ctx context.Context, bucket, object string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s/%s: %w", bucket, object, err)
	}
	return true, nil
}

// CopyObject copies the object; an existing destination is a no-op.
func (s *S3Storage) CopyObject(ctx context.Context, srcBucket, srcObject, dstBucket, dstObject string) (err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, "copy", dstBucket, dstObject)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	exists, err := s.DoesObjectExist(ctx, dstBucket, dstObject)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dstBucket),
		Key:        aws.String(dstObject),
		CopySource: aws.String(url.PathEscape(srcBucket + "/" + srcObject)),
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%w: %s/%s", ErrObjectNotFound, srcBucket, srcObject)
		}
		return &CopyError{SrcBucket: srcBucket, SrcObject: srcObject, DstBucket: dstBucket, DstObject: dstObject, Err: err}
	}

	return nil
}

// DeleteObject removes the object; deleting a missing object is a no-op.
func (s *S3Storage) DeleteObject(ctx context.Context, bucket, object string) (err error) {
	ctx, span := telemetry.StartStorageSpan(ctx, "delete", bucket, object)
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, object, err)
	}
	return nil
}

// PresignedDownloadURL returns a presigned GET URL.
func (s *S3Storage) PresignedDownloadURL(ctx context.Context, bucket, object string, expiresAfter time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(object),
	}, s3.WithPresignExpires(expiresAfter))
	if err != nil {
		return "", fmt.Errorf("failed to presign download of %s/%s: %w", bucket, object, err)
	}
	return req.URL, nil
}

// ListObjectIDs returns all object keys in the bucket.
func (s *S3Storage) ListObjectIDs(ctx context.Context, bucket string) ([]string, error) {
	var ids []string

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects in %s: %w", bucket, err)
		}
		for _, obj := range page.Contents {
			ids = append(ids, aws.ToString(obj.Key))
		}
	}

	return ids, nil
}

// isNoSuchUpload reports whether err means the multipart upload id is
// unknown to the backend.
func isNoSuchUpload(err error) bool {
	var nsu *types.NoSuchUpload
	if errors.As(err, &nsu) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "NoSuchUpload"
}

// isNotFound reports whether err means the addressed object (or bucket key)
// does not exist. HeadObject reports 404 as types.NotFound, GetObject and
// CopyObject as NoSuchKey.
func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NotFound", "NoSuchKey", "404":
			return true
		}
	}
	return false
}
