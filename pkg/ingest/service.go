package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/fedarchive/genarc/internal/logger"
	"github.com/fedarchive/genarc/pkg/crypt4gh"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/store"
)

// Service implements the ingest pipeline. A duplicate ingest of a known file
// id is a logged no-op; everything else either validates the upload
// end-to-end or fails without announcing anything.
type Service struct {
	privateKey     [crypt4gh.KeySize]byte
	interrogations store.DAO[FileUnderInterrogation]
	keys           keystore.KeyStore
	pub            events.Publisher
}

// NewService wires the ingest service around the service's Crypt4GH private
// key.
func NewService(
	privateKey [crypt4gh.KeySize]byte,
	interrogations store.DAO[FileUnderInterrogation],
	keys keystore.KeyStore,
	pub events.Publisher,
) *Service {
	return &Service{
		privateKey:     privateKey,
		interrogations: interrogations,
		keys:           keys,
		pub:            pub,
	}
}

// IngestLegacy handles the legacy shape: one Crypt4GH payload carrying the
// upload metadata with the file secret embedded.
func (s *Service) IngestLegacy(ctx context.Context, encryptedPayload []byte) error {
	plaintext, err := crypt4gh.DecryptMessage(encryptedPayload, s.privateKey)
	if err != nil {
		return err
	}

	var payload legacyPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return &WrongDecryptedFormatError{Reason: "payload is not valid JSON"}
	}
	if err := checkMetadata(payload.UploadMetadata); err != nil {
		return err
	}
	secret, err := base64.StdEncoding.DecodeString(payload.FileSecret)
	if err != nil || len(secret) != crypt4gh.SessionKeySize {
		return &WrongDecryptedFormatError{Reason: "file_secret is not a base64 session key"}
	}

	exists, err := s.interrogations.Exists(ctx, payload.FileID)
	if err != nil {
		return err
	}
	if exists {
		logger.InfoCtx(ctx, "duplicate ingest ignored", logger.FileID(payload.FileID))
		return nil
	}

	secretID, err := s.keys.StoreSecret(ctx, secret)
	if err != nil {
		return &VaultCommunicationError{Err: err}
	}

	return s.announce(ctx, payload.UploadMetadata, secretID)
}

// IngestSecret handles the key half of a federated ingest: a Crypt4GH
// payload carrying just the file secret. Returns the deposit's secret id.
func (s *Service) IngestSecret(ctx context.Context, encryptedSecret []byte) (string, error) {
	secret, err := crypt4gh.DecryptMessage(encryptedSecret, s.privateKey)
	if err != nil {
		return "", err
	}
	if len(secret) != crypt4gh.SessionKeySize {
		return "", &WrongDecryptedFormatError{Reason: "decrypted secret is not a session key"}
	}

	secretID, err := s.keys.StoreSecret(ctx, secret)
	if err != nil {
		return "", &VaultCommunicationError{Err: err}
	}

	logger.InfoCtx(ctx, "file secret deposited", logger.SecretID(secretID))
	return secretID, nil
}

// IngestMetadata handles the metadata half of a federated ingest, referring
// to a secret already deposited via IngestSecret.
func (s *Service) IngestMetadata(ctx context.Context, metadata UploadMetadata, secretID string) error {
	if err := checkMetadata(metadata); err != nil {
		return err
	}
	if secretID == "" {
		return &WrongDecryptedFormatError{Reason: "secret_id is missing"}
	}

	exists, err := s.interrogations.Exists(ctx, metadata.FileID)
	if err != nil {
		return err
	}
	if exists {
		logger.InfoCtx(ctx, "duplicate ingest ignored", logger.FileID(metadata.FileID))
		return nil
	}

	return s.announce(ctx, metadata, secretID)
}

// announce records the file as under interrogation and publishes the
// validation event the registry acts on.
func (s *Service) announce(ctx context.Context, metadata UploadMetadata, secretID string) error {
	record := FileUnderInterrogation{
		ID:              metadata.FileID,
		State:           StateInbox,
		SecretID:        secretID,
		StorageAlias:    metadata.StorageAlias,
		BucketID:        metadata.BucketID,
		ObjectID:        metadata.ObjectID,
		DecryptedSize:   metadata.DecryptedSize,
		EncryptedSize:   metadata.EncryptedSize,
		DecryptedSHA256: metadata.DecryptedSHA256,
		UpdatedAt:       time.Now().UTC(),
	}
	if err := s.interrogations.Upsert(ctx, record); err != nil {
		return err
	}

	err := s.pub.Publish(ctx, events.TopicFileInterrogations, metadata.FileID,
		events.TypeFileUploadValidationSuccess,
		events.FileUploadValidationSuccess{
			FileID:            metadata.FileID,
			BoxID:             metadata.BoxID,
			SecretID:          secretID,
			StorageAlias:      metadata.StorageAlias,
			BucketID:          metadata.BucketID,
			ObjectID:          metadata.ObjectID,
			DecryptedSize:     metadata.DecryptedSize,
			EncryptedSize:     metadata.EncryptedSize,
			PartSize:          metadata.PartSize,
			PartChecksumsMD5:  metadata.PartChecksumsMD5,
			PartChecksumsSHA2: metadata.PartChecksumsSHA2,
			DecryptedSHA256:   metadata.DecryptedSHA256,
		})
	if err != nil {
		return err
	}

	logger.InfoCtx(ctx, "upload validated",
		logger.FileID(metadata.FileID),
		logger.SecretID(secretID),
		logger.StorageAlias(metadata.StorageAlias),
		logger.ObjectID(metadata.ObjectID))
	return nil
}

// checkMetadata rejects metadata that would poison downstream services.
func checkMetadata(m UploadMetadata) error {
	switch {
	case m.FileID == "":
		return &WrongDecryptedFormatError{Reason: "file_id is missing"}
	case m.ObjectID == "":
		return &WrongDecryptedFormatError{Reason: "object_id is missing"}
	case m.BucketID == "":
		return &WrongDecryptedFormatError{Reason: "bucket_id is missing"}
	case m.StorageAlias == "":
		return &WrongDecryptedFormatError{Reason: "s3_endpoint_alias is missing"}
	case m.DecryptedSHA256 == "":
		return &WrongDecryptedFormatError{Reason: "unencrypted_checksum is missing"}
	case m.DecryptedSize <= 0 || m.EncryptedSize <= 0:
		return &WrongDecryptedFormatError{Reason: "sizes must be positive"}
	}
	return nil
}
