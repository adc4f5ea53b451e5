package ingest

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/fedarchive/genarc/pkg/crypt4gh"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/store"
)

// fakeKeyStore records deposited secrets in memory.
type fakeKeyStore struct {
	secrets map[string][]byte
	nextID  int
	fail    bool
}

func newFakeKeyStore() *fakeKeyStore {
	return &fakeKeyStore{secrets: make(map[string][]byte)}
}

func (f *fakeKeyStore) StoreSecret(_ context.Context, fileSecret []byte) (string, error) {
	if f.fail {
		return "", errors.New("vault is down")
	}
	f.nextID++
	id := fmt.Sprintf("secret-%d", f.nextID)
	f.secrets[id] = append([]byte(nil), fileSecret...)
	return id, nil
}

func (f *fakeKeyStore) FetchEnvelope(_ context.Context, secretID string, _ []byte) ([]byte, error) {
	secret, ok := f.secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("no secret %s", secretID)
	}
	return secret, nil
}

func (f *fakeKeyStore) DeleteSecret(_ context.Context, secretID string) error {
	delete(f.secrets, secretID)
	return nil
}

type ingestFixture struct {
	svc            *Service
	interrogations *store.MemoryDAO[FileUnderInterrogation]
	keys           *fakeKeyStore
	outbox         *store.MemoryOutbox
	servicePublic  [crypt4gh.KeySize]byte
	fileSecret     []byte
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	public, private, err := crypt4gh.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	f := &ingestFixture{
		interrogations: store.NewMemoryDAO[FileUnderInterrogation](),
		keys:           newFakeKeyStore(),
		outbox:         store.NewMemoryOutbox(),
		servicePublic:  public,
		fileSecret:     make([]byte, crypt4gh.SessionKeySize),
	}
	for i := range f.fileSecret {
		f.fileSecret[i] = byte(i)
	}
	f.svc = NewService(private, f.interrogations, f.keys, events.NewOutboxPublisher(f.outbox))
	return f
}

func sampleMetadata() UploadMetadata {
	return UploadMetadata{
		FileID:            "examplefile001",
		ObjectID:          "object-001",
		BucketID:          "test-inbox",
		StorageAlias:      "test",
		PartSize:          16777216,
		DecryptedSize:     12345,
		EncryptedSize:     12357,
		PartChecksumsMD5:  []string{"9e107d9d372bb6826bd81d3542a419d6"},
		PartChecksumsSHA2: []string{"0677de3c3f7e6b1a9b9e38a0f6a5c4a3"},
		DecryptedSHA256:   "0677de3c3f7e6b1a9b9e38a0f6a5c4a3d096",
	}
}

func (f *ingestFixture) encryptLegacyPayload(t *testing.T, metadata UploadMetadata) []byte {
	t.Helper()

	payload := legacyPayload{
		UploadMetadata: metadata,
		FileSecret:     base64.StdEncoding.EncodeToString(f.fileSecret),
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	encrypted, err := crypt4gh.EncryptMessage(plaintext, f.servicePublic)
	if err != nil {
		t.Fatalf("EncryptMessage() error = %v", err)
	}
	return encrypted
}

func TestIngestLegacy(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	if err := f.svc.IngestLegacy(ctx, f.encryptLegacyPayload(t, sampleMetadata())); err != nil {
		t.Fatalf("IngestLegacy() error = %v", err)
	}

	record, err := f.svc.GetFile(ctx, "examplefile001")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if record.State != StateInbox {
		t.Errorf("State = %s, want %s", record.State, StateInbox)
	}
	if record.SecretID == "" {
		t.Error("SecretID not recorded")
	}
	if got := f.keys.secrets[record.SecretID]; string(got) != string(f.fileSecret) {
		t.Error("deposited secret differs from payload secret")
	}

	queued, err := f.outbox.All(ctx)
	if err != nil {
		t.Fatalf("outbox.All() error = %v", err)
	}
	if len(queued) != 1 || queued[0].Type != events.TypeFileUploadValidationSuccess {
		t.Fatalf("outbox = %+v, want one FileUploadValidationSuccess", queued)
	}
	var ev events.FileUploadValidationSuccess
	if err := json.Unmarshal(queued[0].Payload, &ev); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if ev.FileID != "examplefile001" || ev.StorageAlias != "test" || ev.EncryptedSize != 12357 {
		t.Errorf("event payload = %+v", ev)
	}

	t.Run("duplicate ingest is a no-op", func(t *testing.T) {
		if err := f.svc.IngestLegacy(ctx, f.encryptLegacyPayload(t, sampleMetadata())); err != nil {
			t.Fatalf("IngestLegacy() error = %v", err)
		}
		if len(f.keys.secrets) != 1 {
			t.Errorf("secrets deposited = %d, want 1", len(f.keys.secrets))
		}
		queued, _ := f.outbox.All(ctx)
		if len(queued) != 1 {
			t.Errorf("outbox rows = %d, want 1", len(queued))
		}
	})
}

func TestIngestLegacyFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong recipient key", func(t *testing.T) {
		f := newIngestFixture(t)
		otherPublic, _, err := crypt4gh.GenerateKeyPair()
		if err != nil {
			t.Fatalf("GenerateKeyPair() error = %v", err)
		}
		encrypted, err := crypt4gh.EncryptMessage([]byte(`{}`), otherPublic)
		if err != nil {
			t.Fatalf("EncryptMessage() error = %v", err)
		}

		err = f.svc.IngestLegacy(ctx, encrypted)
		var decryptErr *crypt4gh.DecryptionError
		if !errors.As(err, &decryptErr) {
			t.Errorf("IngestLegacy() error = %v, want *crypt4gh.DecryptionError", err)
		}
	})

	t.Run("payload is not metadata", func(t *testing.T) {
		f := newIngestFixture(t)
		encrypted, err := crypt4gh.EncryptMessage([]byte(`{"file_id":""}`), f.servicePublic)
		if err != nil {
			t.Fatalf("EncryptMessage() error = %v", err)
		}

		err = f.svc.IngestLegacy(ctx, encrypted)
		var formatErr *WrongDecryptedFormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("IngestLegacy() error = %v, want *WrongDecryptedFormatError", err)
		}
	})

	t.Run("key store down", func(t *testing.T) {
		f := newIngestFixture(t)
		f.keys.fail = true

		err := f.svc.IngestLegacy(ctx, f.encryptLegacyPayload(t, sampleMetadata()))
		var vaultErr *VaultCommunicationError
		if !errors.As(err, &vaultErr) {
			t.Fatalf("IngestLegacy() error = %v, want *VaultCommunicationError", err)
		}
		// No announcement without a deposited secret.
		queued, _ := f.outbox.All(ctx)
		if len(queued) != 0 {
			t.Errorf("outbox rows = %d, want 0", len(queued))
		}
	})
}

func TestFederatedIngest(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	encryptedSecret, err := crypt4gh.EncryptMessage(f.fileSecret, f.servicePublic)
	if err != nil {
		t.Fatalf("EncryptMessage() error = %v", err)
	}

	secretID, err := f.svc.IngestSecret(ctx, encryptedSecret)
	if err != nil {
		t.Fatalf("IngestSecret() error = %v", err)
	}
	if secretID == "" {
		t.Fatal("IngestSecret() returned empty secret id")
	}

	if err := f.svc.IngestMetadata(ctx, sampleMetadata(), secretID); err != nil {
		t.Fatalf("IngestMetadata() error = %v", err)
	}

	record, err := f.svc.GetFile(ctx, "examplefile001")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if record.SecretID != secretID {
		t.Errorf("SecretID = %s, want %s", record.SecretID, secretID)
	}

	t.Run("secret of wrong length", func(t *testing.T) {
		encrypted, err := crypt4gh.EncryptMessage([]byte("too short"), f.servicePublic)
		if err != nil {
			t.Fatalf("EncryptMessage() error = %v", err)
		}
		_, err = f.svc.IngestSecret(ctx, encrypted)
		var formatErr *WrongDecryptedFormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("IngestSecret() error = %v, want *WrongDecryptedFormatError", err)
		}
	})

	t.Run("metadata without secret id", func(t *testing.T) {
		m := sampleMetadata()
		m.FileID = "otherfile"
		err := f.svc.IngestMetadata(ctx, m, "")
		var formatErr *WrongDecryptedFormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("IngestMetadata() error = %v, want *WrongDecryptedFormatError", err)
		}
	})
}

func TestInterrogationStateMachine(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	if err := f.svc.IngestLegacy(ctx, f.encryptLegacyPayload(t, sampleMetadata())); err != nil {
		t.Fatalf("IngestLegacy() error = %v", err)
	}

	if err := f.svc.HandleReport(ctx, InterrogationReport{FileID: "examplefile001", Outcome: "pass"}); err != nil {
		t.Fatalf("HandleReport() error = %v", err)
	}
	record, _ := f.svc.GetFile(ctx, "examplefile001")
	if record.State != StateInterrogated || !record.Interrogated {
		t.Errorf("record = %+v, want interrogated", record)
	}
	if record.CanRemove {
		t.Error("CanRemove = true before archival")
	}

	if err := f.svc.Transition(ctx, "examplefile001", StateArchived); err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	record, _ = f.svc.GetFile(ctx, "examplefile001")
	if record.State != StateArchived || !record.CanRemove {
		t.Errorf("record = %+v, want archived and removable", record)
	}

	t.Run("stale state is ignored", func(t *testing.T) {
		if err := f.svc.Transition(ctx, "examplefile001", StateInbox); err != nil {
			t.Fatalf("Transition() error = %v", err)
		}
		record, _ := f.svc.GetFile(ctx, "examplefile001")
		if record.State != StateArchived {
			t.Errorf("State = %s after stale transition, want %s", record.State, StateArchived)
		}
	})

	t.Run("unknown file", func(t *testing.T) {
		err := f.svc.Transition(ctx, "missing", StateFailed)
		var notFound *FileNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("Transition() error = %v, want *FileNotFoundError", err)
		}
	})

	t.Run("bad outcome", func(t *testing.T) {
		err := f.svc.HandleReport(ctx, InterrogationReport{FileID: "examplefile001", Outcome: "maybe"})
		var formatErr *WrongDecryptedFormatError
		if !errors.As(err, &formatErr) {
			t.Errorf("HandleReport() error = %v, want *WrongDecryptedFormatError", err)
		}
	})
}
