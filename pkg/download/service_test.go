package download

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/fedarchive/genarc/pkg/auth"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
)

type fakeKeyStore struct {
	envelopes map[string][]byte
	deleted   []string
	fail      bool
}

func (f *fakeKeyStore) StoreSecret(_ context.Context, _ []byte) (string, error) {
	return "", errors.New("not implemented")
}

func (f *fakeKeyStore) FetchEnvelope(_ context.Context, secretID string, _ []byte) ([]byte, error) {
	if f.fail {
		return nil, errors.New("vault is down")
	}
	envelope, ok := f.envelopes[secretID]
	if !ok {
		return nil, fmt.Errorf("fetch envelope: %w", keystore.ErrSecretNotFound)
	}
	return envelope, nil
}

func (f *fakeKeyStore) DeleteSecret(_ context.Context, secretID string) error {
	f.deleted = append(f.deleted, secretID)
	return nil
}

type downloadFixture struct {
	svc     *Service
	objects *store.MemoryDAO[DrsObject]
	outbox  *storage.MemoryStorage
	queue   *store.MemoryOutbox
	keys    *fakeKeyStore
}

func testConfig() Config {
	return Config{
		OutboxAlias:              "test",
		DrsServerURI:             "drs://archive.example/",
		PresignedURLExpiresAfter: time.Hour,
		URLExpirationBuffer:      5 * time.Minute,
		OutboxCacheTimeout:       7 * 24 * time.Hour,
		StagingSpeedMBps:         100,
		RetryAfterMin:            5 * time.Second,
		RetryAfterMax:            5 * time.Minute,
	}
}

func newDownloadFixture(t *testing.T) *downloadFixture {
	t.Helper()

	f := &downloadFixture{
		objects: store.NewMemoryDAO[DrsObject](),
		outbox:  storage.NewMemoryStorage(),
		queue:   store.NewMemoryOutbox(),
		keys:    &fakeKeyStore{envelopes: make(map[string][]byte)},
	}
	aliases := storage.NewAliases(map[string]storage.Endpoint{
		"test": {Storage: f.outbox, Bucket: "test-outbox"},
	})
	f.svc = NewService(f.objects, aliases, f.keys, events.NewOutboxPublisher(f.queue), testConfig())
	return f
}

func sampleObject() DrsObject {
	return DrsObject{
		ID:              "examplefile001",
		Accession:       "EGAF001",
		ObjectID:        "object-001",
		SecretID:        "secret-1",
		StorageAlias:    "test",
		DecryptedSHA256: "0677de3c3f7e6b1a9b9e38a0f6a5c4a3d096",
		DecryptedSize:   12345,
		EncryptedSize:   12357,
	}
}

func (f *downloadFixture) countEvents(t *testing.T, eventType string) int {
	t.Helper()
	queued, err := f.queue.All(context.Background())
	if err != nil {
		t.Fatalf("queue.All() error = %v", err)
	}
	var n int
	for _, ev := range queued {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

func TestAccessDrsObject(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)
	if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}

	t.Run("unstaged object defers with staging request", func(t *testing.T) {
		_, err := f.svc.AccessDrsObject(ctx, "examplefile001")
		var retry *RetryAccessLaterError
		if !errors.As(err, &retry) {
			t.Fatalf("AccessDrsObject() error = %v, want *RetryAccessLaterError", err)
		}
		// 12345 bytes at 100 MB/s is far below the 5s floor.
		if retry.RetryAfter != 5*time.Second {
			t.Errorf("RetryAfter = %s, want 5s", retry.RetryAfter)
		}
		if got := f.countEvents(t, events.TypeNonStagedFileRequested); got != 1 {
			t.Errorf("NonStagedFileRequested events = %d, want 1", got)
		}

		queued, err := f.queue.All(ctx)
		if err != nil {
			t.Fatalf("queue.All() error = %v", err)
		}
		for _, ev := range queued {
			if ev.Type != events.TypeNonStagedFileRequested {
				continue
			}
			if ev.Key != "examplefile001" {
				t.Errorf("staging request key = %s, want the file id", ev.Key)
			}
			var req events.NonStagedFileRequested
			if err := json.Unmarshal(ev.Payload, &req); err != nil {
				t.Fatalf("payload does not decode: %v", err)
			}
			if req.FileID != "examplefile001" || req.TargetObjectID != "object-001" {
				t.Errorf("staging request = %+v", req)
			}
		}
	})

	t.Run("staged object is served", func(t *testing.T) {
		f.outbox.PutObject("test-outbox", "object-001", make([]byte, 12357))

		before := f.svc.now().UTC()
		access, err := f.svc.AccessDrsObject(ctx, "examplefile001")
		if err != nil {
			t.Fatalf("AccessDrsObject() error = %v", err)
		}

		if access.Object.Size != 12357 {
			t.Errorf("Size = %d, want encrypted size 12357", access.Object.Size)
		}
		if access.Object.SelfURI != "drs://archive.example/examplefile001" {
			t.Errorf("SelfURI = %s", access.Object.SelfURI)
		}
		if len(access.Object.AccessMethods) != 1 || access.Object.AccessMethods[0].Type != "s3" {
			t.Errorf("AccessMethods = %+v, want one s3 method", access.Object.AccessMethods)
		}
		if want := 55 * time.Minute; access.URLMaxAge != want {
			t.Errorf("URLMaxAge = %s, want %s", access.URLMaxAge, want)
		}
		if got := f.countEvents(t, events.TypeFileDownloadServed); got != 1 {
			t.Errorf("FileDownloadServed events = %d, want 1", got)
		}

		obj, _ := f.objects.Get(ctx, "examplefile001")
		if obj.LastAccessed.Before(before.Add(-time.Millisecond)) {
			t.Errorf("LastAccessed = %s not advanced past %s", obj.LastAccessed, before)
		}
	})

	t.Run("unknown object", func(t *testing.T) {
		_, err := f.svc.AccessDrsObject(ctx, "missing")
		var notFound *DrsObjectNotFoundError
		if !errors.As(err, &notFound) {
			t.Errorf("AccessDrsObject() error = %v, want *DrsObjectNotFoundError", err)
		}
	})
}

func TestRetryAfterClamping(t *testing.T) {
	f := newDownloadFixture(t)

	tests := []struct {
		name string
		size int64
		want time.Duration
	}{
		{"small file hits the floor", 12345, 5 * time.Second},
		{"large file is estimated", 3_000_000_000, 30 * time.Second},
		{"huge file hits the ceiling", 1_000_000_000_000, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.svc.retryAfter(tt.size); got != tt.want {
				t.Errorf("retryAfter(%d) = %s, want %s", tt.size, got, tt.want)
			}
		})
	}
}

func TestRegisterNewFileIdempotence(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)

	if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}
	if got := f.countEvents(t, events.TypeFileRegisteredForDownload); got != 1 {
		t.Fatalf("FileRegisteredForDownload events = %d, want 1", got)
	}

	t.Run("equal duplicate is a no-op", func(t *testing.T) {
		if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
			t.Fatalf("RegisterNewFile() error = %v", err)
		}
		if got := f.countEvents(t, events.TypeFileRegisteredForDownload); got != 1 {
			t.Errorf("FileRegisteredForDownload events = %d, want 1", got)
		}
	})

	t.Run("conflicting duplicate is dropped", func(t *testing.T) {
		conflicting := sampleObject()
		conflicting.DecryptedSHA256 = "different"
		if err := f.svc.RegisterNewFile(ctx, conflicting); err != nil {
			t.Fatalf("RegisterNewFile() error = %v, want nil (drop)", err)
		}
		obj, _ := f.objects.Get(ctx, "examplefile001")
		if obj.DecryptedSHA256 != sampleObject().DecryptedSHA256 {
			t.Error("conflicting registration overwrote the record")
		}
	})
}

func TestServeEnvelope(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)
	if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}
	f.keys.envelopes["secret-1"] = []byte("sealed session key")

	envelope, err := f.svc.ServeEnvelope(ctx, "examplefile001", []byte("recipient-pk"))
	if err != nil {
		t.Fatalf("ServeEnvelope() error = %v", err)
	}
	if string(envelope) != "sealed session key" {
		t.Errorf("envelope = %q", envelope)
	}

	t.Run("missing secret", func(t *testing.T) {
		delete(f.keys.envelopes, "secret-1")
		_, err := f.svc.ServeEnvelope(ctx, "examplefile001", []byte("recipient-pk"))
		var noEnvelope *EnvelopeNotFoundError
		if !errors.As(err, &noEnvelope) {
			t.Errorf("ServeEnvelope() error = %v, want *EnvelopeNotFoundError", err)
		}
	})

	t.Run("key store down", func(t *testing.T) {
		f.keys.fail = true
		defer func() { f.keys.fail = false }()
		_, err := f.svc.ServeEnvelope(ctx, "examplefile001", []byte("recipient-pk"))
		var apiErr *APICommunicationError
		if !errors.As(err, &apiErr) {
			t.Errorf("ServeEnvelope() error = %v, want *APICommunicationError", err)
		}
	})
}

func TestDeleteFile(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)
	if err := f.svc.RegisterNewFile(ctx, sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}
	f.outbox.PutObject("test-outbox", "object-001", []byte("payload"))

	if err := f.svc.DeleteFile(ctx, "examplefile001"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}

	if len(f.keys.deleted) != 1 || f.keys.deleted[0] != "secret-1" {
		t.Errorf("deleted secrets = %v, want [secret-1]", f.keys.deleted)
	}
	exists, _ := f.outbox.DoesObjectExist(ctx, "test-outbox", "object-001")
	if exists {
		t.Error("outbox object survived deletion")
	}
	if f.objects.Len() != 0 {
		t.Error("DRS object record survived deletion")
	}
	if got := f.countEvents(t, events.TypeFileDeleted); got != 1 {
		t.Errorf("FileDeleted events = %d, want 1", got)
	}
}

func TestCleanupOutbox(t *testing.T) {
	ctx := context.Background()
	f := newDownloadFixture(t)

	now := time.Now().UTC()
	f.svc.now = func() time.Time { return now }

	cached := sampleObject()
	cached.ID = "cached"
	cached.ObjectID = "cached-object"
	if err := f.svc.RegisterNewFile(ctx, cached); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}

	expired := sampleObject()
	expired.ID = "expired"
	expired.ObjectID = "expired-object"
	if err := f.svc.RegisterNewFile(ctx, expired); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}
	stale, _ := f.objects.Get(ctx, "expired")
	stale.LastAccessed = now.Add(-testConfig().OutboxCacheTimeout - 24*time.Hour)
	if err := f.objects.Upsert(ctx, stale); err != nil {
		t.Fatalf("objects.Upsert() error = %v", err)
	}

	f.outbox.PutObject("test-outbox", "cached-object", []byte("a"))
	f.outbox.PutObject("test-outbox", "expired-object", []byte("b"))
	f.outbox.PutObject("test-outbox", "orphan-object", []byte("c"))

	if err := f.svc.CleanupOutbox(ctx); err != nil {
		t.Fatalf("CleanupOutbox() error = %v", err)
	}

	if exists, _ := f.outbox.DoesObjectExist(ctx, "test-outbox", "cached-object"); !exists {
		t.Error("recently accessed object was deleted")
	}
	if exists, _ := f.outbox.DoesObjectExist(ctx, "test-outbox", "expired-object"); exists {
		t.Error("expired object was not deleted")
	}
	// Orphans are reported, never touched; records are never deleted.
	if exists, _ := f.outbox.DoesObjectExist(ctx, "test-outbox", "orphan-object"); !exists {
		t.Error("orphan object was deleted")
	}
	if f.objects.Len() != 2 {
		t.Errorf("objects.Len() = %d, want 2", f.objects.Len())
	}
}

func TestDrsEndpoints(t *testing.T) {
	f := newDownloadFixture(t)
	if err := f.svc.RegisterNewFile(context.Background(), sampleObject()); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	verifier := auth.NewVerifierFromKeys(map[string]crypto.PublicKey{"hub1": &key.PublicKey})

	r := chi.NewRouter()
	NewRESTHandler(f.svc, verifier).Mount(r)

	sign := func(fileID string) string {
		claims := auth.WorkOrderClaims{
			Type:          auth.WorkTypeDownload,
			FileID:        fileID,
			UserPublicKey: base64.StdEncoding.EncodeToString([]byte("recipient-pk")),
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now()),
			},
		}
		token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
		token.Header["kid"] = "hub1"
		signed, err := token.SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return signed
	}

	get := func(path, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("unstaged object yields 202 with Retry-After", func(t *testing.T) {
		rec := get("/ga4gh/drs/v1/objects/examplefile001", sign("examplefile001"))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("status = %d, want 202 (body %s)", rec.Code, rec.Body)
		}
		if got := rec.Header().Get("Retry-After"); got != "5" {
			t.Errorf("Retry-After = %q, want %q", got, "5")
		}
		if got := rec.Header().Get("Cache-Control"); got != "no-store" {
			t.Errorf("Cache-Control = %q, want no-store", got)
		}
	})

	t.Run("staged object yields 200 with cache headers", func(t *testing.T) {
		f.outbox.PutObject("test-outbox", "object-001", make([]byte, 12357))

		rec := get("/ga4gh/drs/v1/objects/examplefile001", sign("examplefile001"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
		}
		if got, want := rec.Header().Get("Cache-Control"), "max-age=3300, private"; got != want {
			t.Errorf("Cache-Control = %q, want %q", got, want)
		}

		var body DrsObjectBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body does not decode: %v", err)
		}
		if body.Size != 12357 || len(body.AccessMethods) != 1 {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("mismatched token yields 403", func(t *testing.T) {
		rec := get("/ga4gh/drs/v1/objects/examplefile001", sign("other"))
		if rec.Code != http.StatusForbidden {
			t.Errorf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("envelope endpoint", func(t *testing.T) {
		f.keys.envelopes["secret-1"] = []byte("sealed session key")

		rec := get("/ga4gh/drs/v1/objects/examplefile001/envelopes", sign("examplefile001"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("body does not decode: %v", err)
		}
		content, err := base64.StdEncoding.DecodeString(body["content"])
		if err != nil || string(content) != "sealed session key" {
			t.Errorf("content = %q, %v", body["content"], err)
		}
	})
}
