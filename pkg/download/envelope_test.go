package download

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"testing"

	"github.com/fedarchive/genarc/pkg/crypt4gh"
	"github.com/fedarchive/genarc/pkg/events"
	"github.com/fedarchive/genarc/pkg/keystore"
	"github.com/fedarchive/genarc/pkg/storage"
	"github.com/fedarchive/genarc/pkg/store"
)

// sealingKeyStore behaves like the real key store: it holds deposited session
// keys and seals each one into a fresh Crypt4GH envelope for the requesting
// recipient.
type sealingKeyStore struct {
	secrets map[string][]byte
}

func (s *sealingKeyStore) StoreSecret(_ context.Context, fileSecret []byte) (string, error) {
	id := fmt.Sprintf("secret-%d", len(s.secrets)+1)
	s.secrets[id] = fileSecret
	return id, nil
}

func (s *sealingKeyStore) FetchEnvelope(_ context.Context, secretID string, recipientPublicKey []byte) ([]byte, error) {
	key, ok := s.secrets[secretID]
	if !ok {
		return nil, fmt.Errorf("fetch envelope: %w", keystore.ErrSecretNotFound)
	}
	var pub [crypt4gh.KeySize]byte
	copy(pub[:], recipientPublicKey)
	return crypt4gh.EncodeHeader(key, pub)
}

func (s *sealingKeyStore) DeleteSecret(_ context.Context, secretID string) error {
	delete(s.secrets, secretID)
	return nil
}

func TestServedEnvelopeDecryptsToDepositedKey(t *testing.T) {
	ctx := context.Background()

	sessionKey := make([]byte, crypt4gh.SessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatal(err)
	}
	keys := &sealingKeyStore{secrets: make(map[string][]byte)}
	secretID, err := keys.StoreSecret(ctx, sessionKey)
	if err != nil {
		t.Fatalf("StoreSecret() error = %v", err)
	}

	outbox := storage.NewMemoryStorage()
	aliases := storage.NewAliases(map[string]storage.Endpoint{
		"test": {Storage: outbox, Bucket: "test-outbox"},
	})
	svc := NewService(store.NewMemoryDAO[DrsObject](), aliases, keys,
		events.NewOutboxPublisher(store.NewMemoryOutbox()), testConfig())

	obj := sampleObject()
	obj.SecretID = secretID
	if err := svc.RegisterNewFile(ctx, obj); err != nil {
		t.Fatalf("RegisterNewFile() error = %v", err)
	}

	recipientPub, recipientKey, err := crypt4gh.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}

	envelope, err := svc.ServeEnvelope(ctx, obj.ID, recipientPub[:])
	if err != nil {
		t.Fatalf("ServeEnvelope() error = %v", err)
	}

	sessionKeys, _, err := crypt4gh.DecryptHeader(envelope, recipientKey)
	if err != nil {
		t.Fatalf("DecryptHeader() error = %v", err)
	}
	if len(sessionKeys) != 1 || !bytes.Equal(sessionKeys[0], sessionKey) {
		t.Error("recovered session key differs from the deposited one")
	}

	t.Run("other recipients cannot open it", func(t *testing.T) {
		_, otherKey, err := crypt4gh.GenerateKeyPair()
		if err != nil {
			t.Fatal(err)
		}
		_, _, err = crypt4gh.DecryptHeader(envelope, otherKey)
		if !errors.Is(err, crypt4gh.ErrNoMatchingKey) {
			t.Errorf("DecryptHeader() error = %v, want ErrNoMatchingKey", err)
		}
	})
}
