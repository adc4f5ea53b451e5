package crypt4gh

import (
	"bytes"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	readerPublic, readerKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"short json", []byte(`{"file_id":"f1","session_key":"abc"}`)},
		{"empty", nil},
		{"multi segment", bytes.Repeat([]byte("x"), segmentSize+100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := EncryptMessage(tt.plaintext, readerPublic)
			if err != nil {
				t.Fatalf("EncryptMessage() error = %v", err)
			}

			decrypted, err := DecryptMessage(encrypted, readerKey)
			if err != nil {
				t.Fatalf("DecryptMessage() error = %v", err)
			}
			if !bytes.Equal(decrypted, tt.plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d", len(decrypted), len(tt.plaintext))
			}
		})
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	readerPublic, _, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}
	_, otherKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	encrypted, err := EncryptMessage([]byte("secret"), readerPublic)
	if err != nil {
		t.Fatalf("EncryptMessage() error = %v", err)
	}

	_, err = DecryptMessage(encrypted, otherKey)
	var de *DecryptionError
	if !errors.As(err, &de) {
		t.Fatalf("DecryptMessage() error = %v, want *DecryptionError", err)
	}
	if !errors.Is(err, ErrNoMatchingKey) {
		t.Errorf("DecryptMessage() error = %v, want ErrNoMatchingKey", err)
	}
}

func TestDecryptGarbage(t *testing.T) {
	_, readerKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"random bytes", append([]byte("notcrypt"), bytes.Repeat([]byte{1}, 64)...)},
		{"empty", nil},
		{"magic only", []byte("crypt4gh")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptMessage(tt.data, readerKey)
			var wf *WrongFormatError
			if !errors.As(err, &wf) {
				t.Errorf("DecryptMessage() error = %v, want *WrongFormatError", err)
			}
		})
	}
}

func TestHeaderSessionKey(t *testing.T) {
	readerPublic, readerKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	sessionKey := make([]byte, SessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		t.Fatal(err)
	}

	header, err := EncodeHeader(sessionKey, readerPublic)
	if err != nil {
		t.Fatalf("EncodeHeader() error = %v", err)
	}

	keys, headerLen, err := DecryptHeader(header, readerKey)
	if err != nil {
		t.Fatalf("DecryptHeader() error = %v", err)
	}
	if headerLen != len(header) {
		t.Errorf("headerLen = %d, want %d", headerLen, len(header))
	}
	if len(keys) != 1 || !bytes.Equal(keys[0], sessionKey) {
		t.Error("recovered session key does not match")
	}
}

func TestKeyFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	publicPath := filepath.Join(dir, "service.pub")
	privatePath := filepath.Join(dir, "service.sec")

	publicKey, privateKey, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if err := WritePublicKey(publicPath, publicKey); err != nil {
		t.Fatalf("WritePublicKey() error = %v", err)
	}
	if err := WritePrivateKey(privatePath, privateKey); err != nil {
		t.Fatalf("WritePrivateKey() error = %v", err)
	}

	loadedPublic, err := LoadPublicKey(publicPath)
	if err != nil {
		t.Fatalf("LoadPublicKey() error = %v", err)
	}
	if loadedPublic != publicKey {
		t.Error("loaded public key does not match")
	}

	loadedPrivate, err := LoadPrivateKey(privatePath, "")
	if err != nil {
		t.Fatalf("LoadPrivateKey() error = %v", err)
	}
	if loadedPrivate != privateKey {
		t.Error("loaded private key does not match")
	}

	// The loaded pair must still decrypt.
	encrypted, err := EncryptMessage([]byte("payload"), loadedPublic)
	if err != nil {
		t.Fatalf("EncryptMessage() error = %v", err)
	}
	plain, err := DecryptMessage(encrypted, loadedPrivate)
	if err != nil {
		t.Fatalf("DecryptMessage() error = %v", err)
	}
	if string(plain) != "payload" {
		t.Errorf("decrypted = %q", plain)
	}
}
