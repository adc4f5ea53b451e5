package crypt4gh

import (
	"bytes"
	"crypto/rand"

	"golang.org/x/crypto/chacha20poly1305"
)

// segmentSize is the plaintext size of one Crypt4GH data segment.
const segmentSize = 65536

// encryptedSegmentSize adds the per-segment nonce and MAC overhead.
const encryptedSegmentSize = segmentSize + chacha20poly1305.NonceSize + chacha20poly1305.Overhead

// DecryptMessage decrypts a complete Crypt4GH payload (header plus data
// segments) addressed to readerKey. Intended for short messages like upload
// metadata envelopes, not for bulk file data.
func DecryptMessage(data []byte, readerKey [KeySize]byte) ([]byte, error) {
	sessionKeys, headerLen, err := DecryptHeader(data, readerKey)
	if err != nil {
		return nil, err
	}

	body := data[headerLen:]
	var lastErr error
	for _, key := range sessionKeys {
		plain, err := decryptSegments(body, key)
		if err == nil {
			return plain, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func decryptSegments(body, sessionKey []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}

	var plain bytes.Buffer
	for len(body) > 0 {
		segment := body
		if len(segment) > encryptedSegmentSize {
			segment = segment[:encryptedSegmentSize]
		}
		if len(segment) <= chacha20poly1305.NonceSize+chacha20poly1305.Overhead {
			return nil, &WrongFormatError{Reason: "truncated data segment"}
		}

		nonce := segment[:chacha20poly1305.NonceSize]
		decrypted, err := aead.Open(nil, nonce, segment[chacha20poly1305.NonceSize:], nil)
		if err != nil {
			return nil, &DecryptionError{Err: err}
		}
		plain.Write(decrypted)
		body = body[len(segment):]
	}

	return plain.Bytes(), nil
}

// EncryptMessage encrypts plaintext for readerPublic under a fresh session
// key and returns the complete Crypt4GH payload. Used by provisioning
// tooling and tests; production envelopes are produced client-side.
func EncryptMessage(plaintext []byte, readerPublic [KeySize]byte) ([]byte, error) {
	sessionKey := make([]byte, SessionKeySize)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, err
	}

	header, err := EncodeHeader(sessionKey, readerPublic)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.New(sessionKey)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	out.Write(header)

	for len(plaintext) > 0 {
		segment := plaintext
		if len(segment) > segmentSize {
			segment = segment[:segmentSize]
		}

		nonce := make([]byte, chacha20poly1305.NonceSize)
		if _, err := rand.Read(nonce); err != nil {
			return nil, err
		}
		out.Write(nonce)
		out.Write(aead.Seal(nil, nonce, segment, nil))

		plaintext = plaintext[len(segment):]
	}

	return out.Bytes(), nil
}
