// Package crypt4gh implements the subset of the Crypt4GH standard the
// ingest service needs: loading service keypairs, decrypting header packets
// to recover session keys, and de/encrypting small payloads such as upload
// metadata envelopes. Bulk file cryptography stays client-side; the services
// only ever handle headers and short messages.
package crypt4gh

import (
	"errors"
	"fmt"
)

// DecryptionError indicates the ciphertext could not be decrypted with the
// available key (wrong key, corrupted data, failed MAC).
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("decryption failed: %v", e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// WrongFormatError indicates the data is not valid Crypt4GH (bad magic,
// unsupported version, truncated structures).
type WrongFormatError struct {
	Reason string
}

func (e *WrongFormatError) Error() string {
	return fmt.Sprintf("not a valid Crypt4GH payload: %s", e.Reason)
}

// ErrNoMatchingKey indicates none of the header packets could be decrypted
// with the reader's key.
var ErrNoMatchingKey = errors.New("no header packet decryptable with this key")
