package ingest

import "fmt"

// WrongDecryptedFormatError indicates the payload decrypted fine but does
// not decode into the expected shape.
type WrongDecryptedFormatError struct {
	Reason string
}

func (e *WrongDecryptedFormatError) Error() string {
	return fmt.Sprintf("decrypted payload has the wrong format: %s", e.Reason)
}

// VaultCommunicationError indicates the key store could not be reached or
// rejected the deposit.
type VaultCommunicationError struct {
	Err error
}

func (e *VaultCommunicationError) Error() string {
	return fmt.Sprintf("key store communication failed: %v", e.Err)
}

func (e *VaultCommunicationError) Unwrap() error { return e.Err }

// FileNotFoundError indicates no file under interrogation with the given id.
type FileNotFoundError struct {
	FileID string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file %s is not under interrogation", e.FileID)
}
