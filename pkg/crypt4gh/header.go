package crypt4gh

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

const (
	headerMagic   = "crypt4gh"
	headerVersion = 1

	// Header packet encryption method: X25519 + ChaCha20-Poly1305.
	methodX25519ChaCha20 = 0

	// Decrypted packet types.
	packetDataEncryptionParameters = 0

	// Data encryption method inside a parameters packet.
	dataMethodChaCha20 = 0

	// SessionKeySize is the length of the symmetric session key.
	SessionKeySize = 32
)

// DecryptHeader parses a Crypt4GH header and returns every session key that
// readerKey can unwrap, plus the number of bytes the header occupies in data.
// Packets addressed to other recipients are skipped; if none matches,
// ErrNoMatchingKey is wrapped in a DecryptionError.
func DecryptHeader(data []byte, readerKey [KeySize]byte) (sessionKeys [][]byte, headerLen int, err error) {
	r := bytes.NewReader(data)

	magic := make([]byte, len(headerMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != headerMagic {
		return nil, 0, &WrongFormatError{Reason: "bad magic"}
	}

	var version, packetCount uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, 0, &WrongFormatError{Reason: "truncated version"}
	}
	if version != headerVersion {
		return nil, 0, &WrongFormatError{Reason: fmt.Sprintf("unsupported version %d", version)}
	}
	if err := binary.Read(r, binary.LittleEndian, &packetCount); err != nil {
		return nil, 0, &WrongFormatError{Reason: "truncated packet count"}
	}
	if packetCount == 0 || packetCount > 1024 {
		return nil, 0, &WrongFormatError{Reason: fmt.Sprintf("implausible packet count %d", packetCount)}
	}

	readerPublic := PublicKeyFromPrivate(readerKey)

	for i := uint32(0); i < packetCount; i++ {
		var packetLen uint32
		if err := binary.Read(r, binary.LittleEndian, &packetLen); err != nil {
			return nil, 0, &WrongFormatError{Reason: "truncated packet length"}
		}
		if packetLen < 4 || int(packetLen-4) > r.Len() {
			return nil, 0, &WrongFormatError{Reason: "bad packet length"}
		}

		packet := make([]byte, packetLen-4)
		if _, err := r.Read(packet); err != nil {
			return nil, 0, &WrongFormatError{Reason: "truncated packet"}
		}

		key, ok := decryptPacket(packet, readerKey, readerPublic)
		if ok {
			sessionKeys = append(sessionKeys, key)
		}
	}

	if len(sessionKeys) == 0 {
		return nil, 0, &DecryptionError{Err: ErrNoMatchingKey}
	}

	headerLen = len(data) - r.Len()
	return sessionKeys, headerLen, nil
}

// decryptPacket attempts to unwrap one header packet with the reader's key.
func decryptPacket(packet []byte, readerKey, readerPublic [KeySize]byte) ([]byte, bool) {
	r := bytes.NewReader(packet)

	var method uint32
	if err := binary.Read(r, binary.LittleEndian, &method); err != nil || method != methodX25519ChaCha20 {
		return nil, false
	}

	writerPublic := make([]byte, KeySize)
	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := r.Read(writerPublic); err != nil {
		return nil, false
	}
	if _, err := r.Read(nonce); err != nil {
		return nil, false
	}
	ciphertext := make([]byte, r.Len())
	if _, err := r.Read(ciphertext); err != nil {
		return nil, false
	}

	sharedKey, err := readerSharedKey(readerKey, readerPublic, writerPublic)
	if err != nil {
		return nil, false
	}

	aead, err := chacha20poly1305.New(sharedKey)
	if err != nil {
		return nil, false
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, false
	}

	return parseParametersPacket(plain)
}

func parseParametersPacket(plain []byte) ([]byte, bool) {
	r := bytes.NewReader(plain)

	var packetType uint32
	if err := binary.Read(r, binary.LittleEndian, &packetType); err != nil || packetType != packetDataEncryptionParameters {
		return nil, false
	}
	var dataMethod uint32
	if err := binary.Read(r, binary.LittleEndian, &dataMethod); err != nil || dataMethod != dataMethodChaCha20 {
		return nil, false
	}

	sessionKey := make([]byte, SessionKeySize)
	if _, err := r.Read(sessionKey); err != nil {
		return nil, false
	}
	return sessionKey, true
}

// readerSharedKey derives the packet key on the reader side. Crypt4GH runs
// libsodium's crypto_kx with the writer as server and the reader as client;
// header packets travel writer to reader, so both ends use the client's
// transmit half of the derived key material.
func readerSharedKey(readerKey, readerPublic [KeySize]byte, writerPublic []byte) ([]byte, error) {
	dh, err := curve25519.X25519(readerKey[:], writerPublic)
	if err != nil {
		return nil, err
	}
	return packetKey(dh, readerPublic[:], writerPublic), nil
}

// writerSharedKey derives the same key on the writer side.
func writerSharedKey(writerKey [KeySize]byte, readerPublic []byte) ([]byte, error) {
	writerPublic := PublicKeyFromPrivate(writerKey)

	dh, err := curve25519.X25519(writerKey[:], readerPublic)
	if err != nil {
		return nil, err
	}
	return packetKey(dh, readerPublic, writerPublic[:]), nil
}

// packetKey is the crypto_kx session-key derivation: BLAKE2b-512 over the
// Diffie-Hellman secret and both public keys, client (reader) first. Header
// encryption uses the second half of the digest.
func packetKey(dh, readerPublic, writerPublic []byte) []byte {
	in := make([]byte, 0, len(dh)+len(readerPublic)+len(writerPublic))
	in = append(in, dh...)
	in = append(in, readerPublic...)
	in = append(in, writerPublic...)

	sum := blake2b.Sum512(in)
	return sum[chacha20poly1305.KeySize:]
}

// EncodeHeader builds a single-recipient Crypt4GH header wrapping sessionKey
// for readerPublic under an ephemeral writer key.
func EncodeHeader(sessionKey []byte, readerPublic [KeySize]byte) ([]byte, error) {
	if len(sessionKey) != SessionKeySize {
		return nil, fmt.Errorf("session key is %d bytes, want %d", len(sessionKey), SessionKeySize)
	}

	writerPublic, writerKey, err := GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate writer key: %w", err)
	}

	sharedKey, err := writerSharedKey(writerKey, readerPublic[:])
	if err != nil {
		return nil, err
	}

	var plain bytes.Buffer
	binary.Write(&plain, binary.LittleEndian, uint32(packetDataEncryptionParameters))
	binary.Write(&plain, binary.LittleEndian, uint32(dataMethodChaCha20))
	plain.Write(sessionKey)

	nonce := make([]byte, chacha20poly1305.NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(sharedKey)
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(nil, nonce, plain.Bytes(), nil)

	var packet bytes.Buffer
	binary.Write(&packet, binary.LittleEndian, uint32(methodX25519ChaCha20))
	packet.Write(writerPublic[:])
	packet.Write(nonce)
	packet.Write(sealed)

	var header bytes.Buffer
	header.WriteString(headerMagic)
	binary.Write(&header, binary.LittleEndian, uint32(headerVersion))
	binary.Write(&header, binary.LittleEndian, uint32(1)) // packet count
	binary.Write(&header, binary.LittleEndian, uint32(packet.Len()+4))
	header.Write(packet.Bytes())

	return header.Bytes(), nil
}
