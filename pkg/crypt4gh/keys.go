package crypt4gh

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/scrypt"
)

const (
	publicKeyBegin  = "-----BEGIN CRYPT4GH PUBLIC KEY-----"
	publicKeyEnd    = "-----END CRYPT4GH PUBLIC KEY-----"
	privateKeyBegin = "-----BEGIN CRYPT4GH PRIVATE KEY-----"
	privateKeyEnd   = "-----END CRYPT4GH PRIVATE KEY-----"

	keyMagic = "c4gh-v1"
)

// KeySize is the length of X25519 public and private keys.
const KeySize = 32

// GenerateKeyPair returns a fresh X25519 keypair.
func GenerateKeyPair() (publicKey, privateKey [KeySize]byte, err error) {
	if _, err = rand.Read(privateKey[:]); err != nil {
		return
	}
	curve25519.ScalarBaseMult(&publicKey, &privateKey)
	return
}

// PublicKeyFromPrivate derives the public half of a private key.
func PublicKeyFromPrivate(privateKey [KeySize]byte) [KeySize]byte {
	var publicKey [KeySize]byte
	curve25519.ScalarBaseMult(&publicKey, &privateKey)
	return publicKey
}

// LoadPublicKey reads a Crypt4GH public key file.
func LoadPublicKey(path string) ([KeySize]byte, error) {
	var key [KeySize]byte

	raw, err := os.ReadFile(path)
	if err != nil {
		return key, fmt.Errorf("failed to read public key file: %w", err)
	}

	body, err := pemBody(string(raw), publicKeyBegin, publicKeyEnd)
	if err != nil {
		return key, err
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return key, &WrongFormatError{Reason: "public key is not base64"}
	}
	if len(decoded) != KeySize {
		return key, &WrongFormatError{Reason: fmt.Sprintf("public key is %d bytes, want %d", len(decoded), KeySize)}
	}

	copy(key[:], decoded)
	return key, nil
}

// LoadPrivateKey reads a Crypt4GH private key file, decrypting it with
// passphrase when the file declares a KDF. passphrase is ignored for
// unencrypted keys.
func LoadPrivateKey(path, passphrase string) ([KeySize]byte, error) {
	var key [KeySize]byte

	raw, err := os.ReadFile(path)
	if err != nil {
		return key, fmt.Errorf("failed to read private key file: %w", err)
	}

	body, err := pemBody(string(raw), privateKeyBegin, privateKeyEnd)
	if err != nil {
		return key, err
	}
	decoded, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return key, &WrongFormatError{Reason: "private key is not base64"}
	}

	return parsePrivateKey(decoded, passphrase)
}

func parsePrivateKey(data []byte, passphrase string) ([KeySize]byte, error) {
	var key [KeySize]byte

	r := bytes.NewReader(data)
	magic := make([]byte, len(keyMagic))
	if _, err := r.Read(magic); err != nil || string(magic) != keyMagic {
		return key, &WrongFormatError{Reason: "bad private key magic"}
	}

	kdfName, err := readLengthPrefixed(r)
	if err != nil {
		return key, &WrongFormatError{Reason: "truncated kdf name"}
	}

	// KDF options are a 4-byte rounds field followed by the salt. The rounds
	// field is carried for format compatibility; scrypt uses fixed cost
	// parameters.
	var salt []byte
	if string(kdfName) != "none" {
		kdfOptions, err := readLengthPrefixed(r)
		if err != nil || len(kdfOptions) < 4 {
			return key, &WrongFormatError{Reason: "truncated kdf options"}
		}
		salt = kdfOptions[4:]
	}

	cipherName, err := readLengthPrefixed(r)
	if err != nil {
		return key, &WrongFormatError{Reason: "truncated cipher name"}
	}
	keyData, err := readLengthPrefixed(r)
	if err != nil {
		return key, &WrongFormatError{Reason: "truncated key data"}
	}

	switch string(cipherName) {
	case "none":
		if len(keyData) != KeySize {
			return key, &WrongFormatError{Reason: "bad private key length"}
		}
		copy(key[:], keyData)
		return key, nil

	case "chacha20_poly1305":
		if string(kdfName) != "scrypt" {
			return key, &WrongFormatError{Reason: fmt.Sprintf("unsupported kdf %q", kdfName)}
		}
		if passphrase == "" {
			return key, &DecryptionError{Err: fmt.Errorf("private key is encrypted but no passphrase given")}
		}

		derived, err := scrypt.Key([]byte(passphrase), salt, 1<<14, 8, 1, chacha20poly1305.KeySize)
		if err != nil {
			return key, fmt.Errorf("failed to derive key-encryption key: %w", err)
		}

		if len(keyData) < chacha20poly1305.NonceSize {
			return key, &WrongFormatError{Reason: "truncated encrypted private key"}
		}
		aead, err := chacha20poly1305.New(derived)
		if err != nil {
			return key, err
		}
		plain, err := aead.Open(nil, keyData[:chacha20poly1305.NonceSize], keyData[chacha20poly1305.NonceSize:], nil)
		if err != nil {
			return key, &DecryptionError{Err: err}
		}
		if len(plain) != KeySize {
			return key, &WrongFormatError{Reason: "bad decrypted private key length"}
		}
		copy(key[:], plain)
		return key, nil

	default:
		return key, &WrongFormatError{Reason: fmt.Sprintf("unsupported key cipher %q", cipherName)}
	}
}

// readLengthPrefixed reads one big-endian uint16 length-prefixed field.
func readLengthPrefixed(r *bytes.Reader) ([]byte, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	field := make([]byte, length)
	if _, err := r.Read(field); err != nil {
		return nil, err
	}
	return field, nil
}

func pemBody(content, begin, end string) (string, error) {
	start := strings.Index(content, begin)
	stop := strings.Index(content, end)
	if start < 0 || stop < 0 || stop < start {
		return "", &WrongFormatError{Reason: "missing PEM boundaries"}
	}
	body := content[start+len(begin) : stop]
	return strings.Join(strings.Fields(body), ""), nil
}

// WritePrivateKey writes an unencrypted private key file. Used by the init
// command to provision development keypairs.
func WritePrivateKey(path string, privateKey [KeySize]byte) error {
	var buf bytes.Buffer
	buf.WriteString(keyMagic)
	writeLengthPrefixed(&buf, []byte("none"))
	writeLengthPrefixed(&buf, []byte("none"))
	writeLengthPrefixed(&buf, privateKey[:])

	content := privateKeyBegin + "\n" +
		base64.StdEncoding.EncodeToString(buf.Bytes()) + "\n" +
		privateKeyEnd + "\n"
	return os.WriteFile(path, []byte(content), 0600)
}

// WritePublicKey writes a public key file.
func WritePublicKey(path string, publicKey [KeySize]byte) error {
	content := publicKeyBegin + "\n" +
		base64.StdEncoding.EncodeToString(publicKey[:]) + "\n" +
		publicKeyEnd + "\n"
	return os.WriteFile(path, []byte(content), 0644)
}

func writeLengthPrefixed(buf *bytes.Buffer, field []byte) {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(field)))
	buf.Write(length[:])
	buf.Write(field)
}
