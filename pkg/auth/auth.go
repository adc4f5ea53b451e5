// Package auth validates the JWTs guarding the REST surfaces: work-order
// tokens on the download endpoints and UOS/WPS data-hub tokens on the upload
// endpoints. Each data hub is configured with a PEM public key; tokens name
// their hub in the "kid" header.
package auth

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Work-order token types.
const (
	WorkTypeDownload = "download"
	WorkTypeUpload   = "upload"
)

// UOS/WPS token action types on the upload surface.
const (
	ActionCreateBox  = "create"
	ActionViewBox    = "view"
	ActionLockBox    = "lock"
	ActionUnlockBox  = "unlock"
	ActionCreateFile = "create_file"
	ActionUploadFile = "upload"
	ActionCloseFile  = "close"
	ActionDeleteFile = "delete"
)

var (
	// ErrInvalidToken indicates the token failed signature or claim
	// validation (includes expiry).
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnknownIssuer indicates the token names a data hub with no
	// configured key.
	ErrUnknownIssuer = errors.New("unknown token issuer")

	// ErrWrongResource indicates the token is valid but bound to a
	// different resource than the one addressed.
	ErrWrongResource = errors.New("token bound to different resource")
)

// WorkOrderClaims are carried by download work-order tokens.
type WorkOrderClaims struct {
	Type          string `json:"type"`
	FileID        string `json:"file_id"`
	UserPublicKey string `json:"user_public_crypt4gh_key"`
	jwt.RegisteredClaims
}

// ResourceClaims are carried by UOS and WPS tokens on the upload surface.
// Exactly one of BoxID and FileID is set, depending on the action.
type ResourceClaims struct {
	Type   string `json:"type"`
	BoxID  string `json:"box_id,omitempty"`
	FileID string `json:"file_id,omitempty"`
	jwt.RegisteredClaims
}

var allowedMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "EdDSA"}

// Verifier validates tokens against the configured data hub keys.
type Verifier struct {
	keys map[string]crypto.PublicKey
}

// NewVerifier parses one PEM-encoded public key per data hub.
func NewVerifier(pemKeys map[string]string) (*Verifier, error) {
	keys := make(map[string]crypto.PublicKey, len(pemKeys))
	for hub, pemData := range pemKeys {
		key, err := parsePublicKey([]byte(pemData))
		if err != nil {
			return nil, fmt.Errorf("failed to parse public key for data hub %q: %w", hub, err)
		}
		keys[hub] = key
	}
	return &Verifier{keys: keys}, nil
}

// NewVerifierFromKeys builds a verifier from already-parsed keys.
func NewVerifierFromKeys(keys map[string]crypto.PublicKey) *Verifier {
	return &Verifier{keys: keys}
}

func parsePublicKey(pemData []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("not a PKIX public key: %w", err)
	}
	return key, nil
}

// keyFunc selects the data hub key named by the token's kid header. With a
// single configured hub, a missing kid falls back to that hub's key.
func (v *Verifier) keyFunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" && len(v.keys) == 1 {
		for _, key := range v.keys {
			return key, nil
		}
	}
	key, ok := v.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssuer, kid)
	}
	return key, nil
}

// VerifyWorkOrder validates a work-order token and returns its claims.
func (v *Verifier) VerifyWorkOrder(tokenString string) (*WorkOrderClaims, error) {
	claims := &WorkOrderClaims{}
	if err := v.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyDataHub validates a plain data hub token: signature, expiry, and a
// configured hub key, with no resource binding. Used by the ingest surface,
// whose payloads name their file ids only after decryption.
func (v *Verifier) VerifyDataHub(tokenString string) error {
	return v.parse(tokenString, &jwt.RegisteredClaims{})
}

// VerifyResource validates a UOS/WPS token and returns its claims.
func (v *Verifier) VerifyResource(tokenString string) (*ResourceClaims, error) {
	claims := &ResourceClaims{}
	if err := v.parse(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *Verifier) parse(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc,
		jwt.WithValidMethods(allowedMethods),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt())
	if err != nil {
		if errors.Is(err, ErrUnknownIssuer) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}
