// Package keystore provides the HTTP client for the encryption key store,
// the Vault-backed service holding wrapped Crypt4GH session keys ("file
// secrets"). The pipeline never sees unwrapped keys: it deposits secrets,
// asks for per-recipient envelopes, and deletes secrets on file deletion.
package keystore

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/fedarchive/genarc/internal/logger"
)

// ErrSecretNotFound indicates the key store has no secret under the id.
var ErrSecretNotFound = errors.New("secret not found in key store")

// CommunicationError wraps transport or server-side failures talking to the
// key store. StatusCode is zero for transport errors.
type CommunicationError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *CommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("key store %s failed with status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("key store %s failed: %v", e.Operation, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// KeyStore is the outbound port for the encryption key store.
type KeyStore interface {
	// StoreSecret deposits a wrapped session key and returns its secret id.
	StoreSecret(ctx context.Context, fileSecret []byte) (string, error)

	// FetchEnvelope returns the Crypt4GH header envelope re-wrapping the
	// secret for the recipient's public key (raw base64-encoded key bytes).
	FetchEnvelope(ctx context.Context, secretID string, recipientPublicKey []byte) ([]byte, error)

	// DeleteSecret removes the secret. Deleting an unknown id is a no-op.
	DeleteSecret(ctx context.Context, secretID string) error
}

// Config holds key store client settings.
type Config struct {
	// BaseURL is the key store base URL, e.g. "http://ekss:8080".
	BaseURL string `mapstructure:"base_url" validate:"required,url"`

	// RequestTimeout bounds each attempt. Default: 10s.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// RetryMax is the number of retries per request. Default: 3.
	RetryMax int `mapstructure:"retry_max"`
}

// Client implements KeyStore over HTTP with retries.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// NewClient creates a key store client.
func NewClient(cfg Config) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = cfg.RetryMax
	if rc.RetryMax == 0 {
		rc.RetryMax = 3
	}
	rc.HTTPClient.Timeout = cfg.RequestTimeout
	if rc.HTTPClient.Timeout == 0 {
		rc.HTTPClient.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		http:    rc,
	}
}

type storeSecretRequest struct {
	FileSecret string `json:"file_secret"`
}

type storeSecretResponse struct {
	SecretID string `json:"secret_id"`
}

type envelopeResponse struct {
	Content string `json:"content"`
}

func (c *Client) StoreSecret(ctx context.Context, fileSecret []byte) (string, error) {
	body, err := json.Marshal(storeSecretRequest{
		FileSecret: base64.StdEncoding.EncodeToString(fileSecret),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode secret deposit: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/secrets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build secret deposit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &CommunicationError{Operation: "secret deposit", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &CommunicationError{
			Operation:  "secret deposit",
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp.Body)),
		}
	}

	var out storeSecretResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &CommunicationError{Operation: "secret deposit", Err: err}
	}
	if out.SecretID == "" {
		return "", &CommunicationError{Operation: "secret deposit", Err: errors.New("response carries no secret id")}
	}

	logger.DebugCtx(ctx, "file secret deposited", logger.SecretID(out.SecretID))
	return out.SecretID, nil
}

func (c *Client) FetchEnvelope(ctx context.Context, secretID string, recipientPublicKey []byte) ([]byte, error) {
	encodedKey := base64.RawURLEncoding.EncodeToString(recipientPublicKey)
	u := fmt.Sprintf("%s/secrets/%s/envelopes/%s", c.baseURL, url.PathEscape(secretID), encodedKey)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build envelope request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &CommunicationError{Operation: "envelope fetch", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, secretID)
	case resp.StatusCode != http.StatusOK:
		return nil, &CommunicationError{
			Operation:  "envelope fetch",
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp.Body)),
		}
	}

	var out envelopeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &CommunicationError{Operation: "envelope fetch", Err: err}
	}

	envelope, err := base64.StdEncoding.DecodeString(out.Content)
	if err != nil {
		return nil, &CommunicationError{Operation: "envelope fetch", Err: fmt.Errorf("response is not base64: %w", err)}
	}
	return envelope, nil
}

func (c *Client) DeleteSecret(ctx context.Context, secretID string) error {
	u := fmt.Sprintf("%s/secrets/%s", c.baseURL, url.PathEscape(secretID))

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build secret delete request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &CommunicationError{Operation: "secret delete", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		// Already-deleted secrets are fine; deletion is best-effort.
		return nil
	default:
		return &CommunicationError{
			Operation:  "secret delete",
			StatusCode: resp.StatusCode,
			Err:        errors.New(readErrorBody(resp.Body)),
		}
	}
}

func readErrorBody(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return "no error body"
	}
	return string(body)
}

var _ KeyStore = (*Client)(nil)
