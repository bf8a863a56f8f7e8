package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// EndpointCredentials is the decrypted credential payload for a user's
// object-storage-compatible custom endpoint.
type EndpointCredentials struct {
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
}

func ParseEndpointCredentials(raw []byte) (EndpointCredentials, error) {
	var creds EndpointCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return EndpointCredentials{}, fmt.Errorf("parse endpoint credentials: %w", err)
	}
	if strings.TrimSpace(creds.AccessKey) == "" || strings.TrimSpace(creds.SecretKey) == "" {
		return EndpointCredentials{}, fmt.Errorf("endpoint credentials incomplete")
	}
	return creds, nil
}

// endpointBackend talks to a user-operated object store over plain HTTP.
// Requests carry the access key and an HMAC of method, path and timestamp so
// the endpoint can authenticate without ever seeing the secret.
type endpointBackend struct {
	log        *logger.Logger
	httpClient *http.Client
	endpoint   string
	bucket     string
	creds      EndpointCredentials
}

func NewEndpoint(log *logger.Logger, endpoint, bucket string, creds EndpointCredentials) (Backend, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint URL required")
	}
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid endpoint URL %q", endpoint)
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("endpoint bucket required")
	}
	return &endpointBackend{
		log:        log.With("backend", "endpoint"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		endpoint:   endpoint,
		bucket:     bucket,
		creds:      creds,
	}, nil
}

func (b *endpointBackend) Name() string { return "endpoint" }

func (b *endpointBackend) objectPath(key string) string {
	return fmt.Sprintf("/v1/b/%s/o/%s", url.PathEscape(b.bucket), url.PathEscape(key))
}

func (b *endpointBackend) sign(method, path, stamp string) string {
	mac := hmac.New(sha256.New, []byte(b.creds.SecretKey))
	mac.Write([]byte(method + "\n" + path + "\n" + stamp))
	return hex.EncodeToString(mac.Sum(nil))
}

func (b *endpointBackend) authorize(req *http.Request) {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("X-Storage-Key", b.creds.AccessKey)
	req.Header.Set("X-Storage-Date", stamp)
	req.Header.Set("X-Storage-Signature", b.sign(req.Method, req.URL.Path, stamp))
}

func (b *endpointBackend) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, b.endpoint+b.objectPath(key), r)
	if err != nil {
		return fmt.Errorf("endpoint upload request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("endpoint upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("endpoint upload failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (b *endpointBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint+b.objectPath(key), nil)
	if err != nil {
		return nil, fmt.Errorf("endpoint download request: %w", err)
	}
	b.authorize(req)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endpoint download: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("endpoint download failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

func (b *endpointBackend) SignedURL(_ context.Context, key string, ttl time.Duration) (string, error) {
	path := b.objectPath(key)
	expires := strconv.FormatInt(time.Now().Add(ttl).Unix(), 10)
	sig := b.sign(http.MethodGet, path, expires)
	q := url.Values{}
	q.Set("key", b.creds.AccessKey)
	q.Set("expires", expires)
	q.Set("signature", sig)
	return b.endpoint + path + "?" + q.Encode(), nil
}
