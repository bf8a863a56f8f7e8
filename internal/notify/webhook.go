package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/envutil"
	"github.com/inkform/inkform-backend/internal/platform/httpx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// WebhookDispatcher posts completion events to the document's callback URL.
// Delivery is best-effort: errors are returned for logging and auditing but
// never fail the completion that triggered them.
type WebhookDispatcher interface {
	DocumentCompleted(ctx context.Context, doc *types.Document, title, signedPdfURL string) error
	SignerCompleted(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error
}

type WebhookConfig struct {
	// CompatMode switches every payload to the third-party shape
	// (event_type plus a data.document envelope) for integrations written
	// against that vendor's schema.
	CompatMode    bool
	SigningSecret string
	Timeout       time.Duration
	MaxRetries    int
}

func WebhookConfigFromEnv() WebhookConfig {
	return WebhookConfig{
		CompatMode:    envutil.Bool("WEBHOOK_COMPAT_MODE", false),
		SigningSecret: envutil.String("WEBHOOK_SIGNING_SECRET", ""),
		Timeout:       time.Duration(envutil.Int("WEBHOOK_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxRetries:    envutil.Int("WEBHOOK_MAX_RETRIES", 3),
	}
}

type webhookDispatcher struct {
	log        *logger.Logger
	cfg        WebhookConfig
	httpClient *http.Client
}

func NewWebhookDispatcher(log *logger.Logger, cfg WebhookConfig) WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &webhookDispatcher{
		log:        log.With("service", "WebhookDispatcher"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// native payload shapes

type nativeCompletedPayload struct {
	Event           string `json:"event"`
	DocumentID      string `json:"document_id"`
	Title           string `json:"title,omitempty"`
	SignedPdfURL    string `json:"signed_pdf_url"`
	SignedPdfSHA256 string `json:"signed_pdf_sha256"`
}

// compat payload shapes, matching the common e-sign vendor schema

type compatDocument struct {
	ID              string `json:"id"`
	Title           string `json:"title,omitempty"`
	Status          string `json:"status"`
	SignedPdfURL    string `json:"signed_pdf_url,omitempty"`
	SignedPdfSHA256 string `json:"signed_pdf_sha256,omitempty"`
}

type compatRecipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

type compatPayload struct {
	EventType string     `json:"event_type"`
	Data      compatData `json:"data"`
}

type compatData struct {
	Document  compatDocument   `json:"document"`
	Recipient *compatRecipient `json:"recipient,omitempty"`
}

func (d *webhookDispatcher) DocumentCompleted(ctx context.Context, doc *types.Document, title, signedPdfURL string) error {
	callback := strings.TrimSpace(doc.CallbackURL)
	if callback == "" {
		return nil
	}

	var payload any
	if d.cfg.CompatMode {
		payload = compatPayload{
			EventType: "envelope.completed",
			Data: compatData{
				Document: compatDocument{
					ID:              doc.ID.String(),
					Title:           title,
					Status:          string(types.DocumentStatusCompleted),
					SignedPdfURL:    signedPdfURL,
					SignedPdfSHA256: doc.SignedPdfSHA256,
				},
			},
		}
	} else {
		payload = nativeCompletedPayload{
			Event:           "document.completed",
			DocumentID:      doc.ID.String(),
			Title:           title,
			SignedPdfURL:    signedPdfURL,
			SignedPdfSHA256: doc.SignedPdfSHA256,
		}
	}
	return d.post(ctx, callback, payload)
}

// SignerCompleted fires only in compat mode; the native schema reports
// per-signer progress through the audit trail instead.
func (d *webhookDispatcher) SignerCompleted(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error {
	callback := strings.TrimSpace(doc.CallbackURL)
	if callback == "" || !d.cfg.CompatMode {
		return nil
	}
	payload := compatPayload{
		EventType: "recipient.completed",
		Data: compatData{
			Document: compatDocument{
				ID:     doc.ID.String(),
				Title:  title,
				Status: string(doc.Status),
			},
			Recipient: &compatRecipient{
				Email: signer.Email,
				Name:  signer.Name,
				Role:  signer.Role,
			},
		},
	}
	return d.post(ctx, callback, payload)
}

func (d *webhookDispatcher) post(ctx context.Context, callback string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = d.postOnce(ctx, callback, body)
		if lastErr == nil {
			return nil
		}
		if !httpx.IsRetryableError(lastErr) || attempt == d.cfg.MaxRetries {
			return lastErr
		}
		sleepFor := httpx.JitterSleep(backoff)
		d.log.Warn("Webhook delivery retrying",
			"url", callback,
			"attempt", attempt+1,
			"max_retries", d.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", lastErr.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return lastErr
}

type webhookHTTPError struct {
	StatusCode int
	Body       string
}

func (e *webhookHTTPError) Error() string {
	return fmt.Sprintf("webhook http %d: %s", e.StatusCode, e.Body)
}

func (e *webhookHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (d *webhookDispatcher) postOnce(ctx context.Context, callback string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callback, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.cfg.SigningSecret != "" {
		mac := hmac.New(sha256.New, []byte(d.cfg.SigningSecret))
		mac.Write(body)
		req.Header.Set("X-Inkform-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &webhookHTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	return nil
}
