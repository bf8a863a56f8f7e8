package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/data/repos/documents"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/storage"
)

const signedURLTTL = 7 * 24 * time.Hour

// FinalizeResult reports where the signed artifact landed.
type FinalizeResult struct {
	SignedPdfKey    string `json:"signed_pdf_key"`
	SignedPdfSHA256 string `json:"signed_pdf_sha256"`
	SignedPdfURL    string `json:"signed_pdf_url,omitempty"`
}

// Finalizer runs the completion pipeline: stamp, hash, append the audit
// trail, persist, flip status, notify. The status update is deliberately the
// last state-changing step so a crash mid-pipeline leaves the document
// retryable, and re-running with the same inputs reproduces the same hash.
type Finalizer interface {
	Finalize(dbc dbctx.Context, doc *types.Document) (*FinalizeResult, error)
}

type finalizer struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	signers   repos.SignerRepo
	assets    repos.SignatureAssetRepo
	values    repos.TextFieldValueRepo
	catalog   fields.Catalog
	stamper   Stamper
	trail     TrailRenderer
	auditLog  audit.Log
	resolver  storage.Resolver
	emails    notify.EmailSender
	webhooks  notify.WebhookDispatcher
}

func NewFinalizer(
	log *logger.Logger,
	repoSet repos.Set,
	catalog fields.Catalog,
	stamper Stamper,
	trail TrailRenderer,
	auditLog audit.Log,
	resolver storage.Resolver,
	emails notify.EmailSender,
	webhooks notify.WebhookDispatcher,
) Finalizer {
	return &finalizer{
		log:       log.With("service", "Finalizer"),
		documents: repoSet.Document,
		signers:   repoSet.Signer,
		assets:    repoSet.SignatureAsset,
		values:    repoSet.TextFieldValue,
		catalog:   catalog,
		stamper:   stamper,
		trail:     trail,
		auditLog:  auditLog,
		resolver:  resolver,
		emails:    emails,
		webhooks:  webhooks,
	}
}

func signedKeyFor(doc *types.Document) string {
	return fmt.Sprintf("documents/%s/signed.pdf", doc.ID.String())
}

func (f *finalizer) Finalize(dbc dbctx.Context, doc *types.Document) (*FinalizeResult, error) {
	if doc.Completed() {
		return nil, apierr.Conflict(fmt.Errorf("document already completed"))
	}
	flog := f.log.With("document_id", doc.ID.String())

	internal := f.resolver.Internal(doc.StorageBucket)

	unsigned, err := readAll(dbc, internal, doc.UnsignedPdfKey)
	if err != nil {
		return nil, apierr.Upstream(fmt.Errorf("download unsigned pdf: %w", err))
	}

	spots, err := f.catalog.All(dbc, doc)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	images, err := f.loadImages(dbc, doc, internal)
	if err != nil {
		return nil, apierr.Upstream(err)
	}
	values, err := f.loadValues(dbc, doc)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	stamped, err := f.stamper.Stamp(unsigned, spots, images, values)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("stamp document: %w", err))
	}

	// The verifiable hash covers the stamped content only. The trail page
	// carries timestamps and is excluded so re-runs reproduce the hash.
	sum := sha256.Sum256(stamped)
	contentHash := hex.EncodeToString(sum[:])

	events, err := f.auditLog.List(dbc, doc.ID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("list audit events: %w", err))
	}

	data, err := doc.Data()
	if err != nil {
		return nil, apierr.Internal(err)
	}

	trailPage, err := f.trail.Render(AuditTrail{
		DocumentID:   doc.ID.String(),
		Title:        data.Title,
		ContentHash:  contentHash,
		OriginalHash: doc.OriginalHash,
		Events:       events,
		GeneratedAt:  time.Now(),
	})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("render audit trail: %w", err))
	}

	final, err := f.trail.Append(stamped, trailPage)
	if err != nil {
		return nil, apierr.Internal(err)
	}

	signedKey := signedKeyFor(doc)

	// The internal copy is the durability backstop; its failure is fatal.
	if err := internal.Upload(dbc.Ctx, signedKey, bytes.NewReader(final), "application/pdf"); err != nil {
		return nil, apierr.Upstream(fmt.Errorf("upload signed pdf: %w", err))
	}

	// The user's connected provider is best-effort.
	res := f.resolver.PreferredBackend(dbc, doc.OwnerID, doc.StorageBucket)
	if res.FellBack {
		_ = f.auditLog.Append(dbc, doc.ID, types.AuditStorageFallback, "system", "", map[string]any{
			"reason": res.Reason,
		})
	}
	if res.Backend.Name() != internal.Name() {
		if err := res.Backend.Upload(dbc.Ctx, signedKey, bytes.NewReader(final), "application/pdf"); err != nil {
			flog.Warn("Signed pdf copy to user backend failed",
				"provider", string(res.Provider),
				"error", err.Error(),
			)
		}
	}

	if err := f.documents.MarkCompleted(dbc, doc.ID, signedKey, contentHash); err != nil {
		if errors.Is(err, documents.ErrAlreadyCompleted) {
			return nil, apierr.Conflict(err)
		}
		return nil, apierr.Internal(fmt.Errorf("mark completed: %w", err))
	}
	doc.Status = types.DocumentStatusCompleted
	doc.SignedPdfKey = signedKey
	doc.SignedPdfSHA256 = contentHash

	_ = f.auditLog.Append(dbc, doc.ID, types.AuditDocumentCompleted, "system", "", map[string]any{
		"signed_pdf_key":    signedKey,
		"signed_pdf_sha256": contentHash,
	})

	signedURL, urlErr := internal.SignedURL(dbc.Ctx, signedKey, signedURLTTL)
	if urlErr != nil {
		flog.Warn("Signing download URL failed", "error", urlErr.Error())
	}

	f.notifyCompletion(dbc, doc, data.Title, signedURL)

	return &FinalizeResult{
		SignedPdfKey:    signedKey,
		SignedPdfSHA256: contentHash,
		SignedPdfURL:    signedURL,
	}, nil
}

func (f *finalizer) loadImages(dbc dbctx.Context, doc *types.Document, backend storage.Backend) (map[string][]byte, error) {
	assets, err := f.assets.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load signature assets: %w", err)
	}
	images := make(map[string][]byte, len(assets))
	for _, a := range assets {
		raw, err := readAll(dbc, backend, a.StorageKey)
		if err != nil {
			return nil, fmt.Errorf("download signature image for spot %s: %w", a.SpotKey, err)
		}
		images[a.SpotKey] = raw
	}
	return images, nil
}

func (f *finalizer) loadValues(dbc dbctx.Context, doc *types.Document) (map[string]string, error) {
	stored, err := f.values.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("load field values: %w", err)
	}
	values := make(map[string]string, len(stored))
	for _, v := range stored {
		values[v.SpotKey] = v.Value
	}
	return values, nil
}

// notifyCompletion fans out the webhook and completion emails. Every failure
// is logged and audited; none affect the already-committed completed status.
func (f *finalizer) notifyCompletion(dbc dbctx.Context, doc *types.Document, title, signedURL string) {
	flog := f.log.With("document_id", doc.ID.String())

	if doc.CallbackURL != "" {
		if err := f.webhooks.DocumentCompleted(dbc.Ctx, doc, title, signedURL); err != nil {
			flog.Warn("Completion webhook failed", "error", err.Error())
			_ = f.auditLog.Append(dbc, doc.ID, types.AuditWebhookFailed, "system", "", map[string]any{
				"error": err.Error(),
			})
		} else {
			_ = f.auditLog.Append(dbc, doc.ID, types.AuditWebhookDispatched, "system", "", nil)
		}
	}

	recipients := f.completionRecipients(dbc, doc)
	if len(recipients) == 0 {
		return
	}
	if err := f.emails.DocumentCompleted(dbc.Ctx, doc, title, recipients, signedURL); err != nil {
		flog.Warn("Completion email fan-out had failures", "error", err.Error())
	}
	_ = f.auditLog.Append(dbc, doc.ID, types.AuditCompletionEmailSent, "system", "", map[string]any{
		"recipients": len(recipients),
	})
}

func (f *finalizer) completionRecipients(dbc dbctx.Context, doc *types.Document) []notify.Recipient {
	var out []notify.Recipient
	seen := map[string]bool{}

	signers, err := f.signers.GetByDocumentID(dbc, doc.ID)
	if err != nil {
		f.log.Warn("Loading signers for completion emails failed", "document_id", doc.ID.String(), "error", err.Error())
	}
	for _, s := range signers {
		if s.Email == "" || seen[s.Email] {
			continue
		}
		seen[s.Email] = true
		out = append(out, notify.Recipient{Email: s.Email, Name: s.Name})
	}

	if data, err := doc.Data(); err == nil {
		for _, inline := range data.Signers {
			if inline.Email == "" || seen[inline.Email] {
				continue
			}
			seen[inline.Email] = true
			out = append(out, notify.Recipient{Email: inline.Email, Name: inline.Name})
		}
	}

	if doc.Owner != nil && doc.Owner.Email != "" && !seen[doc.Owner.Email] {
		out = append(out, notify.Recipient{Email: doc.Owner.Email, Name: doc.Owner.FirstName})
	}
	return out
}

func readAll(dbc dbctx.Context, backend storage.Backend, key string) ([]byte, error) {
	rc, err := backend.Download(dbc.Ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
