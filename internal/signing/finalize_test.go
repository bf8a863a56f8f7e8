package signing

import (
	"testing"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/storage"
)

func TestFinalizeRecordsStorageFallback(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.fillSignature(t, doc, "sig-2", "signer-2")
	h.resolver.preferred = storage.Resolution{
		Backend:  h.internal,
		Provider: types.ProviderInternal,
		FellBack: true,
		Reason:   "decrypt storage credentials: cipher: message authentication failed",
	}

	if _, err := h.finalizer.Finalize(h.dbc, doc); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	var sawFallback bool
	events, _ := h.audits.ListByDocumentID(h.dbc, doc.ID)
	for _, e := range events {
		if e.EventType == types.AuditStorageFallback {
			sawFallback = true
		}
	}
	if !sawFallback {
		t.Fatalf("want a storage fallback audit event, got %v", h.audits.eventTypes(doc.ID))
	}
}

func TestFinalizeUserBackendCopyIsBestEffort(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.fillSignature(t, doc, "sig-2", "signer-2")

	user := newFakeBackend("endpoint")
	user.failUp = true
	h.resolver.preferred = storage.Resolution{Backend: user, Provider: types.ProviderEndpoint}

	res, err := h.finalizer.Finalize(h.dbc, doc)
	if err != nil {
		t.Fatalf("a failed provider copy must not fail finalization: %v", err)
	}
	if _, ok := h.internal.objects[res.SignedPdfKey]; !ok {
		t.Fatalf("internal copy must exist regardless of provider failure")
	}
	if doc.Status != types.DocumentStatusCompleted {
		t.Fatalf("want completed, got %q", doc.Status)
	}
}

func TestFinalizeUserBackendReceivesCopy(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.fillSignature(t, doc, "sig-2", "signer-2")

	user := newFakeBackend("endpoint")
	h.resolver.preferred = storage.Resolution{Backend: user, Provider: types.ProviderEndpoint}

	res, err := h.finalizer.Finalize(h.dbc, doc)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if user.uploads != 1 {
		t.Fatalf("want one provider upload, got %d", user.uploads)
	}
	internalCopy := h.internal.objects[res.SignedPdfKey]
	providerCopy := user.objects[res.SignedPdfKey]
	if string(internalCopy) != string(providerCopy) {
		t.Fatalf("provider copy must match the internal artifact")
	}
}

func TestFinalizeTwiceConflicts(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.fillSignature(t, doc, "sig-2", "signer-2")

	if _, err := h.finalizer.Finalize(h.dbc, doc); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	_, err := h.finalizer.Finalize(h.dbc, doc)
	if !apierr.IsStatus(err, 409) {
		t.Fatalf("want conflict on repeat finalize, got %v", err)
	}
}

func TestFinalizeFailsWhenUnsignedMissing(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	delete(h.internal.objects, doc.UnsignedPdfKey)

	_, err := h.finalizer.Finalize(h.dbc, doc)
	if !apierr.IsStatus(err, 502) {
		t.Fatalf("want upstream error for missing source pdf, got %v", err)
	}
}

func TestFinalizeWebhookFailureIsAudited(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.fillSignature(t, doc, "sig-2", "signer-2")
	h.webhooks.failCompleted = true

	if _, err := h.finalizer.Finalize(h.dbc, doc); err != nil {
		t.Fatalf("webhook failure must not fail finalization: %v", err)
	}
	var sawFailed bool
	for _, e := range h.audits.eventTypes(doc.ID) {
		if e == types.AuditWebhookFailed {
			sawFailed = true
		}
	}
	if !sawFailed {
		t.Fatalf("want a webhook failure audit event, got %v", h.audits.eventTypes(doc.ID))
	}
}
