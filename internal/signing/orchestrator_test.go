package signing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
)

// twoSignerSetup builds a one-off document with one signature spot per
// signer, promoted signer rows, and the unsigned pdf seeded in the internal
// backend.
func twoSignerSetup(t *testing.T) (*engineHarness, *types.Document, *types.Signer, *types.Signer) {
	t.Helper()
	doc := &types.Document{
		ID:             uuid.New(),
		Status:         types.DocumentStatusSent,
		SigningToken:   "legacy-tok",
		UnsignedPdfKey: "documents/unsigned.pdf",
		CallbackURL:    "https://hooks.example.test/inkform",
	}
	if err := doc.SetData(types.DocumentData{
		Title:          "Mutual NDA",
		OneOffDocument: true,
		Signers: []types.InlineSigner{
			{ID: "signer-1", Email: "a@example.com", Order: 0},
			{ID: "signer-2", Email: "b@example.com", Order: 1},
		},
		Fields: []types.InlineField{
			{ID: "sig-1", FieldType: "signature", SignerID: "signer-1", Page: 1, Width: 180, Height: 40, Required: true},
			{ID: "sig-2", FieldType: "signature", SignerID: "signer-2", Page: 1, Width: 180, Height: 40, Required: true},
		},
	}); err != nil {
		t.Fatalf("set data: %v", err)
	}

	h := newEngineHarness(doc)
	first := &types.Signer{
		DocumentID: doc.ID, Email: "a@example.com", Role: "signer-1",
		Token: "tok-1", Status: types.SignerStatusPending, OrderIndex: 0,
	}
	second := &types.Signer{
		DocumentID: doc.ID, Email: "b@example.com", Role: "signer-2",
		Token: "tok-2", Status: types.SignerStatusPending, OrderIndex: 1,
	}
	if _, err := h.signers.Create(h.dbc, []*types.Signer{first, second}); err != nil {
		t.Fatalf("seed signers: %v", err)
	}
	h.internal.objects[doc.UnsignedPdfKey] = []byte("unsigned-pdf")
	return h, doc, first, second
}

func (h *engineHarness) fillSignature(t *testing.T, doc *types.Document, spotKey, role string) {
	t.Helper()
	storageKey := fmt.Sprintf("documents/%s/assets/%s.png", doc.ID, spotKey)
	h.internal.objects[storageKey] = []byte("png-bytes-" + spotKey)
	if _, err := h.assets.Create(h.dbc, &types.SignatureAsset{
		DocumentID: doc.ID,
		SpotKey:    spotKey,
		SignerRole: role,
		StorageKey: storageKey,
		MimeType:   "image/png",
	}); err != nil {
		t.Fatalf("seed asset: %v", err)
	}
}

func TestCompleteHandsOffToNextSigner(t *testing.T) {
	h, doc, first, second := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")

	out, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Status != types.DocumentStatusPartial {
		t.Fatalf("want status=%q got=%q", types.DocumentStatusPartial, out.Status)
	}
	if out.NextSigner == nil || out.NextSigner.ID != second.ID {
		t.Fatalf("want next signer %s, got %+v", second.ID, out.NextSigner)
	}
	if out.Finalize != nil {
		t.Fatalf("partial completion must not finalize")
	}
	if doc.Status != types.DocumentStatusPartial {
		t.Fatalf("want document status partial, got %q", doc.Status)
	}
	if len(h.emails.requests) != 1 || h.emails.requests[0].ID != second.ID {
		t.Fatalf("want exactly one request email to next signer, got %d", len(h.emails.requests))
	}

	got := h.audits.eventTypes(doc.ID)
	want := []string{types.AuditSignerCompleted, types.AuditNextSignerNotified}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("want audit events %v got %v", want, got)
	}
}

func TestCompleteValidationReportsMissingKeysVerbatim(t *testing.T) {
	h, doc, first, _ := twoSignerSetup(t)

	_, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role})
	if err == nil {
		t.Fatalf("want validation error, got nil")
	}
	apiErr := apierr.From(err)
	if apiErr.Status != 400 {
		t.Fatalf("want status=400 got=%d", apiErr.Status)
	}
	missing, _ := apiErr.Details["missing"].([]string)
	if !reflect.DeepEqual(missing, []string{"sig-1"}) {
		t.Fatalf("want missing=[sig-1] got=%v", missing)
	}
	if len(h.emails.requests) != 0 {
		t.Fatalf("failed validation must not notify anyone")
	}
}

func TestCompleteLastSignerFinalizes(t *testing.T) {
	h, doc, first, second := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	if _, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role}); err != nil {
		t.Fatalf("first complete: %v", err)
	}

	h.fillSignature(t, doc, "sig-2", "signer-2")
	out, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: second, Role: second.Role})
	if err != nil {
		t.Fatalf("second complete: %v", err)
	}
	if out.Status != types.DocumentStatusCompleted || out.Finalize == nil {
		t.Fatalf("want finalized outcome, got %+v", out)
	}

	wantKey := fmt.Sprintf("documents/%s/signed.pdf", doc.ID)
	if out.Finalize.SignedPdfKey != wantKey {
		t.Fatalf("want key=%q got=%q", wantKey, out.Finalize.SignedPdfKey)
	}

	// The hash covers the stamped content, not the appended trail page.
	stamped := append([]byte("unsigned-pdf"), []byte("|stamped")...)
	sum := sha256.Sum256(stamped)
	if want := hex.EncodeToString(sum[:]); out.Finalize.SignedPdfSHA256 != want {
		t.Fatalf("want sha=%q got=%q", want, out.Finalize.SignedPdfSHA256)
	}

	final, ok := h.internal.objects[wantKey]
	if !ok {
		t.Fatalf("signed pdf missing from internal storage")
	}
	if !bytes.HasPrefix(final, stamped) {
		t.Fatalf("signed artifact must start with the stamped content")
	}
	if doc.Status != types.DocumentStatusCompleted {
		t.Fatalf("want completed status, got %q", doc.Status)
	}
	if h.webhooks.docCompleted != 1 {
		t.Fatalf("want one completion webhook, got %d", h.webhooks.docCompleted)
	}
	if len(h.emails.completed) != 1 {
		t.Fatalf("want one completion email fan-out, got %d", len(h.emails.completed))
	}
}

func TestCompleteSignerTwiceConflicts(t *testing.T) {
	h, doc, first, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")

	if _, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role}); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	_, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role})
	if !apierr.IsStatus(err, 409) {
		t.Fatalf("want conflict on repeat completion, got %v", err)
	}
}

func TestCompleteCompletedDocumentConflicts(t *testing.T) {
	h, doc, first, _ := twoSignerSetup(t)
	doc.Status = types.DocumentStatusCompleted

	_, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role})
	if !apierr.IsStatus(err, 409) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestCompleteNextSignerEmailFailureIsNonFatal(t *testing.T) {
	h, doc, first, _ := twoSignerSetup(t)
	h.fillSignature(t, doc, "sig-1", "signer-1")
	h.emails.failNext = true

	out, err := h.orch.Complete(h.dbc, &Session{Document: doc, Signer: first, Role: first.Role})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Status != types.DocumentStatusPartial {
		t.Fatalf("want partial outcome, got %q", out.Status)
	}
	got := h.audits.eventTypes(doc.ID)
	for _, e := range got {
		if e == types.AuditNextSignerNotified {
			t.Fatalf("failed email must not record a notified event: %v", got)
		}
	}
}

func TestCompleteSingleSignerDocument(t *testing.T) {
	doc := &types.Document{
		ID:             uuid.New(),
		Status:         types.DocumentStatusSent,
		SigningToken:   "only-tok",
		UnsignedPdfKey: "documents/unsigned.pdf",
	}
	if err := doc.SetData(types.DocumentData{
		Title:          "Offer Letter",
		OneOffDocument: true,
		Fields: []types.InlineField{
			{ID: "sig-main", FieldType: "signature", Page: 1, Width: 180, Height: 40, Required: true},
		},
	}); err != nil {
		t.Fatalf("set data: %v", err)
	}
	h := newEngineHarness(doc)
	h.internal.objects[doc.UnsignedPdfKey] = []byte("unsigned-pdf")
	h.fillSignature(t, doc, "sig-main", "")

	out, err := h.orch.Complete(h.dbc, &Session{Document: doc})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Status != types.DocumentStatusCompleted || out.Finalize == nil {
		t.Fatalf("single-signer document must finalize directly, got %+v", out)
	}
}

func TestCompleteInlineRoleWaitsForWholeDocument(t *testing.T) {
	h, doc, _, _ := twoSignerSetup(t)
	// Drop the promoted rows so both grants stay inline-only.
	h.signers.signers = map[uuid.UUID]*types.Signer{}
	h.fillSignature(t, doc, "sig-1", "signer-1")

	out, err := h.orch.Complete(h.dbc, &Session{Document: doc, Role: "signer-1"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Status != types.DocumentStatusPartial {
		t.Fatalf("want partial while other role pending, got %q", out.Status)
	}

	h.fillSignature(t, doc, "sig-2", "signer-2")
	out, err = h.orch.Complete(h.dbc, &Session{Document: doc, Role: "signer-2"})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if out.Status != types.DocumentStatusCompleted || out.Finalize == nil {
		t.Fatalf("want finalized outcome once every role satisfied, got %+v", out)
	}
}
