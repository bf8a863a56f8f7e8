package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/signing"
)

type signFixture struct {
	dbc      dbctx.Context
	svc      SigningService
	doc      *types.Document
	signers  *fakeSignerRepo
	assets   *fakeAssetRepo
	internal *fakeBackend
}

// newSignFixture builds a two-signer one-off document with a signature and a
// text spot per signer.
func newSignFixture(t *testing.T) *signFixture {
	t.Helper()
	log := testLogger()
	doc := &types.Document{
		ID:             uuid.New(),
		Status:         types.DocumentStatusSent,
		SigningToken:   "doc-token",
		UnsignedPdfKey: "documents/unsigned.pdf",
		StorageBucket:  "inkform-documents-us",
	}
	if err := doc.SetData(types.DocumentData{
		Title:          "Lease",
		OneOffDocument: true,
		Signers: []types.InlineSigner{
			{ID: "tenant", Email: "tenant@example.com", Order: 0},
			{ID: "landlord", Email: "landlord@example.com", Order: 1},
		},
		Fields: []types.InlineField{
			{ID: "sig-tenant", FieldType: "signature", SignerID: "tenant", Page: 1, Width: 180, Height: 40, Required: true},
			{ID: "date-tenant", FieldType: "date", SignerID: "tenant", Page: 1, Width: 120, Height: 20, Required: true},
			{ID: "sig-landlord", FieldType: "signature", SignerID: "landlord", Page: 1, Width: 180, Height: 40, Required: true},
			{ID: "unit-no", FieldType: "text", SignerID: "tenant", Page: 1, Width: 80, Height: 20, Required: true, CreatorFills: true, Value: "4B"},
		},
	}); err != nil {
		t.Fatalf("set data: %v", err)
	}

	f := &signFixture{
		dbc:      dbctx.New(context.Background()),
		doc:      doc,
		signers:  newFakeSignerRepo(),
		assets:   &fakeAssetRepo{},
		internal: newFakeBackend(),
	}
	docs := newFakeDocumentRepo()
	if _, err := docs.Create(f.dbc, doc); err != nil {
		t.Fatalf("seed doc: %v", err)
	}
	f.internal.objects[doc.UnsignedPdfKey] = []byte("unsigned")

	values := &fakeValueRepo{}
	audits := &fakeAuditEventRepo{}
	repoSet := repos.Set{
		Document:       docs,
		Signer:         f.signers,
		SignatureAsset: f.assets,
		TextFieldValue: values,
		AuditEvent:     audits,
		TemplateField:  fakeTemplateFieldRepo{},
	}
	auditLog := audit.NewLog(log, audits)
	catalog := fields.NewCatalog(log, repoSet.TemplateField)
	validator := signing.NewValidator(log, catalog, f.assets, values)
	sessions := signing.NewSessionResolver(log, docs, f.signers)
	resolver := &fakeResolver{internal: f.internal}

	f.svc = NewSigningService(log, repoSet, sessions, catalog, validator, nil, resolver, auditLog)
	return f
}

func tenantSession(f *signFixture) *signing.Session {
	return &signing.Session{Document: f.doc, Role: "tenant"}
}

func TestMetaAnnotatesSpotsForCaller(t *testing.T) {
	f := newSignFixture(t)

	if err := f.svc.SubmitSignature(f.dbc, tenantSession(f), "sig-tenant", []byte("png"), "image/png"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	meta, err := f.svc.Meta(f.dbc, tenantSession(f))
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Title != "Lease" || meta.Role != "tenant" {
		t.Fatalf("want title/role, got %+v", meta)
	}
	if meta.UnsignedURL == "" {
		t.Fatalf("want a render url for the unsigned pdf")
	}
	if len(meta.Spots) != 4 {
		t.Fatalf("meta must list every spot, got %d", len(meta.Spots))
	}

	byKey := map[string]SpotMeta{}
	for _, s := range meta.Spots {
		byKey[s.SpotKey] = s
	}
	if !byKey["sig-tenant"].Completed || byKey["sig-tenant"].RequiredBy {
		t.Fatalf("filled spot must show completed and no longer required: %+v", byKey["sig-tenant"])
	}
	if byKey["sig-tenant"].ImageURL == "" {
		t.Fatalf("completed signature spot must carry an image url")
	}
	if !byKey["date-tenant"].RequiredBy {
		t.Fatalf("unfilled own spot must be required for the caller")
	}
	if byKey["sig-landlord"].RequiredBy {
		t.Fatalf("another signer's spot must not be required for the caller")
	}
	if byKey["unit-no"].RequiredBy {
		t.Fatalf("creator-filled spot must never be required of a signer")
	}
	if byKey["unit-no"].Value != "4B" {
		t.Fatalf("creator-filled value must be visible for rendering, got %q", byKey["unit-no"].Value)
	}
}

func TestSubmitSignatureWrongRoleReportsBothRoles(t *testing.T) {
	f := newSignFixture(t)

	err := f.svc.SubmitSignature(f.dbc, tenantSession(f), "sig-landlord", []byte("png"), "image/png")
	if !apierr.IsStatus(err, 403) {
		t.Fatalf("want 403, got %v", err)
	}
	apiErr := apierr.From(err)
	if apiErr.Details["caller_role"] != "tenant" || apiErr.Details["expected_role"] != "landlord" {
		t.Fatalf("want both roles in payload, got %v", apiErr.Details)
	}
}

func TestSubmitSignatureDuplicateConflicts(t *testing.T) {
	f := newSignFixture(t)
	sess := tenantSession(f)

	if err := f.svc.SubmitSignature(f.dbc, sess, "sig-tenant", []byte("png"), "image/png"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	err := f.svc.SubmitSignature(f.dbc, sess, "sig-tenant", []byte("png2"), "image/png")
	if !apierr.IsStatus(err, 409) {
		t.Fatalf("want 409 for duplicate spot, got %v", err)
	}
}

func TestSubmitValueTypeChecks(t *testing.T) {
	f := newSignFixture(t)
	sess := tenantSession(f)

	if err := f.svc.SubmitValue(f.dbc, sess, "sig-tenant", "x"); !apierr.IsStatus(err, 400) {
		t.Fatalf("value on a signature spot must 400, got %v", err)
	}
	if err := f.svc.SubmitSignature(f.dbc, sess, "date-tenant", []byte("png"), "image/png"); !apierr.IsStatus(err, 400) {
		t.Fatalf("image on a date spot must 400, got %v", err)
	}
	if err := f.svc.SubmitValue(f.dbc, sess, "unit-no", "5C"); !apierr.IsStatus(err, 400) {
		t.Fatalf("creator-filled spot must reject signer values, got %v", err)
	}
	if err := f.svc.SubmitValue(f.dbc, sess, "nope", "x"); !apierr.IsStatus(err, 404) {
		t.Fatalf("unknown spot must 404, got %v", err)
	}
	if err := f.svc.SubmitValue(f.dbc, sess, "date-tenant", "2026-08-28"); err != nil {
		t.Fatalf("valid date submit: %v", err)
	}
}

func TestSubmitBlockedOnCompletedDocument(t *testing.T) {
	f := newSignFixture(t)
	f.doc.Status = types.DocumentStatusCompleted

	if err := f.svc.SubmitSignature(f.dbc, tenantSession(f), "sig-tenant", []byte("png"), "image/png"); !apierr.IsStatus(err, 409) {
		t.Fatalf("want 409 on completed document, got %v", err)
	}
	if err := f.svc.SubmitValue(f.dbc, tenantSession(f), "date-tenant", "now"); !apierr.IsStatus(err, 409) {
		t.Fatalf("want 409 on completed document, got %v", err)
	}
}

func TestSubmitStoresImageBytes(t *testing.T) {
	f := newSignFixture(t)

	if err := f.svc.SubmitSignature(f.dbc, tenantSession(f), "sig-tenant", []byte("png-bytes"), "image/png"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	asset, err := f.assets.GetByDocumentSpot(f.dbc, f.doc.ID, "sig-tenant")
	if err != nil {
		t.Fatalf("asset lookup: %v", err)
	}
	raw, ok := f.internal.objects[asset.StorageKey]
	if !ok || string(raw) != "png-bytes" {
		t.Fatalf("image bytes must land in internal storage under %q", asset.StorageKey)
	}
}
