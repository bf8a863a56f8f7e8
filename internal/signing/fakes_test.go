package signing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/data/repos/documents"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/platform/redlock"
	"github.com/inkform/inkform-backend/internal/storage"
)

func testLogger() *logger.Logger {
	log, err := logger.New("dev")
	if err != nil {
		panic(err)
	}
	return log
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*types.Document
}

func newFakeDocumentRepo(docs ...*types.Document) *fakeDocumentRepo {
	r := &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = d
	}
	return r
}

func (r *fakeDocumentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	r.docs[doc.ID] = doc
	return doc, nil
}

func (r *fakeDocumentRepo) GetByID(dbc dbctx.Context, docID uuid.UUID) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return doc, nil
}

func (r *fakeDocumentRepo) GetBySigningToken(dbc dbctx.Context, token string) (*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.docs {
		if d.SigningToken == token {
			return d, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeDocumentRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, includeArchived bool) ([]*types.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Document
	for _, d := range r.docs {
		if d.OwnerID != nil && *d.OwnerID == ownerID {
			if d.ArchivedAt != nil && !includeArchived {
				continue
			}
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) Save(dbc dbctx.Context, doc *types.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

func (r *fakeDocumentRepo) SetStatus(dbc dbctx.Context, docID uuid.UUID, status types.DocumentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	doc.Status = status
	return nil
}

func (r *fakeDocumentRepo) MarkCompleted(dbc dbctx.Context, docID uuid.UUID, signedPdfKey, signedPdfSHA256 string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if doc.Status == types.DocumentStatusCompleted {
		return documents.ErrAlreadyCompleted
	}
	doc.Status = types.DocumentStatusCompleted
	doc.SignedPdfKey = signedPdfKey
	doc.SignedPdfSHA256 = signedPdfSHA256
	return nil
}

func (r *fakeDocumentRepo) SetArchived(dbc dbctx.Context, docID uuid.UUID, archivedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[docID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	doc.ArchivedAt = archivedAt
	return nil
}

type fakeSignerRepo struct {
	mu      sync.Mutex
	signers map[uuid.UUID]*types.Signer
}

func newFakeSignerRepo(signers ...*types.Signer) *fakeSignerRepo {
	r := &fakeSignerRepo{signers: map[uuid.UUID]*types.Signer{}}
	for _, s := range signers {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.signers[s.ID] = s
	}
	return r
}

func (r *fakeSignerRepo) Create(dbc dbctx.Context, signers []*types.Signer) ([]*types.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range signers {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		r.signers[s.ID] = s
	}
	return signers, nil
}

func (r *fakeSignerRepo) GetByID(dbc dbctx.Context, signerID uuid.UUID) (*types.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signers[signerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeSignerRepo) GetByToken(dbc dbctx.Context, token string) (*types.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.signers {
		if s.Token == token {
			return s, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeSignerRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Signer
	for _, s := range r.signers {
		if s.DocumentID == docID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *fakeSignerRepo) PendingByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error) {
	all, _ := r.GetByDocumentID(dbc, docID)
	var out []*types.Signer
	for _, s := range all {
		if s.Status == types.SignerStatusPending {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeSignerRepo) MarkCompleted(dbc dbctx.Context, signerID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.signers[signerID]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	if s.Status == types.SignerStatusCompleted {
		return false, nil
	}
	s.Status = types.SignerStatusCompleted
	s.SignedAt = &at
	return true, nil
}

type fakeAssetRepo struct {
	mu     sync.Mutex
	assets []*types.SignatureAsset
}

func (r *fakeAssetRepo) Create(dbc dbctx.Context, asset *types.SignatureAsset) (*types.SignatureAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	r.assets = append(r.assets, asset)
	return asset, nil
}

func (r *fakeAssetRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.SignatureAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.SignatureAsset
	for _, a := range r.assets {
		if a.DocumentID == docID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAssetRepo) GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.SignatureAsset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.assets {
		if a.DocumentID == docID && a.SpotKey == spotKey {
			return a, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeValueRepo struct {
	mu     sync.Mutex
	values []*types.TextFieldValue
}

func (r *fakeValueRepo) Create(dbc dbctx.Context, value *types.TextFieldValue) (*types.TextFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if value.ID == uuid.Nil {
		value.ID = uuid.New()
	}
	r.values = append(r.values, value)
	return value, nil
}

func (r *fakeValueRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.TextFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.TextFieldValue
	for _, v := range r.values {
		if v.DocumentID == docID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *fakeValueRepo) GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.TextFieldValue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.values {
		if v.DocumentID == docID && v.SpotKey == spotKey {
			return v, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeAuditEventRepo struct {
	mu     sync.Mutex
	events []*types.AuditEvent
}

func (r *fakeAuditEventRepo) Append(dbc dbctx.Context, event *types.AuditEvent) (*types.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	r.events = append(r.events, event)
	return event, nil
}

func (r *fakeAuditEventRepo) ListByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.AuditEvent
	for _, e := range r.events {
		if e.DocumentID == docID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeAuditEventRepo) eventTypes(docID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.DocumentID == docID {
			out = append(out, e.EventType)
		}
	}
	return out
}

type fakeTemplateFieldRepo struct {
	spots     []*types.SignatureSpot
	tmplItems []*types.TemplateField
}

func (r *fakeTemplateFieldRepo) GetSpotsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.SignatureSpot, error) {
	return r.spots, nil
}

func (r *fakeTemplateFieldRepo) GetFieldsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.TemplateField, error) {
	return r.tmplItems, nil
}

// fakeBackend stores objects in memory and counts uploads per key.
type fakeBackend struct {
	mu      sync.Mutex
	name    string
	objects map[string][]byte
	uploads int
	failUp  bool
}

func newFakeBackend(name string) *fakeBackend {
	return &fakeBackend{name: name, objects: map[string][]byte{}}
}

func (b *fakeBackend) Name() string { return b.name }

func (b *fakeBackend) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUp {
		return fmt.Errorf("upload refused")
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.objects[key] = raw
	b.uploads++
	return nil
}

func (b *fakeBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *fakeBackend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://signed.example.test/" + key, nil
}

// fakeResolver hands out a fixed internal backend and a configurable
// preferred resolution.
type fakeResolver struct {
	internal  *fakeBackend
	preferred storage.Resolution
}

func (r *fakeResolver) ResolveLocation(dbc dbctx.Context, userID *uuid.UUID) (storage.Location, error) {
	return storage.Location{Bucket: "inkform-documents-us", Region: "us"}, nil
}

func (r *fakeResolver) PreferredBackend(dbc dbctx.Context, userID *uuid.UUID, internalBucket string) storage.Resolution {
	if r.preferred.Backend == nil {
		return storage.Resolution{Backend: r.internal, Provider: types.ProviderInternal}
	}
	return r.preferred
}

func (r *fakeResolver) Internal(bucket string) storage.Backend { return r.internal }

type fakeEmails struct {
	mu        sync.Mutex
	requests  []*types.Signer
	completed [][]notify.Recipient
	failNext  bool
}

func (e *fakeEmails) SignerRequest(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.failNext {
		return fmt.Errorf("smtp down")
	}
	e.requests = append(e.requests, signer)
	return nil
}

func (e *fakeEmails) DocumentCompleted(ctx context.Context, doc *types.Document, title string, recipients []notify.Recipient, signedPdfURL string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.completed = append(e.completed, recipients)
	return nil
}

type fakeWebhooks struct {
	mu            sync.Mutex
	docCompleted  int
	signerEvents  []*types.Signer
	failCompleted bool
}

func (w *fakeWebhooks) DocumentCompleted(ctx context.Context, doc *types.Document, title, signedPdfURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failCompleted {
		return fmt.Errorf("callback returned 500")
	}
	w.docCompleted++
	return nil
}

func (w *fakeWebhooks) SignerCompleted(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signerEvents = append(w.signerEvents, signer)
	return nil
}

// fakeStamper tags the input so tests can see the pipeline ordering without
// real pdf work.
type fakeStamper struct {
	mu    sync.Mutex
	calls int
}

func (s *fakeStamper) Stamp(input []byte, spots []fields.Spot, images map[string][]byte, values map[string]string) ([]byte, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return append(append([]byte{}, input...), []byte("|stamped")...), nil
}

type fakeTrail struct{}

func (fakeTrail) Render(trail AuditTrail) ([]byte, error) {
	return []byte("trail:" + trail.ContentHash), nil
}

func (fakeTrail) Append(stamped, trailPage []byte) ([]byte, error) {
	return append(append([]byte{}, stamped...), trailPage...), nil
}

// engineHarness wires a full in-memory signing engine around one document.
type engineHarness struct {
	dbc       dbctx.Context
	docs      *fakeDocumentRepo
	signers   *fakeSignerRepo
	assets    *fakeAssetRepo
	values    *fakeValueRepo
	audits    *fakeAuditEventRepo
	internal  *fakeBackend
	resolver  *fakeResolver
	emails    *fakeEmails
	webhooks  *fakeWebhooks
	stamper   *fakeStamper
	catalog   fields.Catalog
	validator Validator
	finalizer Finalizer
	orch      Orchestrator
}

func newEngineHarness(docs ...*types.Document) *engineHarness {
	log := testLogger()
	h := &engineHarness{
		dbc:      dbctx.New(context.Background()),
		docs:     newFakeDocumentRepo(docs...),
		signers:  newFakeSignerRepo(),
		assets:   &fakeAssetRepo{},
		values:   &fakeValueRepo{},
		audits:   &fakeAuditEventRepo{},
		internal: newFakeBackend("internal"),
		emails:   &fakeEmails{},
		webhooks: &fakeWebhooks{},
		stamper:  &fakeStamper{},
	}
	h.resolver = &fakeResolver{internal: h.internal}

	repoSet := repos.Set{
		Document:       h.docs,
		Signer:         h.signers,
		SignatureAsset: h.assets,
		TextFieldValue: h.values,
		AuditEvent:     h.audits,
		TemplateField:  &fakeTemplateFieldRepo{},
	}
	auditLog := audit.NewLog(log, h.audits)
	h.catalog = fields.NewCatalog(log, repoSet.TemplateField)
	h.validator = NewValidator(log, h.catalog, h.assets, h.values)
	h.finalizer = NewFinalizer(log, repoSet, h.catalog, h.stamper, fakeTrail{}, auditLog, h.resolver, h.emails, h.webhooks)
	h.orch = NewOrchestrator(log, repoSet, h.validator, h.finalizer, auditLog, h.emails, h.webhooks, redlock.Noop())
	return h
}
