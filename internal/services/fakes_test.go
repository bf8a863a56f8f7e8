package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/storage"
)

func testLogger() *logger.Logger {
	log, err := logger.New("dev")
	if err != nil {
		panic(err)
	}
	return log
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*types.User{}}
}

func (r *fakeUserRepo) Create(dbc dbctx.Context, u *types.User) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.ID] = u
	return u, nil
}

func (r *fakeUserRepo) GetByID(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) GetByEmail(dbc dbctx.Context, email string) (*types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	_, err := r.GetByEmail(dbc, email)
	if err == nil {
		return true, nil
	}
	return false, nil
}

func (r *fakeUserRepo) Save(dbc dbctx.Context, u *types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
	return nil
}

type fakeUserTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*types.UserToken
}

func newFakeUserTokenRepo() *fakeUserTokenRepo {
	return &fakeUserTokenRepo{tokens: map[uuid.UUID]*types.UserToken{}}
}

func (r *fakeUserTokenRepo) Create(dbc dbctx.Context, token *types.UserToken) (*types.UserToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	r.tokens[token.ID] = token
	return token, nil
}

func (r *fakeUserTokenRepo) GetByAccessToken(dbc dbctx.Context, accessToken string) (*types.UserToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.AccessToken == accessToken {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserTokenRepo) GetByRefreshToken(dbc dbctx.Context, refreshToken string) (*types.UserToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tokens {
		if t.RefreshToken == refreshToken {
			return t, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeUserTokenRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tokens {
		if t.UserID == userID {
			delete(r.tokens, id)
		}
	}
	return nil
}

type fakeConnectionRepo struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*types.StorageConnection
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{conns: map[uuid.UUID]*types.StorageConnection{}}
}

func (r *fakeConnectionRepo) Upsert(dbc dbctx.Context, conn *types.StorageConnection) (*types.StorageConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	r.conns[conn.UserID] = conn
	return conn, nil
}

func (r *fakeConnectionRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.StorageConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return conn, nil
}

func (r *fakeConnectionRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, userID)
	return nil
}

func (r *fakeConnectionRepo) SaveCredentials(dbc dbctx.Context, connID uuid.UUID, sealed []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.ID == connID {
			conn.Credentials = sealed
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type fakeDocumentRepo struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*types.Document
}

func newFakeDocumentRepo() *fakeDocumentRepo {
	return &fakeDocumentRepo{docs: map[uuid.UUID]*types.Document{}}
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
		if d.OwnerID == nil || *d.OwnerID != ownerID {
			continue
		}
		if d.ArchivedAt != nil && !includeArchived {
			continue
		}
		out = append(out, d)
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

func newFakeSignerRepo() *fakeSignerRepo {
	return &fakeSignerRepo{signers: map[uuid.UUID]*types.Signer{}}
}

func (r *fakeSignerRepo) Create(dbc dbctx.Context, signers []*types.Signer) ([]*types.Signer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range signers {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		for _, existing := range r.signers {
			if existing.DocumentID == s.DocumentID && existing.OrderIndex == s.OrderIndex {
				return nil, uniqueViolation()
			}
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
	for _, a := range r.assets {
		if a.DocumentID == asset.DocumentID && a.SpotKey == asset.SpotKey {
			return nil, uniqueViolation()
		}
	}
	asset.ID = uuid.New()
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
	for _, v := range r.values {
		if v.DocumentID == value.DocumentID && v.SpotKey == value.SpotKey {
			return nil, uniqueViolation()
		}
	}
	value.ID = uuid.New()
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
	event.ID = uuid.New()
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

type fakeTemplateFieldRepo struct{}

func (fakeTemplateFieldRepo) GetSpotsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.SignatureSpot, error) {
	return nil, nil
}

func (fakeTemplateFieldRepo) GetFieldsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.TemplateField, error) {
	return nil, nil
}

type fakeBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}}
}

func (b *fakeBackend) Name() string { return "internal" }

func (b *fakeBackend) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = raw
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

type fakeResolver struct {
	internal *fakeBackend
}

func (r *fakeResolver) ResolveLocation(dbc dbctx.Context, userID *uuid.UUID) (storage.Location, error) {
	return storage.Location{Bucket: "inkform-documents-us", Region: "us"}, nil
}

func (r *fakeResolver) PreferredBackend(dbc dbctx.Context, userID *uuid.UUID, internalBucket string) storage.Resolution {
	return storage.Resolution{Backend: r.internal, Provider: types.ProviderInternal}
}

func (r *fakeResolver) Internal(bucket string) storage.Backend { return r.internal }

type fakeEmails struct {
	mu       sync.Mutex
	requests []*types.Signer
}

func (e *fakeEmails) SignerRequest(ctx context.Context, doc *types.Document, title string, signer *types.Signer) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, signer)
	return nil
}

func (e *fakeEmails) DocumentCompleted(ctx context.Context, doc *types.Document, title string, recipients []notify.Recipient, signedPdfURL string) error {
	return nil
}
