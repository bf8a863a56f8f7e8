package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/notify"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/storage"
)

const unsignedURLTTL = time.Hour

// CreateDocumentInput is the one-off creation payload: the uploaded PDF plus
// inline fields and signers positioned by the client.
type CreateDocumentInput struct {
	Title           string               `json:"title"`
	PDF             []byte               `json:"-"`
	Fields          []types.InlineField  `json:"fields"`
	Signers         []types.InlineSigner `json:"signers"`
	CallbackURL     string               `json:"callback_url"`
	EmbeddedSigning bool                 `json:"embedded_signing"`
}

// DocumentService covers the owner-facing document lifecycle. The public
// signing surface lives in SigningService.
type DocumentService interface {
	CreateOneOff(dbc dbctx.Context, ownerID *uuid.UUID, in CreateDocumentInput) (*types.Document, error)
	Send(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (*types.Document, error)
	Get(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (*types.Document, error)
	List(dbc dbctx.Context, ownerID uuid.UUID, includeArchived bool) ([]*types.Document, error)
	SetArchived(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID, archived bool) error
	AuditTrail(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) ([]*types.AuditEvent, error)
	SignedPdfURL(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (string, error)
}

type documentService struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	signers   repos.SignerRepo
	resolver  storage.Resolver
	auditLog  audit.Log
	emails    notify.EmailSender
}

func NewDocumentService(
	log *logger.Logger,
	repoSet repos.Set,
	resolver storage.Resolver,
	auditLog audit.Log,
	emails notify.EmailSender,
) DocumentService {
	return &documentService{
		log:       log.With("service", "DocumentService"),
		documents: repoSet.Document,
		signers:   repoSet.Signer,
		resolver:  resolver,
		auditLog:  auditLog,
		emails:    emails,
	}
}

func unsignedKeyFor(docID uuid.UUID) string {
	return fmt.Sprintf("documents/%s/unsigned.pdf", docID)
}

func (ds *documentService) CreateOneOff(dbc dbctx.Context, ownerID *uuid.UUID, in CreateDocumentInput) (*types.Document, error) {
	var missing []string
	if len(in.PDF) == 0 {
		missing = append(missing, "pdf")
	}
	if strings.TrimSpace(in.Title) == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return nil, apierr.Validation(fmt.Errorf("invalid document input"), missing)
	}
	if err := validateInlineFields(in.Fields, in.Signers); err != nil {
		return nil, err
	}

	location, err := ds.resolver.ResolveLocation(dbc, ownerID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("resolve storage location: %w", err))
	}

	sum := sha256.Sum256(in.PDF)
	docID := uuid.New()

	doc := &types.Document{
		ID:             docID,
		OwnerID:        ownerID,
		Status:         types.DocumentStatusCreated,
		SigningToken:   uuid.New().String(),
		UnsignedPdfKey: unsignedKeyFor(docID),
		OriginalHash:   hex.EncodeToString(sum[:]),
		StorageBucket:  location.Bucket,
		StorageRegion:  location.Region,
		CallbackURL:    strings.TrimSpace(in.CallbackURL),
	}

	data := types.DocumentData{
		Title:           strings.TrimSpace(in.Title),
		OneOffDocument:  true,
		EmbeddedSigning: in.EmbeddedSigning,
		Signers:         in.Signers,
		Fields:          in.Fields,
	}
	if in.EmbeddedSigning {
		data.EmbeddedToken = uuid.New().String()
	}
	if err := doc.SetData(data); err != nil {
		return nil, apierr.Internal(fmt.Errorf("encode document data: %w", err))
	}

	internal := ds.resolver.Internal(location.Bucket)
	if err := internal.Upload(dbc.Ctx, doc.UnsignedPdfKey, bytes.NewReader(in.PDF), "application/pdf"); err != nil {
		return nil, apierr.Upstream(fmt.Errorf("upload unsigned pdf: %w", err))
	}

	if _, err := ds.documents.Create(dbc, doc); err != nil {
		return nil, apierr.Internal(fmt.Errorf("create document: %w", err))
	}

	if rows := promoteSigners(doc.ID, in.Signers); len(rows) > 0 {
		if _, err := ds.signers.Create(dbc, rows); err != nil {
			return nil, apierr.Internal(fmt.Errorf("create signers: %w", err))
		}
	}

	_ = ds.auditLog.Append(dbc, doc.ID, types.AuditDocumentCreated, "owner", "", map[string]any{
		"original_hash": doc.OriginalHash,
		"region":        doc.StorageRegion,
	})
	return doc, nil
}

// promoteSigners turns inline signer descriptions into signer rows with
// freshly minted tokens. OrderIndex is assigned strictly increasing from the
// client-declared order, so the per-document unique index can never trip at
// creation time.
func promoteSigners(docID uuid.UUID, inline []types.InlineSigner) []*types.Signer {
	sorted := make([]types.InlineSigner, len(inline))
	copy(sorted, inline)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	rows := make([]*types.Signer, 0, len(sorted))
	for i, s := range sorted {
		rows = append(rows, &types.Signer{
			DocumentID: docID,
			Email:      normalizeEmail(s.Email),
			Name:       strings.TrimSpace(s.Name),
			Role:       s.ID,
			Token:      uuid.New().String(),
			Status:     types.SignerStatusPending,
			OrderIndex: i,
		})
	}
	return rows
}

func validateInlineFields(fields []types.InlineField, signers []types.InlineSigner) error {
	known := map[string]bool{
		types.FieldTypeSignature: true,
		types.FieldTypeInitial:   true,
		types.FieldTypeText:      true,
		types.FieldTypeDate:      true,
		types.FieldTypeCheckbox:  true,
	}
	signerIDs := map[string]bool{}
	for _, s := range signers {
		if s.ID == "" {
			return apierr.Validation(fmt.Errorf("signer without id"), []string{"signers"})
		}
		if signerIDs[s.ID] {
			return apierr.Validation(fmt.Errorf("duplicate signer id %s", s.ID), []string{"signers"})
		}
		signerIDs[s.ID] = true
	}

	seen := map[string]bool{}
	for _, f := range fields {
		if f.ID == "" || seen[f.ID] {
			return apierr.Validation(fmt.Errorf("field ids must be unique and non-empty"), []string{"fields"})
		}
		seen[f.ID] = true
		if !known[f.FieldType] {
			return apierr.Validation(fmt.Errorf("unknown field type %q", f.FieldType), []string{f.ID})
		}
		if f.SignerID != "" && len(signers) > 0 && !signerIDs[f.SignerID] {
			return apierr.Validation(fmt.Errorf("field %s references unknown signer", f.ID), []string{f.ID})
		}
	}
	return nil
}

// Send transitions created→sent and dispatches the first notification. For
// sequential one-off documents only the lowest-order signer is emailed; the
// orchestrator notifies the rest one at a time as predecessors finish.
func (ds *documentService) Send(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (*types.Document, error) {
	doc, err := ds.ownedDocument(dbc, ownerID, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != types.DocumentStatusCreated {
		return nil, apierr.Conflict(fmt.Errorf("document already sent"))
	}

	data, err := doc.Data()
	if err != nil {
		return nil, apierr.Internal(err)
	}

	pending, err := ds.signers.PendingByDocumentID(dbc, doc.ID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	if len(pending) > 0 {
		first := pending[0]
		if err := ds.emails.SignerRequest(dbc.Ctx, doc, data.Title, first); err != nil {
			ds.log.Warn("First signer notification failed",
				"document_id", doc.ID.String(),
				"error", err.Error(),
			)
		} else {
			_ = ds.auditLog.Append(dbc, doc.ID, types.AuditNextSignerNotified, "system", first.Email, map[string]any{
				"order_index": first.OrderIndex,
			})
		}
	}

	if err := ds.documents.SetStatus(dbc, doc.ID, types.DocumentStatusSent); err != nil {
		return nil, apierr.Internal(err)
	}
	doc.Status = types.DocumentStatusSent
	_ = ds.auditLog.Append(dbc, doc.ID, types.AuditDocumentSent, "owner", "", nil)
	return doc, nil
}

func (ds *documentService) Get(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (*types.Document, error) {
	return ds.ownedDocument(dbc, ownerID, docID)
}

func (ds *documentService) List(dbc dbctx.Context, ownerID uuid.UUID, includeArchived bool) ([]*types.Document, error) {
	docs, err := ds.documents.ListByOwner(dbc, ownerID, includeArchived)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return docs, nil
}

func (ds *documentService) SetArchived(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID, archived bool) error {
	doc, err := ds.ownedDocument(dbc, ownerID, docID)
	if err != nil {
		return err
	}
	if doc.Completed() {
		return apierr.Conflict(fmt.Errorf("completed documents cannot be archived"))
	}
	var at *time.Time
	eventType := types.AuditDocumentUnarchived
	if archived {
		now := time.Now()
		at = &now
		eventType = types.AuditDocumentArchived
	}
	if err := ds.documents.SetArchived(dbc, doc.ID, at); err != nil {
		return apierr.Internal(err)
	}
	_ = ds.auditLog.Append(dbc, doc.ID, eventType, "owner", "", nil)
	return nil
}

func (ds *documentService) AuditTrail(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) ([]*types.AuditEvent, error) {
	doc, err := ds.ownedDocument(dbc, ownerID, docID)
	if err != nil {
		return nil, err
	}
	events, err := ds.auditLog.List(dbc, doc.ID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return events, nil
}

func (ds *documentService) SignedPdfURL(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (string, error) {
	doc, err := ds.ownedDocument(dbc, ownerID, docID)
	if err != nil {
		return "", err
	}
	if !doc.Completed() || doc.SignedPdfKey == "" {
		return "", apierr.NotFound("signed document")
	}
	url, err := ds.resolver.Internal(doc.StorageBucket).SignedURL(dbc.Ctx, doc.SignedPdfKey, unsignedURLTTL)
	if err != nil {
		return "", apierr.Upstream(fmt.Errorf("sign download url: %w", err))
	}
	return url, nil
}

func (ds *documentService) ownedDocument(dbc dbctx.Context, ownerID uuid.UUID, docID uuid.UUID) (*types.Document, error) {
	doc, err := ds.documents.GetByID(dbc, docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("document")
		}
		return nil, apierr.Internal(err)
	}
	if doc.OwnerID == nil || *doc.OwnerID != ownerID {
		return nil, apierr.NotFound("document")
	}
	return doc, nil
}
