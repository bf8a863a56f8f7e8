package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/audit"
	"github.com/inkform/inkform-backend/internal/data/pgerr"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/fields"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/signing"
	"github.com/inkform/inkform-backend/internal/storage"
)

// SpotMeta is one field in the signing metadata read, annotated with the
// caller's view: whether it is already completed and whether this caller
// must still fill it.
type SpotMeta struct {
	fields.Spot
	Completed  bool   `json:"completed"`
	RequiredBy bool   `json:"required_by_caller"`
	ImageURL   string `json:"image_url,omitempty"`
}

// SigningMeta is everything the signing UI needs to render a session.
type SigningMeta struct {
	DocumentID  string               `json:"document_id"`
	Title       string               `json:"title"`
	Status      types.DocumentStatus `json:"status"`
	Role        string               `json:"role,omitempty"`
	UnsignedURL string               `json:"unsigned_url"`
	Spots       []SpotMeta           `json:"spots"`
}

// SigningService is the public token-authenticated surface: metadata read,
// the two submit operations, and complete.
type SigningService interface {
	ResolveSession(dbc dbctx.Context, docID uuid.UUID, token string) (*signing.Session, error)
	Meta(dbc dbctx.Context, session *signing.Session) (*SigningMeta, error)
	SubmitSignature(dbc dbctx.Context, session *signing.Session, spotKey string, image []byte, mimeType string) error
	SubmitValue(dbc dbctx.Context, session *signing.Session, spotKey, value string) error
	Complete(dbc dbctx.Context, session *signing.Session) (*signing.Outcome, error)
}

type signingService struct {
	log       *logger.Logger
	sessions  signing.SessionResolver
	catalog   fields.Catalog
	validator signing.Validator
	orch      signing.Orchestrator
	assets    repos.SignatureAssetRepo
	values    repos.TextFieldValueRepo
	resolver  storage.Resolver
	auditLog  audit.Log
}

func NewSigningService(
	log *logger.Logger,
	repoSet repos.Set,
	sessions signing.SessionResolver,
	catalog fields.Catalog,
	validator signing.Validator,
	orch signing.Orchestrator,
	resolver storage.Resolver,
	auditLog audit.Log,
) SigningService {
	return &signingService{
		log:       log.With("service", "SigningService"),
		sessions:  sessions,
		catalog:   catalog,
		validator: validator,
		orch:      orch,
		assets:    repoSet.SignatureAsset,
		values:    repoSet.TextFieldValue,
		resolver:  resolver,
		auditLog:  auditLog,
	}
}

func (ss *signingService) ResolveSession(dbc dbctx.Context, docID uuid.UUID, token string) (*signing.Session, error) {
	return ss.sessions.Resolve(dbc, docID, token)
}

func (ss *signingService) Meta(dbc dbctx.Context, session *signing.Session) (*SigningMeta, error) {
	doc := session.Document
	data, err := doc.Data()
	if err != nil {
		return nil, apierr.Internal(err)
	}

	spots, err := ss.catalog.All(dbc, doc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	done, err := ss.validator.CompletedKeys(dbc, doc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	required, err := ss.catalog.RequiredFor(dbc, doc, session.Role)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	requiredKeys := map[string]bool{}
	for _, s := range required {
		requiredKeys[s.SpotKey] = true
	}

	internal := ss.resolver.Internal(doc.StorageBucket)
	unsignedURL, err := internal.SignedURL(dbc.Ctx, doc.UnsignedPdfKey, unsignedURLTTL)
	if err != nil {
		return nil, apierr.Upstream(fmt.Errorf("sign unsigned pdf url: %w", err))
	}

	meta := &SigningMeta{
		DocumentID:  doc.ID.String(),
		Title:       data.Title,
		Status:      doc.Status,
		Role:        session.Role,
		UnsignedURL: unsignedURL,
	}
	for _, spot := range spots {
		sm := SpotMeta{
			Spot:       spot,
			Completed:  done[spot.SpotKey],
			RequiredBy: requiredKeys[spot.SpotKey] && !done[spot.SpotKey],
		}
		if sm.Completed && spot.IsSignatureKind() {
			if asset, aerr := ss.assets.GetByDocumentSpot(dbc, doc.ID, spot.SpotKey); aerr == nil {
				if url, uerr := internal.SignedURL(dbc.Ctx, asset.StorageKey, unsignedURLTTL); uerr == nil {
					sm.ImageURL = url
				}
			}
		}
		meta.Spots = append(meta.Spots, sm)
	}
	return meta, nil
}

func (ss *signingService) SubmitSignature(dbc dbctx.Context, session *signing.Session, spotKey string, image []byte, mimeType string) error {
	doc := session.Document
	if doc.Completed() {
		return apierr.Conflict(fmt.Errorf("document already completed"))
	}
	if len(image) == 0 {
		return apierr.Validation(fmt.Errorf("empty signature image"), []string{spotKey})
	}

	spot, err := ss.findSpot(dbc, doc, spotKey)
	if err != nil {
		return err
	}
	if !spot.IsSignatureKind() {
		return apierr.Validation(fmt.Errorf("spot %s does not take a signature image", spotKey), []string{spotKey})
	}
	if err := checkSpotOwnership(session, spot); err != nil {
		return err
	}

	storageKey := fmt.Sprintf("documents/%s/assets/%s%s", doc.ID, spot.SpotKey, extensionFor(mimeType))
	internal := ss.resolver.Internal(doc.StorageBucket)
	if err := internal.Upload(dbc.Ctx, storageKey, bytes.NewReader(image), mimeType); err != nil {
		return apierr.Upstream(fmt.Errorf("upload signature image: %w", err))
	}

	if _, err := ss.assets.Create(dbc, &types.SignatureAsset{
		DocumentID: doc.ID,
		SpotKey:    spot.SpotKey,
		SignerRole: session.Role,
		StorageKey: storageKey,
		MimeType:   mimeType,
	}); err != nil {
		if pgerr.IsUniqueViolation(err) {
			return apierr.Conflict(fmt.Errorf("spot %s already has a signature", spotKey))
		}
		return apierr.Internal(fmt.Errorf("store signature asset: %w", err))
	}

	_ = ss.auditLog.Append(dbc, doc.ID, types.AuditSignatureUploaded, session.Role, sessionEmail(session), map[string]any{
		"spot_key": spot.SpotKey,
	})
	return nil
}

func (ss *signingService) SubmitValue(dbc dbctx.Context, session *signing.Session, spotKey, value string) error {
	doc := session.Document
	if doc.Completed() {
		return apierr.Conflict(fmt.Errorf("document already completed"))
	}

	spot, err := ss.findSpot(dbc, doc, spotKey)
	if err != nil {
		return err
	}
	if spot.IsSignatureKind() {
		return apierr.Validation(fmt.Errorf("spot %s takes a signature image, not a value", spotKey), []string{spotKey})
	}
	if spot.CreatorFills {
		return apierr.Validation(fmt.Errorf("spot %s is filled by the document creator", spotKey), []string{spotKey})
	}
	if err := checkSpotOwnership(session, spot); err != nil {
		return err
	}
	if spot.FieldType != types.FieldTypeCheckbox && strings.TrimSpace(value) == "" {
		return apierr.Validation(fmt.Errorf("empty value for spot %s", spotKey), []string{spotKey})
	}

	if _, err := ss.values.Create(dbc, &types.TextFieldValue{
		DocumentID: doc.ID,
		SpotKey:    spot.SpotKey,
		SignerRole: session.Role,
		Value:      value,
	}); err != nil {
		if pgerr.IsUniqueViolation(err) {
			return apierr.Conflict(fmt.Errorf("spot %s already has a value", spotKey))
		}
		return apierr.Internal(fmt.Errorf("store field value: %w", err))
	}

	_ = ss.auditLog.Append(dbc, doc.ID, types.AuditValueSubmitted, session.Role, sessionEmail(session), map[string]any{
		"spot_key": spot.SpotKey,
	})
	return nil
}

func (ss *signingService) Complete(dbc dbctx.Context, session *signing.Session) (*signing.Outcome, error) {
	return ss.orch.Complete(dbc, session)
}

func (ss *signingService) findSpot(dbc dbctx.Context, doc *types.Document, spotKey string) (*fields.Spot, error) {
	spots, err := ss.catalog.All(dbc, doc)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	for i := range spots {
		if spots[i].SpotKey == spotKey {
			return &spots[i], nil
		}
	}
	return nil, apierr.NotFound("spot")
}

// checkSpotOwnership enforces role scoping. Document-level grants may fill
// any spot; signer-scoped grants only their own.
func checkSpotOwnership(session *signing.Session, spot *fields.Spot) error {
	if session.SingleSigner() {
		return nil
	}
	if spot.OwnerSignerRole != "" && spot.OwnerSignerRole != session.Role {
		return apierr.Forbidden(
			fmt.Errorf("spot %s is assigned to another signer", spot.SpotKey),
			session.Role,
			spot.OwnerSignerRole,
		)
	}
	return nil
}

func sessionEmail(session *signing.Session) string {
	if session.Signer != nil {
		return session.Signer.Email
	}
	return ""
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
