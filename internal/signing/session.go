package signing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// Session is a resolved signing grant. Signer is nil for document-level
// grants (the legacy single-signer token and embedded sessions); Role is set
// whenever the grant is scoped to one signer, even for inline signers that
// were never promoted to the signer table.
type Session struct {
	Document *types.Document
	Signer   *types.Signer
	Role     string
}

// SingleSigner reports whether the grant covers the whole document.
func (s *Session) SingleSigner() bool { return s.Role == "" }

// SessionResolver turns an inbound (document id, token) pair into a Session.
// Tokens are accepted from every place the product has ever issued them:
// the document-level signing token, the embedded session token, the signer
// table, and signer tokens recorded inline before promotion existed. New
// documents only ever mint the first and third kinds.
type SessionResolver interface {
	Resolve(dbc dbctx.Context, docID uuid.UUID, token string) (*Session, error)
}

type sessionResolver struct {
	log       *logger.Logger
	documents repos.DocumentRepo
	signers   repos.SignerRepo
}

func NewSessionResolver(log *logger.Logger, documents repos.DocumentRepo, signers repos.SignerRepo) SessionResolver {
	return &sessionResolver{
		log:       log.With("service", "SessionResolver"),
		documents: documents,
		signers:   signers,
	}
}

func (r *sessionResolver) Resolve(dbc dbctx.Context, docID uuid.UUID, token string) (*Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apierr.Unauthorized(fmt.Errorf("missing access token"))
	}

	doc, err := r.documents.GetByID(dbc, docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Do not disclose whether the document exists.
			return nil, apierr.Unauthorized(fmt.Errorf("invalid access token"))
		}
		return nil, apierr.Internal(err)
	}

	if doc.SigningToken != "" && doc.SigningToken == token {
		return &Session{Document: doc}, nil
	}

	data, err := doc.Data()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("parse document data: %w", err))
	}
	if data.EmbeddedToken != "" && data.EmbeddedToken == token {
		return &Session{Document: doc}, nil
	}

	signer, err := r.signers.GetByToken(dbc, token)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Internal(err)
	}
	if signer != nil && signer.DocumentID == doc.ID {
		return &Session{Document: doc, Signer: signer, Role: signer.Role}, nil
	}

	// Inline signer tokens predate promotion to the signer table. When a
	// promoted row exists for the same role, prefer it so completion state
	// is tracked properly.
	for _, inline := range data.Signers {
		if inline.Token == "" || inline.Token != token {
			continue
		}
		if promoted, perr := r.promotedByRole(dbc, doc.ID, inline.ID); perr == nil && promoted != nil {
			return &Session{Document: doc, Signer: promoted, Role: promoted.Role}, nil
		}
		return &Session{Document: doc, Role: inline.ID}, nil
	}

	return nil, apierr.Unauthorized(fmt.Errorf("invalid access token"))
}

func (r *sessionResolver) promotedByRole(dbc dbctx.Context, docID uuid.UUID, role string) (*types.Signer, error) {
	all, err := r.signers.GetByDocumentID(dbc, docID)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Role == role {
			return s, nil
		}
	}
	return nil, nil
}
