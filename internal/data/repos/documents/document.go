package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// ErrAlreadyCompleted is returned by guarded writes that require the
// document to still be open.
var ErrAlreadyCompleted = errors.New("document already completed")

type DocumentRepo interface {
	Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error)
	GetByID(dbc dbctx.Context, docID uuid.UUID) (*types.Document, error)
	GetBySigningToken(dbc dbctx.Context, token string) (*types.Document, error)
	ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, includeArchived bool) ([]*types.Document, error)
	Save(dbc dbctx.Context, doc *types.Document) error
	SetStatus(dbc dbctx.Context, docID uuid.UUID, status types.DocumentStatus) error
	// MarkCompleted is the single transition into the completed state. The
	// guarded WHERE clause makes a second finalization a no-op that
	// surfaces as ErrAlreadyCompleted.
	MarkCompleted(dbc dbctx.Context, docID uuid.UUID, signedPdfKey, signedPdfSHA256 string) error
	SetArchived(dbc dbctx.Context, docID uuid.UUID, archivedAt *time.Time) error
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	return &documentRepo{db: db, log: baseLog.With("repo", "DocumentRepo")}
}

func (r *documentRepo) Create(dbc dbctx.Context, doc *types.Document) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if doc == nil {
		return nil, errors.New("nil document")
	}

	if err := transaction.WithContext(dbc.Ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByID(dbc dbctx.Context, docID uuid.UUID) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Document
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", docID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *documentRepo) GetBySigningToken(dbc dbctx.Context, token string) (*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Document
	if err := transaction.WithContext(dbc.Ctx).
		Where("signing_token = ?", token).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *documentRepo) ListByOwner(dbc dbctx.Context, ownerID uuid.UUID, includeArchived bool) ([]*types.Document, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Document
	q := transaction.WithContext(dbc.Ctx).Where("owner_id = ?", ownerID)
	if !includeArchived {
		q = q.Where("archived_at IS NULL")
	}
	if err := q.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) Save(dbc dbctx.Context, doc *types.Document) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if doc == nil {
		return errors.New("nil document")
	}
	return transaction.WithContext(dbc.Ctx).Save(doc).Error
}

func (r *documentRepo) SetStatus(dbc dbctx.Context, docID uuid.UUID, status types.DocumentStatus) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ? AND status <> ?", docID, types.DocumentStatusCompleted).
		Update("status", status).Error
}

func (r *documentRepo) MarkCompleted(dbc dbctx.Context, docID uuid.UUID, signedPdfKey, signedPdfSHA256 string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ? AND status <> ?", docID, types.DocumentStatusCompleted).
		Updates(map[string]interface{}{
			"status":            types.DocumentStatusCompleted,
			"signed_pdf_key":    signedPdfKey,
			"signed_pdf_sha256": signedPdfSHA256,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}

func (r *documentRepo) SetArchived(dbc dbctx.Context, docID uuid.UUID, archivedAt *time.Time) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Document{}).
		Where("id = ? AND status <> ?", docID, types.DocumentStatusCompleted).
		Update("archived_at", archivedAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyCompleted
	}
	return nil
}
