package documents

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type SignatureAssetRepo interface {
	// Create inserts a single asset. A duplicate (document_id, spot_key)
	// surfaces as a unique violation for the caller to classify.
	Create(dbc dbctx.Context, asset *types.SignatureAsset) (*types.SignatureAsset, error)
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.SignatureAsset, error)
	GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.SignatureAsset, error)
}

type signatureAssetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignatureAssetRepo(db *gorm.DB, baseLog *logger.Logger) SignatureAssetRepo {
	return &signatureAssetRepo{db: db, log: baseLog.With("repo", "SignatureAssetRepo")}
}

func (r *signatureAssetRepo) Create(dbc dbctx.Context, asset *types.SignatureAsset) (*types.SignatureAsset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if asset == nil {
		return nil, errors.New("nil asset")
	}

	if err := transaction.WithContext(dbc.Ctx).Create(asset).Error; err != nil {
		return nil, err
	}
	return asset, nil
}

func (r *signatureAssetRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.SignatureAsset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.SignatureAsset
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *signatureAssetRepo) GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.SignatureAsset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.SignatureAsset
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND spot_key = ?", docID, spotKey).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

type TextFieldValueRepo interface {
	Create(dbc dbctx.Context, value *types.TextFieldValue) (*types.TextFieldValue, error)
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.TextFieldValue, error)
	GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.TextFieldValue, error)
}

type textFieldValueRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTextFieldValueRepo(db *gorm.DB, baseLog *logger.Logger) TextFieldValueRepo {
	return &textFieldValueRepo{db: db, log: baseLog.With("repo", "TextFieldValueRepo")}
}

func (r *textFieldValueRepo) Create(dbc dbctx.Context, value *types.TextFieldValue) (*types.TextFieldValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if value == nil {
		return nil, errors.New("nil value")
	}

	if err := transaction.WithContext(dbc.Ctx).Create(value).Error; err != nil {
		return nil, err
	}
	return value, nil
}

func (r *textFieldValueRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.TextFieldValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TextFieldValue
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *textFieldValueRepo) GetByDocumentSpot(dbc dbctx.Context, docID uuid.UUID, spotKey string) (*types.TextFieldValue, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.TextFieldValue
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND spot_key = ?", docID, spotKey).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
