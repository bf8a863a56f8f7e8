package documents

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type SignerRepo interface {
	Create(dbc dbctx.Context, signers []*types.Signer) ([]*types.Signer, error)
	GetByID(dbc dbctx.Context, signerID uuid.UUID) (*types.Signer, error)
	GetByToken(dbc dbctx.Context, token string) (*types.Signer, error)
	// GetByDocumentID returns signers in ascending order_index.
	GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error)
	// PendingByDocumentID returns still-pending signers in ascending
	// order_index.
	PendingByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error)
	// MarkCompleted flips a pending signer to completed; a signer that
	// already completed is left untouched and reported via the bool.
	MarkCompleted(dbc dbctx.Context, signerID uuid.UUID, at time.Time) (bool, error)
}

type signerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignerRepo(db *gorm.DB, baseLog *logger.Logger) SignerRepo {
	return &signerRepo{db: db, log: baseLog.With("repo", "SignerRepo")}
}

func (r *signerRepo) Create(dbc dbctx.Context, signers []*types.Signer) ([]*types.Signer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if len(signers) == 0 {
		return []*types.Signer{}, nil
	}

	if err := transaction.WithContext(dbc.Ctx).Create(&signers).Error; err != nil {
		return nil, err
	}
	return signers, nil
}

func (r *signerRepo) GetByID(dbc dbctx.Context, signerID uuid.UUID) (*types.Signer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Signer
	if err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", signerID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *signerRepo) GetByToken(dbc dbctx.Context, token string) (*types.Signer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.Signer
	if err := transaction.WithContext(dbc.Ctx).
		Where("token = ?", token).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *signerRepo) GetByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Signer
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *signerRepo) PendingByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.Signer, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Signer
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ? AND status = ?", docID, types.SignerStatusPending).
		Order("order_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *signerRepo) MarkCompleted(dbc dbctx.Context, signerID uuid.UUID, at time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Signer{}).
		Where("id = ? AND status = ?", signerID, types.SignerStatusPending).
		Updates(map[string]interface{}{
			"status":    types.SignerStatusCompleted,
			"signed_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
