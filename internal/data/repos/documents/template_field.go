package documents

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// TemplateFieldRepo reads both generations of persisted template fields:
// the legacy signature_spot table and the template_field table that
// superseded it.
type TemplateFieldRepo interface {
	GetSpotsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.SignatureSpot, error)
	GetFieldsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.TemplateField, error)
}

type templateFieldRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateFieldRepo(db *gorm.DB, baseLog *logger.Logger) TemplateFieldRepo {
	return &templateFieldRepo{db: db, log: baseLog.With("repo", "TemplateFieldRepo")}
}

func (r *templateFieldRepo) GetSpotsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.SignatureSpot, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.SignatureSpot
	if err := transaction.WithContext(dbc.Ctx).
		Where("template_id = ?", templateID).
		Order("page ASC, y ASC, x ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *templateFieldRepo) GetFieldsByTemplateID(dbc dbctx.Context, templateID uuid.UUID) ([]*types.TemplateField, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.TemplateField
	if err := transaction.WithContext(dbc.Ctx).
		Where("template_id = ?", templateID).
		Order("page ASC, y ASC, x ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
