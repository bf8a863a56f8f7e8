package documents

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// AuditEventRepo is append-only: there are deliberately no update or delete
// methods.
type AuditEventRepo interface {
	Append(dbc dbctx.Context, event *types.AuditEvent) (*types.AuditEvent, error)
	ListByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.AuditEvent, error)
}

type auditEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAuditEventRepo(db *gorm.DB, baseLog *logger.Logger) AuditEventRepo {
	return &auditEventRepo{db: db, log: baseLog.With("repo", "AuditEventRepo")}
}

func (r *auditEventRepo) Append(dbc dbctx.Context, event *types.AuditEvent) (*types.AuditEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if event == nil {
		return nil, errors.New("nil event")
	}

	if err := transaction.WithContext(dbc.Ctx).Create(event).Error; err != nil {
		return nil, err
	}
	return event, nil
}

func (r *auditEventRepo) ListByDocumentID(dbc dbctx.Context, docID uuid.UUID) ([]*types.AuditEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.AuditEvent
	if err := transaction.WithContext(dbc.Ctx).
		Where("document_id = ?", docID).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
