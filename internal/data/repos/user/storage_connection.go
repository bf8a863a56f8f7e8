package user

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type StorageConnectionRepo interface {
	// Upsert replaces the user's single connection in place.
	Upsert(dbc dbctx.Context, conn *types.StorageConnection) (*types.StorageConnection, error)
	GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.StorageConnection, error)
	DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error
	// SaveCredentials persists rotated provider tokens.
	SaveCredentials(dbc dbctx.Context, connID uuid.UUID, sealed []byte) error
}

type storageConnectionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStorageConnectionRepo(db *gorm.DB, baseLog *logger.Logger) StorageConnectionRepo {
	return &storageConnectionRepo{db: db, log: baseLog.With("repo", "StorageConnectionRepo")}
}

func (r *storageConnectionRepo) Upsert(dbc dbctx.Context, conn *types.StorageConnection) (*types.StorageConnection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	if conn == nil {
		return nil, errors.New("nil connection")
	}

	if err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(conn).Error; err != nil {
		return nil, err
	}
	return conn, nil
}

func (r *storageConnectionRepo) GetByUserID(dbc dbctx.Context, userID uuid.UUID) (*types.StorageConnection, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	var result types.StorageConnection
	if err := transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *storageConnectionRepo) DeleteByUserID(dbc dbctx.Context, userID uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(dbc.Ctx).
		Where("user_id = ?", userID).
		Delete(&types.StorageConnection{}).Error
}

func (r *storageConnectionRepo) SaveCredentials(dbc dbctx.Context, connID uuid.UUID, sealed []byte) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}

	return transaction.WithContext(dbc.Ctx).
		Model(&types.StorageConnection{}).
		Where("id = ?", connID).
		Update("credentials", sealed).Error
}
