package db

import (
	types "github.com/inkform/inkform-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(

		// Identity + auth
		&types.User{},
		&types.UserToken{},
		&types.StorageConnection{},

		// Documents + signing
		&types.Document{},
		&types.Signer{},
		&types.SignatureSpot{},
		&types.TemplateField{},
		&types.SignatureAsset{},
		&types.TextFieldValue{},

		// Compliance
		&types.AuditEvent{},
	)
}
