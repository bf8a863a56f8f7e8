package repos

import (
	"gorm.io/gorm"

	"github.com/inkform/inkform-backend/internal/data/repos/documents"
	"github.com/inkform/inkform-backend/internal/data/repos/user"
	"github.com/inkform/inkform-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserTokenRepo = user.UserTokenRepo
type StorageConnectionRepo = user.StorageConnectionRepo

type DocumentRepo = documents.DocumentRepo
type SignerRepo = documents.SignerRepo
type SignatureAssetRepo = documents.SignatureAssetRepo
type TextFieldValueRepo = documents.TextFieldValueRepo
type AuditEventRepo = documents.AuditEventRepo
type TemplateFieldRepo = documents.TemplateFieldRepo

// Set bundles every repo for wiring.
type Set struct {
	User              UserRepo
	UserToken         UserTokenRepo
	StorageConnection StorageConnectionRepo

	Document       DocumentRepo
	Signer         SignerRepo
	SignatureAsset SignatureAssetRepo
	TextFieldValue TextFieldValueRepo
	AuditEvent     AuditEventRepo
	TemplateField  TemplateFieldRepo
}

func NewSet(db *gorm.DB, log *logger.Logger) Set {
	return Set{
		User:              user.NewUserRepo(db, log),
		UserToken:         user.NewUserTokenRepo(db, log),
		StorageConnection: user.NewStorageConnectionRepo(db, log),

		Document:       documents.NewDocumentRepo(db, log),
		Signer:         documents.NewSignerRepo(db, log),
		SignatureAsset: documents.NewSignatureAssetRepo(db, log),
		TextFieldValue: documents.NewTextFieldValueRepo(db, log),
		AuditEvent:     documents.NewAuditEventRepo(db, log),
		TemplateField:  documents.NewTemplateFieldRepo(db, log),
	}
}
