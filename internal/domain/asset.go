package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignatureAsset binds one uploaded raster image to a spot. The unique index
// on (document_id, spot_key) turns a concurrent duplicate upload into a
// rejected write instead of an overwrite.
type SignatureAsset struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_signature_asset_doc_spot" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	SpotKey    string `gorm:"column:spot_key;not null;uniqueIndex:idx_signature_asset_doc_spot" json:"spot_key"`
	SignerRole string `gorm:"column:signer_role" json:"signer_role"`
	StorageKey string `gorm:"column:storage_key;not null" json:"storage_key"`
	MimeType   string `gorm:"column:mime_type" json:"mime_type"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SignatureAsset) TableName() string { return "signature_asset" }

// TextFieldValue stores the submitted value of a text, date or checkbox spot
// with the same at-most-once shape as SignatureAsset.
type TextFieldValue struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_text_field_value_doc_spot" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	SpotKey    string `gorm:"column:spot_key;not null;uniqueIndex:idx_text_field_value_doc_spot" json:"spot_key"`
	SignerRole string `gorm:"column:signer_role" json:"signer_role"`
	Value      string `gorm:"column:value" json:"value"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (TextFieldValue) TableName() string { return "text_field_value" }
