package domain

import (
	"time"

	"github.com/google/uuid"
)

// Field types a spot can carry.
const (
	FieldTypeSignature = "signature"
	FieldTypeInitial   = "initial"
	FieldTypeText      = "text"
	FieldTypeDate      = "date"
	FieldTypeCheckbox  = "checkbox"
)

// SignatureSpot is the legacy persisted field table for template documents.
// It predates text fields and only ever holds signature/initial rectangles.
type SignatureSpot struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`

	FieldType  string  `gorm:"column:field_type;not null" json:"field_type"`
	SignerRole string  `gorm:"column:signer_role;not null" json:"signer_role"`
	Page       int     `gorm:"column:page;not null" json:"page"`
	X          float64 `gorm:"column:x;not null" json:"x"`
	Y          float64 `gorm:"column:y;not null" json:"y"`
	Width      float64 `gorm:"column:width;not null" json:"width"`
	Height     float64 `gorm:"column:height;not null" json:"height"`
	Required   bool    `gorm:"column:required;not null;default:true" json:"required"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (SignatureSpot) TableName() string { return "signature_spot" }

// TemplateField supersedes SignatureSpot and adds text/date/checkbox types
// plus the creator-fills flag. Both tables are read and merged by the field
// catalog.
type TemplateField struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TemplateID uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"`

	FieldType  string  `gorm:"column:field_type;not null" json:"field_type"`
	SignerRole string  `gorm:"column:signer_role;not null" json:"signer_role"`
	Page       int     `gorm:"column:page;not null" json:"page"`
	X          float64 `gorm:"column:x;not null" json:"x"`
	Y          float64 `gorm:"column:y;not null" json:"y"`
	Width      float64 `gorm:"column:width;not null" json:"width"`
	Height     float64 `gorm:"column:height;not null" json:"height"`
	Required   bool    `gorm:"column:required;not null;default:true" json:"required"`

	// CreatorFills marks a field whose value the document owner supplies
	// once at creation time. Never valid for signature/initial fields.
	CreatorFills bool   `gorm:"column:creator_fills;not null;default:false" json:"creator_fills"`
	Value        string `gorm:"column:value" json:"value,omitempty"`
	Placeholder  string `gorm:"column:placeholder" json:"placeholder,omitempty"`
	InputMode    string `gorm:"column:input_mode" json:"input_mode,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (TemplateField) TableName() string { return "template_field" }
