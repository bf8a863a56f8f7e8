package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DocumentStatus string

const (
	DocumentStatusCreated   DocumentStatus = "created"
	DocumentStatusSent      DocumentStatus = "sent"
	DocumentStatusPartial   DocumentStatus = "partial"
	DocumentStatusCompleted DocumentStatus = "completed"
)

type Document struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerID    *uuid.UUID `gorm:"type:uuid;index" json:"owner_id,omitempty"`
	Owner      *User      `gorm:"constraint:OnDelete:SET NULL;foreignKey:OwnerID;references:ID" json:"owner,omitempty"`
	TemplateID *uuid.UUID `gorm:"type:uuid;index" json:"template_id,omitempty"`

	Status   DocumentStatus `gorm:"column:status;not null;default:'created';index" json:"status"`
	DataJSON datatypes.JSON `gorm:"column:data_json;type:jsonb" json:"data_json"`

	// Legacy document-level token for the single-signer path. Multi-signer
	// documents authenticate via per-signer tokens instead.
	SigningToken string `gorm:"column:signing_token;uniqueIndex;not null" json:"-"`

	UnsignedPdfKey  string `gorm:"column:unsigned_pdf_key" json:"unsigned_pdf_key"`
	SignedPdfKey    string `gorm:"column:signed_pdf_key" json:"signed_pdf_key"`
	OriginalHash    string `gorm:"column:original_hash" json:"original_hash"`
	SignedPdfSHA256 string `gorm:"column:signed_pdf_sha256" json:"signed_pdf_sha256"`

	StorageBucket string `gorm:"column:storage_bucket" json:"storage_bucket"`
	StorageRegion string `gorm:"column:storage_region" json:"storage_region"`

	CallbackURL string     `gorm:"column:callback_url" json:"callback_url,omitempty"`
	ArchivedAt  *time.Time `gorm:"column:archived_at" json:"archived_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Document) TableName() string { return "document" }

func (d *Document) Completed() bool { return d.Status == DocumentStatusCompleted }

// DocumentData is the free-form bag stored in Document.DataJSON. One-off
// documents carry their signers and fields inline here.
type DocumentData struct {
	Title           string         `json:"title,omitempty"`
	OneOffDocument  bool           `json:"oneOffDocument,omitempty"`
	EmbeddedSigning bool           `json:"embeddedSigning,omitempty"`
	EmbeddedToken   string         `json:"embeddedToken,omitempty"`
	Signers         []InlineSigner `json:"signers,omitempty"`
	Fields          []InlineField  `json:"fields,omitempty"`
}

// InlineSigner is a one-off document signer as described at creation time,
// before promotion to the signer table. Token remains accepted for documents
// sent before the promotion existed.
type InlineSigner struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Token string `json:"token,omitempty"`
	Order int    `json:"order"`
}

// InlineField is an ad-hoc field embedded in document metadata. SignerID
// matches InlineSigner.ID and doubles as the owning role key.
type InlineField struct {
	ID           string  `json:"id"`
	FieldType    string  `json:"fieldType"`
	SignerID     string  `json:"signerId,omitempty"`
	Page         int     `json:"page"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`
	Required     bool    `json:"required"`
	CreatorFills bool    `json:"creatorFills,omitempty"`
	Value        string  `json:"value,omitempty"`
	Placeholder  string  `json:"placeholder,omitempty"`
	InputMode    string  `json:"inputMode,omitempty"`
}

func (d *Document) Data() (DocumentData, error) {
	var data DocumentData
	if len(d.DataJSON) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(d.DataJSON, &data); err != nil {
		return DocumentData{}, err
	}
	return data, nil
}

func (d *Document) SetData(data DocumentData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	d.DataJSON = datatypes.JSON(raw)
	return nil
}
