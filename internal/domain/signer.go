package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SignerStatus string

const (
	SignerStatusPending   SignerStatus = "pending"
	SignerStatusCompleted SignerStatus = "completed"
)

// Signer is one participant of a multi-signer document. OrderIndex values are
// unique per document and define the one-at-a-time notification sequence.
type Signer struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_signer_doc_order" json:"document_id"`
	Document   *Document `gorm:"constraint:OnDelete:CASCADE;foreignKey:DocumentID;references:ID" json:"document,omitempty"`

	Email string `gorm:"column:email;not null" json:"email"`
	Name  string `gorm:"column:name" json:"name"`
	// Role is the free-text key fields are matched against. For one-off
	// documents it equals the client-chosen signer id.
	Role string `gorm:"column:role;not null" json:"role"`

	Token      string       `gorm:"column:token;uniqueIndex;not null" json:"-"`
	Status     SignerStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	OrderIndex int          `gorm:"column:order_index;not null;uniqueIndex:idx_signer_doc_order" json:"order_index"`
	SignedAt   *time.Time   `gorm:"column:signed_at" json:"signed_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Signer) TableName() string { return "signer" }
