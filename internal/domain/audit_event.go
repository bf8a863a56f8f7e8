package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// AuditEvent is append-only: rows are never updated or deleted. The
// finalization pipeline renders the full ordered list onto the trail page.
type AuditEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	DocumentID uuid.UUID `gorm:"type:uuid;not null;index" json:"document_id"`

	EventType  string         `gorm:"column:event_type;not null" json:"event_type"`
	Actor      string         `gorm:"column:actor" json:"actor"`
	ActorEmail string         `gorm:"column:actor_email" json:"actor_email"`
	Detail     datatypes.JSON `gorm:"column:detail;type:jsonb" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index" json:"created_at"`
}

func (AuditEvent) TableName() string { return "audit_event" }

// Event types recorded by the signing engine.
const (
	AuditDocumentCreated     = "document.created"
	AuditDocumentSent        = "document.sent"
	AuditDocumentArchived    = "document.archived"
	AuditDocumentUnarchived  = "document.unarchived"
	AuditSignatureUploaded   = "signature.uploaded"
	AuditValueSubmitted      = "value.submitted"
	AuditSignerCompleted     = "signer.completed"
	AuditNextSignerNotified  = "signer.notified"
	AuditDocumentCompleted   = "document.completed"
	AuditStorageFallback     = "storage.fallback"
	AuditWebhookDispatched   = "webhook.dispatched"
	AuditWebhookFailed       = "webhook.failed"
	AuditCompletionEmailSent = "email.completion_sent"
)
