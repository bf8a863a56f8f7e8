package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StorageProvider string

const (
	// ProviderInternal is the default managed store.
	ProviderInternal StorageProvider = "internal"
	// ProviderEndpoint is an object-storage-compatible custom endpoint with
	// key credentials.
	ProviderEndpoint StorageProvider = "endpoint"
	// ProviderDrive is an OAuth-connected provider with rotating tokens.
	ProviderDrive StorageProvider = "drive"
)

// StorageConnection holds a user's external provider configuration.
// Credentials is a vault-sealed JSON blob; it is never returned raw.
type StorageConnection struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	User   *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`

	Provider    StorageProvider `gorm:"column:provider;not null" json:"provider"`
	Endpoint    string          `gorm:"column:endpoint" json:"endpoint,omitempty"`
	Bucket      string          `gorm:"column:bucket" json:"bucket,omitempty"`
	Credentials []byte          `gorm:"column:credentials;type:bytea" json:"-"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (StorageConnection) TableName() string { return "storage_connection" }
