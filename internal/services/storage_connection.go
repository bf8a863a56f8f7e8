package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/apierr"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/storage"
	"github.com/inkform/inkform-backend/internal/vault"
)

// ConnectStorageInput carries a provider choice plus its raw credential
// payload. Credentials are sealed before they ever reach a table.
type ConnectStorageInput struct {
	Provider    types.StorageProvider `json:"provider"`
	Endpoint    string                `json:"endpoint,omitempty"`
	Bucket      string                `json:"bucket,omitempty"`
	Credentials json.RawMessage       `json:"credentials"`
}

// StorageConnectionView is the read shape. Secrets appear masked, never raw.
type StorageConnectionView struct {
	Provider  types.StorageProvider `json:"provider"`
	Endpoint  string                `json:"endpoint,omitempty"`
	Bucket    string                `json:"bucket,omitempty"`
	AccessKey string                `json:"access_key,omitempty"`
}

type StorageConnectionService interface {
	Connect(dbc dbctx.Context, userID uuid.UUID, in ConnectStorageInput) (*StorageConnectionView, error)
	Get(dbc dbctx.Context, userID uuid.UUID) (*StorageConnectionView, error)
	Disconnect(dbc dbctx.Context, userID uuid.UUID) error
}

type storageConnectionService struct {
	log         *logger.Logger
	connections repos.StorageConnectionRepo
	vault       vault.Vault
}

func NewStorageConnectionService(
	log *logger.Logger,
	repoSet repos.Set,
	v vault.Vault,
) StorageConnectionService {
	return &storageConnectionService{
		log:         log.With("service", "StorageConnectionService"),
		connections: repoSet.StorageConnection,
		vault:       v,
	}
}

func (scs *storageConnectionService) Connect(dbc dbctx.Context, userID uuid.UUID, in ConnectStorageInput) (*StorageConnectionView, error) {
	accessHint, err := validateConnectInput(in)
	if err != nil {
		return nil, err
	}

	sealed, err := scs.vault.Encrypt(userID, in.Credentials)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("seal credentials: %w", err))
	}

	conn := &types.StorageConnection{
		UserID:      userID,
		Provider:    in.Provider,
		Endpoint:    strings.TrimSpace(in.Endpoint),
		Bucket:      strings.TrimSpace(in.Bucket),
		Credentials: sealed,
	}
	if _, err := scs.connections.Upsert(dbc, conn); err != nil {
		return nil, apierr.Internal(fmt.Errorf("store connection: %w", err))
	}
	scs.log.Info("Storage connection saved",
		"user_id", userID.String(),
		"provider", string(in.Provider),
	)
	return &StorageConnectionView{
		Provider:  conn.Provider,
		Endpoint:  conn.Endpoint,
		Bucket:    conn.Bucket,
		AccessKey: accessHint,
	}, nil
}

// validateConnectInput checks the payload parses for its provider and
// returns the masked access hint shown back to the user.
func validateConnectInput(in ConnectStorageInput) (string, error) {
	switch in.Provider {
	case types.ProviderEndpoint:
		if strings.TrimSpace(in.Endpoint) == "" {
			return "", apierr.Validation(fmt.Errorf("endpoint provider requires an endpoint url"), []string{"endpoint"})
		}
		creds, err := storage.ParseEndpointCredentials(in.Credentials)
		if err != nil {
			return "", apierr.Validation(err, []string{"credentials"})
		}
		return vault.Mask(creds.AccessKey), nil
	case types.ProviderDrive:
		creds, err := storage.ParseDriveCredentials(in.Credentials)
		if err != nil {
			return "", apierr.Validation(err, []string{"credentials"})
		}
		return vault.Mask(creds.ClientID), nil
	default:
		return "", apierr.Validation(fmt.Errorf("unsupported provider %q", in.Provider), []string{"provider"})
	}
}

func (scs *storageConnectionService) Get(dbc dbctx.Context, userID uuid.UUID) (*StorageConnectionView, error) {
	conn, err := scs.connections.GetByUserID(dbc, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("storage connection")
		}
		return nil, apierr.Internal(err)
	}

	view := &StorageConnectionView{
		Provider: conn.Provider,
		Endpoint: conn.Endpoint,
		Bucket:   conn.Bucket,
	}
	// Best effort: a credential blob that no longer decrypts still lists,
	// just without the masked hint.
	if raw, derr := scs.vault.Decrypt(userID, conn.Credentials); derr == nil {
		switch conn.Provider {
		case types.ProviderEndpoint:
			if creds, perr := storage.ParseEndpointCredentials(raw); perr == nil {
				view.AccessKey = vault.Mask(creds.AccessKey)
			}
		case types.ProviderDrive:
			if creds, perr := storage.ParseDriveCredentials(raw); perr == nil {
				view.AccessKey = vault.Mask(creds.ClientID)
			}
		}
	}
	return view, nil
}

func (scs *storageConnectionService) Disconnect(dbc dbctx.Context, userID uuid.UUID) error {
	if err := scs.connections.DeleteByUserID(dbc, userID); err != nil {
		return apierr.Internal(fmt.Errorf("delete connection: %w", err))
	}
	scs.log.Info("Storage connection removed", "user_id", userID.String())
	return nil
}
