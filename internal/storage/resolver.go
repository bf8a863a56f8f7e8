package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	types "github.com/inkform/inkform-backend/internal/domain"
	"github.com/inkform/inkform-backend/internal/data/repos"
	"github.com/inkform/inkform-backend/internal/platform/dbctx"
	"github.com/inkform/inkform-backend/internal/platform/envutil"
	"github.com/inkform/inkform-backend/internal/platform/gcs"
	"github.com/inkform/inkform-backend/internal/platform/logger"
	"github.com/inkform/inkform-backend/internal/vault"
)

// SupportedRegions enumerates the regions a business-tier account may pin
// documents to. Everything else resolves to the default region.
var SupportedRegions = []string{"us", "eu", "ap"}

func regionSupported(region string) bool {
	for _, r := range SupportedRegions {
		if r == region {
			return true
		}
	}
	return false
}

// Location is where a new document's bytes will live.
type Location struct {
	Bucket string
	Region string
}

// Resolution is the outcome of resolving a user's preferred backend. A
// fallback is never an error; Reason says why the internal store was chosen
// instead of the user's connected provider.
type Resolution struct {
	Backend  Backend
	Provider types.StorageProvider
	FellBack bool
	Reason   string
}

type Resolver interface {
	ResolveLocation(dbc dbctx.Context, userID *uuid.UUID) (Location, error)
	PreferredBackend(dbc dbctx.Context, userID *uuid.UUID, internalBucket string) Resolution
	Internal(bucket string) Backend
}

type resolver struct {
	log          *logger.Logger
	users        repos.UserRepo
	connections  repos.StorageConnectionRepo
	sealer       vault.Vault
	gcsClient    gcs.Client
	defaultRegion string
	bucketPrefix  string
}

func NewResolver(
	log *logger.Logger,
	users repos.UserRepo,
	connections repos.StorageConnectionRepo,
	sealer vault.Vault,
	gcsClient gcs.Client,
) Resolver {
	return &resolver{
		log:           log.With("service", "StorageResolver"),
		users:         users,
		connections:   connections,
		sealer:        sealer,
		gcsClient:     gcsClient,
		defaultRegion: envutil.String("STORAGE_DEFAULT_REGION", "us"),
		bucketPrefix:  envutil.String("STORAGE_BUCKET_PREFIX", "inkform-documents"),
	}
}

func (r *resolver) bucketFor(region string) string {
	return r.bucketPrefix + "-" + region
}

// ResolveLocation picks the internal bucket and region for a new document.
// Anonymous and free/pro documents always land in the default region. A
// business account may pin a supported region via its stored preference.
func (r *resolver) ResolveLocation(dbc dbctx.Context, userID *uuid.UUID) (Location, error) {
	region := r.defaultRegion
	if userID != nil {
		u, err := r.users.GetByID(dbc, *userID)
		if err != nil {
			return Location{}, fmt.Errorf("resolve location: %w", err)
		}
		pref := strings.TrimSpace(strings.ToLower(u.PreferredRegion))
		if u.Tier == types.TierBusiness && pref != "" {
			if regionSupported(pref) {
				region = pref
			} else {
				r.log.Warn("Unsupported preferred region ignored", "user_id", userID.String(), "region", pref)
			}
		}
	}
	return Location{Bucket: r.bucketFor(region), Region: region}, nil
}

func (r *resolver) Internal(bucket string) Backend {
	if strings.TrimSpace(bucket) == "" {
		bucket = r.bucketFor(r.defaultRegion)
	}
	return NewInternal(r.gcsClient, bucket)
}

// PreferredBackend returns the backend signed output is additionally copied
// to. Any failure along the way falls back to the internal store; losing a
// storage preference must never block document completion.
func (r *resolver) PreferredBackend(dbc dbctx.Context, userID *uuid.UUID, internalBucket string) Resolution {
	fallback := func(reason string) Resolution {
		if reason != "" {
			r.log.Warn("Preferred backend unavailable, using internal store", "reason", reason)
		}
		return Resolution{
			Backend:  r.Internal(internalBucket),
			Provider: types.ProviderInternal,
			FellBack: reason != "",
			Reason:   reason,
		}
	}

	if userID == nil {
		return fallback("")
	}

	u, err := r.users.GetByID(dbc, *userID)
	if err != nil {
		return fallback(fmt.Sprintf("load user: %v", err))
	}
	if u.Tier == types.TierFree {
		// External providers are a paid feature. A downgrade after the
		// connection was made lands here.
		return fallback("")
	}

	conn, err := r.connections.GetByUserID(dbc, *userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fallback("")
		}
		return fallback(fmt.Sprintf("load connection: %v", err))
	}
	if conn == nil || conn.Provider == types.ProviderInternal {
		return fallback("")
	}

	raw, err := r.sealer.Decrypt(*userID, conn.Credentials)
	if err != nil {
		return fallback(fmt.Sprintf("decrypt credentials: %v", err))
	}

	switch conn.Provider {
	case types.ProviderEndpoint:
		creds, err := ParseEndpointCredentials(raw)
		if err != nil {
			return fallback(err.Error())
		}
		backend, err := NewEndpoint(r.log, conn.Endpoint, conn.Bucket, creds)
		if err != nil {
			return fallback(err.Error())
		}
		return Resolution{Backend: backend, Provider: types.ProviderEndpoint}
	case types.ProviderDrive:
		creds, err := ParseDriveCredentials(raw)
		if err != nil {
			return fallback(err.Error())
		}
		backend, err := NewDrive(dbc.Ctx, r.log, creds, r.driveTokenSaver(*userID, conn.ID, creds))
		if err != nil {
			return fallback(err.Error())
		}
		return Resolution{Backend: backend, Provider: types.ProviderDrive}
	default:
		return fallback(fmt.Sprintf("unknown provider %q", conn.Provider))
	}
}

// driveTokenSaver re-seals the credential blob with the rotated token and
// writes it back, keeping the refresh chain alive across restarts.
func (r *resolver) driveTokenSaver(userID, connID uuid.UUID, creds DriveCredentials) TokenSaver {
	return func(ctx context.Context, token *oauth2.Token) error {
		next := creds
		next.Token = token
		if next.Token.RefreshToken == "" {
			next.Token.RefreshToken = creds.Token.RefreshToken
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("marshal rotated credentials: %w", err)
		}
		sealed, err := r.sealer.Encrypt(userID, raw)
		if err != nil {
			return fmt.Errorf("seal rotated credentials: %w", err)
		}
		return r.connections.SaveCredentials(dbctx.New(ctx), connID, sealed)
	}
}
