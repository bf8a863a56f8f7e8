package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/inkform/inkform-backend/internal/platform/logger"
)

// DriveCredentials is the decrypted credential payload for an OAuth-connected
// Google Drive account.
type DriveCredentials struct {
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	FolderID     string        `json:"folder_id,omitempty"`
	Token        *oauth2.Token `json:"token"`
}

func ParseDriveCredentials(raw []byte) (DriveCredentials, error) {
	var creds DriveCredentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return DriveCredentials{}, fmt.Errorf("parse drive credentials: %w", err)
	}
	if creds.Token == nil || strings.TrimSpace(creds.Token.RefreshToken) == "" {
		return DriveCredentials{}, fmt.Errorf("drive credentials missing refresh token")
	}
	return creds, nil
}

// TokenSaver persists a rotated OAuth token back to the credential store.
type TokenSaver func(ctx context.Context, token *oauth2.Token) error

// persistingTokenSource writes refreshed tokens through the saver so a
// rotation survives process restarts. Persistence failures are logged, not
// fatal; the in-memory token still works for the rest of the process.
type persistingTokenSource struct {
	log  *logger.Logger
	src  oauth2.TokenSource
	save TokenSaver

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	changed := tok.AccessToken != p.last
	if changed {
		p.last = tok.AccessToken
	}
	p.mu.Unlock()
	if changed && p.save != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.save(ctx, tok); err != nil {
			p.log.Warn("Persisting rotated drive token failed", "error", err.Error())
		}
	}
	return tok, nil
}

type driveBackend struct {
	log      *logger.Logger
	svc      *drive.Service
	folderID string
}

func NewDrive(ctx context.Context, log *logger.Logger, creds DriveCredentials, save TokenSaver) (Backend, error) {
	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{drive.DriveFileScope},
	}
	ts := &persistingTokenSource{
		log:  log.With("backend", "drive"),
		src:  cfg.TokenSource(ctx, creds.Token),
		save: save,
		last: creds.Token.AccessToken,
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(creds.Token, ts)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &driveBackend{
		log:      log.With("backend", "drive"),
		svc:      svc,
		folderID: strings.TrimSpace(creds.FolderID),
	}, nil
}

func (b *driveBackend) Name() string { return "drive" }

func (b *driveBackend) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	meta := &drive.File{Name: key}
	if b.folderID != "" {
		meta.Parents = []string{b.folderID}
	}
	opts := []googleapi.MediaOption{}
	if contentType != "" {
		opts = append(opts, googleapi.ContentType(contentType))
	}
	if _, err := b.svc.Files.Create(meta).Media(r, opts...).Context(ctx).Do(); err != nil {
		return fmt.Errorf("drive upload %q: %w", key, err)
	}
	return nil
}

func (b *driveBackend) findByName(ctx context.Context, key string) (*drive.File, error) {
	query := fmt.Sprintf("name = '%s' and trashed = false", strings.ReplaceAll(key, "'", "\\'"))
	if b.folderID != "" {
		query += fmt.Sprintf(" and '%s' in parents", b.folderID)
	}
	list, err := b.svc.Files.List().
		Q(query).
		Fields("files(id, name, webContentLink)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("drive lookup %q: %w", key, err)
	}
	if len(list.Files) == 0 {
		return nil, fmt.Errorf("drive object %q not found", key)
	}
	return list.Files[0], nil
}

func (b *driveBackend) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := b.findByName(ctx, key)
	if err != nil {
		return nil, err
	}
	resp, err := b.svc.Files.Get(f.Id).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("drive download %q: %w", key, err)
	}
	return resp.Body, nil
}

func (b *driveBackend) SignedURL(ctx context.Context, key string, _ time.Duration) (string, error) {
	f, err := b.findByName(ctx, key)
	if err != nil {
		return "", err
	}
	if f.WebContentLink == "" {
		return "", fmt.Errorf("drive object %q has no content link", key)
	}
	return f.WebContentLink, nil
}
