package storage

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"avatarsynth/internal/adapters/storage/gdrive"
	"avatarsynth/internal/adapters/storage/localfs"
	"avatarsynth/internal/config"
)

// NewProvider returns the provider selected by cfg, or nil when archiving is off.
func NewProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	switch cfg.Provider {
	case config.StorageNone, "":
		return nil, nil

	case config.StorageLocalFS:
		return localfs.New(cfg.LocalRoot), nil

	case config.StorageGDrive:
		return newGDriveProvider(ctx, cfg.GDrive)

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
}

// GDriveOAuthConfig is the OAuth client the archive authorizes with. Access is
// limited to files the application created.
func GDriveOAuthConfig(cfg config.GDriveConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
		RedirectURL:  redirectURL,
	}
}

func newGDriveProvider(ctx context.Context, cfg config.GDriveConfig) (Provider, error) {
	conf := GDriveOAuthConfig(cfg, "")

	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	httpClient := conf.Client(ctx, tok)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, err
	}

	return gdrive.NewClient(srv, cfg.FolderID), nil
}
