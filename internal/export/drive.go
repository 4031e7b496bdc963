package export

import (
	"context"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// DriveUploader stores a finished backup file in Google Drive.
type DriveUploader interface {
	// Upload creates a file named name in folderID (the Drive root when
	// empty) and returns the new file's ID.
	Upload(ctx context.Context, name, folderID string, content io.Reader) (string, error)
}

// DriveConfig holds Google Drive credentials for backup uploads. Either a
// service account key or an OAuth2 client with a refresh token is required.
type DriveConfig struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	// FolderID receives uploads whose params carry no location.
	FolderID string
	// KeepLocalCopy leaves the staged file in the backup directory after upload.
	KeepLocalCopy bool
}

// Configured reports whether any credentials were supplied.
func (c DriveConfig) Configured() bool {
	return c.ServiceAccountPath != "" || c.ClientID != "" || c.ClientSecret != "" || c.RefreshToken != ""
}

// Validate checks that exactly one authentication method is configured.
func (c DriveConfig) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	if !hasOAuth && !hasServiceAccount {
		return fmt.Errorf("no Google Drive authentication method configured")
	}
	if hasOAuth && hasServiceAccount {
		return fmt.Errorf("multiple Google Drive authentication methods configured; use either OAuth2 or service account")
	}
	return nil
}

// driveFiles is the slice of the Drive API the uploader calls.
type driveFiles interface {
	create(ctx context.Context, file *drive.File, content io.Reader) (*drive.File, error)
}

type driveService struct {
	service *drive.Service
}

func (d driveService) create(ctx context.Context, file *drive.File, content io.Reader) (*drive.File, error) {
	return d.service.Files.Create(file).Media(content).Fields("id", "name").Context(ctx).Do()
}

// GoogleDriveUploader uploads backups through the Drive v3 API.
type GoogleDriveUploader struct {
	files driveFiles
}

// NewGoogleDriveUploader authenticates against Google Drive.
func NewGoogleDriveUploader(ctx context.Context, config DriveConfig) (*GoogleDriveUploader, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	service, err := createDriveService(ctx, config)
	if err != nil {
		return nil, err
	}
	return &GoogleDriveUploader{files: driveService{service: service}}, nil
}

// Upload implements DriveUploader.
func (u *GoogleDriveUploader) Upload(ctx context.Context, name, folderID string, content io.Reader) (string, error) {
	file := &drive.File{Name: name}
	if folderID != "" {
		file.Parents = []string{folderID}
	}
	created, err := u.files.create(ctx, file, content)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to Google Drive: %w", name, err)
	}
	return created.Id, nil
}

// createDriveService creates a Google Drive API service.
func createDriveService(ctx context.Context, config DriveConfig) (*drive.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, drive.DriveFileScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{drive.DriveFileScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create drive service: %w", err)
	}

	return srv, nil
}
