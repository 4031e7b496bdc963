package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/drive/v3"
)

func TestExporter_DriveUploadsSnapshot(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	require.NoError(t, store.SaveTransaction(ctx, newTransaction(t, "Groceries", "54.10", time.Date(2024, 5, 30, 0, 0, 0, 0, time.UTC))))

	dir := t.TempDir()
	uploader := NewMockDriveUploader()
	exporter := newTestExporter(t, store, dir)
	exporter.SetDrive(uploader, DriveConfig{FolderID: "backups-folder"})

	location, err := exporter.RunBackup(ctx, Params{Format: FormatDB, Target: TargetGoogleDrive})
	require.NoError(t, err)
	assert.Equal(t, "gdrive:file-1", location)

	calls := uploader.GetUploadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "20240601_100000_ledger_export.db", calls[0].Name)
	assert.Equal(t, "backups-folder", calls[0].FolderID)
	assert.True(t, bytes.HasPrefix(calls[0].Content, []byte("SQLite format 3")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staged file is removed after upload")
}

func TestExporter_DriveLocationAndLocalCopy(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	txn := newTransaction(t, "Rent", "1200", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveTransaction(ctx, txn))

	dir := t.TempDir()
	uploader := NewMockDriveUploader()
	exporter := newTestExporter(t, store, dir)
	exporter.SetDrive(uploader, DriveConfig{FolderID: "default", KeepLocalCopy: true})

	_, err := exporter.RunBackup(ctx, Params{Format: FormatCSV, Target: TargetGoogleDrive, Location: "1Ab;Cd"})
	require.NoError(t, err)

	calls := uploader.GetUploadCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "1Ab;Cd", calls[0].FolderID)
	assert.Contains(t, string(calls[0].Content), txn.UID())
	assert.FileExists(t, filepath.Join(dir, "20240601_100000_ledger_export.csv"))

	exported, err := store.GetTransaction(ctx, txn.UID())
	require.NoError(t, err)
	assert.True(t, exported.IsExported)
}

func TestExporter_DriveFailureKeepsTransactions(t *testing.T) {
	ctx := context.Background()
	store := newFileStore(t)
	txn := newTransaction(t, "Rent", "1200", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveTransaction(ctx, txn))

	failure := errors.New("quota exceeded")
	uploader := NewMockDriveUploader()
	uploader.SetUploadError(failure)

	dir := t.TempDir()
	exporter := newTestExporter(t, store, dir)
	exporter.SetDrive(uploader, DriveConfig{})

	_, err := exporter.RunBackup(ctx, Params{Format: FormatCSV, Target: TargetGoogleDrive, DeleteAfterExport: true})
	assert.ErrorIs(t, err, failure)

	kept, err := store.GetTransaction(ctx, txn.UID())
	require.NoError(t, err)
	assert.False(t, kept.IsExported)
	assert.FileExists(t, filepath.Join(dir, "20240601_100000_ledger_export.csv"))
}

func TestExporter_DriveRequiresCredentials(t *testing.T) {
	store := &mockStore{}
	exporter := newTestExporter(t, store, t.TempDir())

	_, err := exporter.RunBackup(context.Background(), Params{Format: FormatDB, Target: TargetGoogleDrive})
	assert.ErrorIs(t, err, common.ErrMissingConfig)
	store.AssertNotCalled(t, "Snapshot", mock.Anything, mock.Anything)
}

type fakeDriveFiles struct {
	err     error
	created *drive.File
	content []byte
}

func (f *fakeDriveFiles) create(_ context.Context, file *drive.File, content io.Reader) (*drive.File, error) {
	f.created = file
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	f.content = data
	if f.err != nil {
		return nil, f.err
	}
	return &drive.File{Id: "drive-id", Name: file.Name}, nil
}

func TestGoogleDriveUploader_Upload(t *testing.T) {
	files := &fakeDriveFiles{}
	uploader := &GoogleDriveUploader{files: files}

	id, err := uploader.Upload(context.Background(), "backup.db", "folder-1", bytes.NewReader([]byte("data")))
	require.NoError(t, err)
	assert.Equal(t, "drive-id", id)
	assert.Equal(t, "backup.db", files.created.Name)
	assert.Equal(t, []string{"folder-1"}, files.created.Parents)
	assert.Equal(t, []byte("data"), files.content)

	_, err = uploader.Upload(context.Background(), "backup.db", "", bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, files.created.Parents)

	files.err = errors.New("403 forbidden")
	_, err = uploader.Upload(context.Background(), "backup.db", "", bytes.NewReader(nil))
	assert.ErrorIs(t, err, files.err)
}

func TestDriveConfig(t *testing.T) {
	assert.False(t, DriveConfig{FolderID: "f"}.Configured())
	assert.Error(t, DriveConfig{}.Validate())
	assert.Error(t, DriveConfig{ClientID: "id", ClientSecret: "secret"}.Validate())
	assert.NoError(t, DriveConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "r"}.Validate())
	assert.NoError(t, DriveConfig{ServiceAccountPath: "/keys/sa.json"}.Validate())
	assert.Error(t, DriveConfig{ServiceAccountPath: "/keys/sa.json", ClientID: "id", ClientSecret: "secret", RefreshToken: "r"}.Validate())

	_, err := NewGoogleDriveUploader(context.Background(), DriveConfig{ServiceAccountPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)

	uploader, err := NewGoogleDriveUploader(context.Background(), DriveConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "r"})
	require.NoError(t, err)
	assert.NotNil(t, uploader)
}
