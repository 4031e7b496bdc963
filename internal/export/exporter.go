package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/model"
	"github.com/Veraticus/spice-ledger/internal/service"
)

// Store is the part of the ledger storage the exporter reads from.
type Store interface {
	GetTransactions(ctx context.Context, filter service.TransactionFilter) ([]*model.Transaction, error)
	MarkTransactionsExported(ctx context.Context, uids []string) error
	DeleteTransactions(ctx context.Context, uids []string) error
	Snapshot(ctx context.Context, destPath string) error
}

// Config holds exporter settings.
type Config struct {
	// BaseDir receives backups whose params carry no location.
	BaseDir string
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("%w: backup directory is required", common.ErrInvalidConfig)
	}
	return nil
}

// Exporter writes backups to the local filesystem and, when a Drive
// uploader is set, to Google Drive.
type Exporter struct {
	store       Store
	drive       DriveUploader
	logger      *slog.Logger
	now         func() time.Time
	config      Config
	driveConfig DriveConfig
}

// NewExporter creates an exporter over store.
func NewExporter(store Store, config Config, logger *slog.Logger) (*Exporter, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetDrive enables the GOOGLE_DRIVE target.
func (e *Exporter) SetDrive(uploader DriveUploader, config DriveConfig) {
	e.drive = uploader
	e.driveConfig = config
}

// RunBackup performs one export and returns where it was written: a file
// path for local backups, "gdrive:<file id>" for Drive uploads. It returns
// common.ErrNothingToExport when a CSV export has no candidate rows.
func (e *Exporter) RunBackup(ctx context.Context, params Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if params.Target == TargetGoogleDrive && e.drive == nil {
		return "", fmt.Errorf("%w: Google Drive backups need backup.drive credentials", common.ErrMissingConfig)
	}

	// Drive uploads are staged in the backup directory; their location names a folder.
	dir := e.config.BaseDir
	if params.Target == TargetLocal && params.Location != "" {
		dir = params.Location
	}
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve backup directory %q: %w", dir, err)
		}
		dir = abs
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	e.logger.Info("starting export", "params", params.String(), "dir", dir)

	path, err := e.nextPath(dir, params.Format)
	if err != nil {
		return "", err
	}

	var exported []string
	switch params.Format {
	case FormatDB:
		if err := e.store.Snapshot(ctx, path); err != nil {
			return "", fmt.Errorf("failed to snapshot database: %w", err)
		}
	case FormatCSV:
		exported, err = e.writeCSV(ctx, path, params)
		if err != nil {
			return "", err
		}
	}

	location := path
	if params.Target == TargetGoogleDrive {
		fileID, err := e.upload(ctx, path, params)
		if err != nil {
			return "", err
		}
		location = "gdrive:" + fileID
	}

	if len(exported) > 0 {
		if err := e.settleExported(ctx, exported, params); err != nil {
			return "", err
		}
	}

	e.logger.Info("export complete", "location", location)
	return location, nil
}

// writeCSV writes the candidate transactions to path and returns their UIDs.
func (e *Exporter) writeCSV(ctx context.Context, path string, params Params) ([]string, error) {
	filter := service.TransactionFilter{}
	if !params.StartTime.IsZero() {
		since := params.StartTime
		filter.ModifiedSince = &since
	}

	txns, err := e.store.GetTransactions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	if len(txns) == 0 {
		return nil, common.ErrNothingToExport
	}

	if err := writeCSVFile(path, txns); err != nil {
		return nil, err
	}

	uids := make([]string, len(txns))
	for i, txn := range txns {
		uids[i] = txn.UID()
	}
	return uids, nil
}

// settleExported deletes or flags transactions once their backup is stored.
func (e *Exporter) settleExported(ctx context.Context, uids []string, params Params) error {
	if params.DeleteAfterExport {
		if err := e.store.DeleteTransactions(ctx, uids); err != nil {
			return fmt.Errorf("failed to delete exported transactions: %w", err)
		}
		e.logger.Info("deleted exported transactions", "count", len(uids))
		return nil
	}
	if err := e.store.MarkTransactionsExported(ctx, uids); err != nil {
		return fmt.Errorf("failed to mark transactions exported: %w", err)
	}
	return nil
}

// upload sends the staged file at path to Drive and returns the file ID.
func (e *Exporter) upload(ctx context.Context, path string, params Params) (string, error) {
	folder := e.driveConfig.FolderID
	if params.Location != "" {
		folder = params.Location
	}

	f, err := os.Open(path) //nolint:gosec // path is built by nextPath
	if err != nil {
		return "", fmt.Errorf("failed to open staged backup: %w", err)
	}
	fileID, err := e.drive.Upload(ctx, filepath.Base(path), folder, f)
	_ = f.Close()
	if err != nil {
		e.logger.Warn("keeping staged backup after failed upload", "path", path)
		return "", err
	}

	e.logger.Info("uploaded backup to Google Drive", "file", filepath.Base(path), "file_id", fileID, "folder", folder)
	if !e.driveConfig.KeepLocalCopy {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove staged backup", "path", path, "error", err)
		}
	}
	return fileID, nil
}

// nextPath builds a timestamped file name that does not exist yet.
func (e *Exporter) nextPath(dir string, format Format) (string, error) {
	base := fmt.Sprintf("%s_ledger_export", e.now().UTC().Format("20060102_150405"))
	ext := "." + strings.ToLower(string(format))

	for i := 0; i < 100; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("no free backup file name for %s in %s", base, dir)
}
