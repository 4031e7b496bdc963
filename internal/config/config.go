package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-ledger/internal/common"
	"github.com/Veraticus/spice-ledger/internal/export"
	"github.com/Veraticus/spice-ledger/internal/model"
)

// Configuration keys.
const (
	KeyDatabasePath = "database.path"
	KeyBackupDir    = "backup.dir"
	KeyCommodity    = "ledger.commodity"
	KeyLogLevel     = "logging.level"
	KeyLogFormat    = "logging.format"

	KeyDriveClientID           = "backup.drive.client_id"
	KeyDriveClientSecret       = "backup.drive.client_secret"
	KeyDriveRefreshToken       = "backup.drive.refresh_token"
	KeyDriveServiceAccountPath = "backup.drive.service_account_path"
	KeyDriveFolderID           = "backup.drive.folder_id"
	KeyDriveKeepLocalCopy      = "backup.drive.keep_local_copy"
)

// EnvPrefix prefixes environment overrides, e.g. LEDGER_DATABASE_PATH.
const EnvPrefix = "LEDGER"

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	dataDir := DataDir()
	v.SetDefault(KeyDatabasePath, filepath.Join(dataDir, "ledger.db"))
	v.SetDefault(KeyBackupDir, filepath.Join(dataDir, "backups"))
	v.SetDefault(KeyCommodity, model.DefaultCommodity.Mnemonic)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// DatabasePath returns the expanded database path.
func DatabasePath(v *viper.Viper) string {
	return ExpandPath(v.GetString(KeyDatabasePath))
}

// Commodity returns the configured default commodity.
func Commodity(v *viper.Viper) (model.Commodity, error) {
	code := strings.TrimSpace(v.GetString(KeyCommodity))
	if code == "" {
		return model.Commodity{}, fmt.Errorf("%w: %s is empty", common.ErrInvalidConfig, KeyCommodity)
	}
	return model.CommodityByCode(code), nil
}

// LoadExportConfig builds the exporter configuration.
func LoadExportConfig(v *viper.Viper) (export.Config, error) {
	dir := ExpandPath(v.GetString(KeyBackupDir))
	if dir == "" {
		return export.Config{}, fmt.Errorf("%w: %s", common.ErrMissingConfig, KeyBackupDir)
	}
	cfg := export.Config{BaseDir: dir}
	if err := cfg.Validate(); err != nil {
		return export.Config{}, err
	}
	return cfg, nil
}

// LoadDriveConfig loads Google Drive backup credentials. It follows this
// precedence:
// 1. Viper configuration (from config file or LEDGER_ env vars)
// 2. Direct environment variables (GOOGLE_DRIVE_*)
//
// ok is false when no credentials are configured at all.
func LoadDriveConfig(v *viper.Viper) (cfg export.DriveConfig, ok bool, err error) {
	cfg = export.DriveConfig{
		ClientID:           v.GetString(KeyDriveClientID),
		ClientSecret:       v.GetString(KeyDriveClientSecret),
		RefreshToken:       v.GetString(KeyDriveRefreshToken),
		ServiceAccountPath: ExpandPath(v.GetString(KeyDriveServiceAccountPath)),
		FolderID:           v.GetString(KeyDriveFolderID),
		KeepLocalCopy:      v.GetBool(KeyDriveKeepLocalCopy),
	}

	if cfg.ServiceAccountPath == "" {
		cfg.ServiceAccountPath = ExpandPath(os.Getenv("GOOGLE_DRIVE_SERVICE_ACCOUNT_PATH"))
	}
	if cfg.ClientID == "" {
		cfg.ClientID = os.Getenv("GOOGLE_DRIVE_CLIENT_ID")
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = os.Getenv("GOOGLE_DRIVE_CLIENT_SECRET")
	}
	if cfg.RefreshToken == "" {
		cfg.RefreshToken = os.Getenv("GOOGLE_DRIVE_REFRESH_TOKEN")
	}
	if cfg.FolderID == "" {
		cfg.FolderID = os.Getenv("GOOGLE_DRIVE_FOLDER_ID")
	}

	if !cfg.Configured() {
		return cfg, false, nil
	}
	if err := cfg.Validate(); err != nil {
		return export.DriveConfig{}, false, fmt.Errorf("%w: %w", common.ErrInvalidConfig, err)
	}
	return cfg, true, nil
}
