package database

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
)

// MigrationLogger adapts the service logger to the migrate tool's interface.
type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

type MigrationConfig struct {
	MigrationFolderPath string
}

// MigrationService applies schema migrations from a folder of SQL files.
type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// resolveMigrationFolder tries the configured path as-is, then relative to
// the working directory. The binary runs from different roots in containers
// and in local development.
func (ms *MigrationService) resolveMigrationFolder() (string, error) {
	folder := ms.config.MigrationFolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder, nil
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", errors.Wrap(err, "resolve working directory")
	}

	folder = filepath.Join(wd, folder)
	if _, err := os.Stat(folder); err != nil {
		return "", errors.Wrapf(err, "migration folder %s does not exist", folder)
	}
	return folder, nil
}

// Migrate applies all pending migrations from the configured folder.
func (ms *MigrationService) Migrate(databaseName string, databaseInstance database.Driver) error {
	folder, err := ms.resolveMigrationFolder()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, databaseInstance)
	if err != nil {
		return errors.Wrap(err, "create migrate instance")
	}
	m.Log = MigrationLogger{Logger: ms.logger}

	start := time.Now()
	err = m.Up()

	if errors.Is(err, migrate.ErrNoChange) {
		ms.logger.Info("No new migrations to apply")
		return nil
	}
	if err != nil {
		version, dirty, versionErr := m.Version()
		if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
			ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		}
		ms.logger.WithError(err).Errorf("Failed to apply migrations. Database is dirty=%t at version %d", dirty, version)
		return err
	}

	ms.logger.Infof("Database migrations completed in %v", time.Since(start))
	return nil
}
