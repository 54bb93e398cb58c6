package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hedge_go/internal/domain"
)

// Store wraps the database handle and owns schema migration. The sqlite
// driver backs local runs and tests, postgres backs deployments.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects using the configured driver and migrates the schema.
func Open(driver, dsn string, logger *slog.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dialector = sqlite.Open(dsn)
	default:
		return nil, &domain.ConfigError{
			Field: "database.driver",
			Err:   fmt.Errorf("unsupported driver %q", driver),
		}
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&domain.RawLeg{},
		&domain.UserTrade{},
		&domain.LedgerEntry{},
		&domain.LedgerAccountBalance{},
		&cursorRecord{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "storage")}, nil
}

// DB exposes the raw handle for repositories built on this store.
func (s *Store) DB() *gorm.DB { return s.db }

// Begin opens a storage transaction.
func (s *Store) Begin() *gorm.DB { return s.db.Begin() }

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// TranslateError maps driver errors onto the shared taxonomy so callers
// branch on sentinels instead of driver types.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure, deadlock_detected
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

// cursorRecord persists named import cursors across restarts.
type cursorRecord struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

const importCursorName = "leg_import"

// ImportCursor returns the persisted import cursor, empty when no page
// has been imported yet.
func (s *Store) ImportCursor() (string, error) {
	var rec cursorRecord
	err := s.db.First(&rec, "name = ?", importCursorName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", TranslateError(err)
	}
	return rec.Value, nil
}

// SaveImportCursor stores the cursor reached by the latest import pass.
func (s *Store) SaveImportCursor(tx *gorm.DB, value string) error {
	rec := cursorRecord{Name: importCursorName, Value: value}
	return TranslateError(tx.Save(&rec).Error)
}
