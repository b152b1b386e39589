package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/borui/borui/internal/config"
)

var DB *gorm.DB

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique name is already taken.
	ErrDuplicate = errors.New("name already exists")
)

func Init() error {
	dbPath := config.Cfg.DatabasePath
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := Open(dbPath, logger.Warn)
	if err != nil {
		return err
	}
	DB = db
	return nil
}

// Open opens the SQLite database at path in WAL mode and migrates the
// schema.
func Open(path string, level logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := db.AutoMigrate(&Server{}, &Client{}, &User{}, &Setting{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	return db, nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func Ping() error {
	if DB == nil {
		return errors.New("database not initialised")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}

func GetSetting(key string) (string, error) {
	var s Setting
	if err := DB.Where("key = ?", key).First(&s).Error; err != nil {
		return "", translate(err)
	}
	return s.Value, nil
}

func SetSetting(key, value string) error {
	return DB.Where("key = ?", key).Assign(Setting{Value: value}).FirstOrCreate(&Setting{Key: key}).Error
}

// ResetStaleStatuses marks every entity that claims to be live as stopped.
// Nothing survives a restart, so this runs before auto-start.
func ResetStaleStatuses() (int64, error) {
	res := DB.Model(&Server{}).
		Where("status IN ?", []string{StatusStarting, StatusRunning}).
		Updates(map[string]any{"status": StatusStopped})
	if res.Error != nil {
		return 0, res.Error
	}
	n := res.RowsAffected

	res = DB.Model(&Client{}).
		Where("status IN ?", []string{StatusStarting, StatusConnected}).
		Updates(map[string]any{"status": StatusStopped, "assigned_port": nil})
	if res.Error != nil {
		return n, res.Error
	}
	return n + res.RowsAffected, nil
}
