package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store is the main structure of the model.
type Store struct {
	db     *gorm.DB
	Config *Config
}

// shared helper for GORM logger
func gormLoggerFor(cfg *Config, svr server) *gorm.Config {
	gormConfig := &gorm.Config{}
	switch svr.DBLogger {
	case "info":
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	case "silent":
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	default:
		if cfg.Mode == "development" {
			gormConfig.Logger = logger.Default.LogMode(logger.Info)
		} else {
			gormConfig.Logger = logger.Default.LogMode(logger.Silent)
		}
	}
	return gormConfig
}

func (s *Store) autoMigrate() error {
	return s.db.AutoMigrate(&SavedInvoice{})
}

// InitDatabase opens the database configured for cfg.Mode and migrates the
// schema.
func InitDatabase(cfg *Config) (*Store, error) {
	var err error
	svr := cfg.Servers[cfg.Mode]
	s := &Store{Config: cfg}

	switch svr.Database {
	case "sqlite3":
		filename := cfg.SQLitePath()
		if filename != ":memory:" {
			if err = os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
				return nil, err
			}
		}
		s.db, err = gorm.Open(sqlite.Open(filename), gormLoggerFor(cfg, svr))
	case "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=5432 sslmode=disable TimeZone=UTC",
			svr.DBHost, svr.DBUser, svr.DBPassword, svr.DBName)
		s.db, err = gorm.Open(postgres.Open(dsn), gormLoggerFor(cfg, svr))
	default:
		return nil, fmt.Errorf("database %q not implemented", svr.Database)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}
	if err = s.autoMigrate(); err != nil {
		return nil, fmt.Errorf("cannot migrate database: %w", err)
	}
	return s, nil
}
