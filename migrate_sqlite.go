//go:build sqlite

package main

import (
	"fmt"
	"path/filepath"

	"github.com/billingcat/smartbill/model"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // CGO!
)

func migrationsDir() string { return "sqlite3" }

func migrateDSN(cfg *model.Config) (string, error) {
	svr := cfg.Servers[cfg.Mode]
	if svr.Database != "sqlite3" {
		return "", fmt.Errorf("mode %q uses %q, binary built for sqlite3", cfg.Mode, svr.Database)
	}
	dbPath := cfg.SQLitePath()
	if !filepath.IsAbs(dbPath) {
		dbPath = "./" + dbPath
	}
	return fmt.Sprintf("sqlite3://%s?_foreign_keys=on&_journal_mode=WAL",
		filepath.ToSlash(dbPath)), nil
}
