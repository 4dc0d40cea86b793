//go:build !postgres && !sqlite

package main

import (
	"errors"

	"github.com/billingcat/smartbill/model"
)

var errNoMigrationDriver = errors.New("migrations need a database driver: build with -tags postgres or -tags sqlite")

func migrationsDir() string { return "" }

func migrateDSN(_ *model.Config) (string, error) { return "", errNoMigrationDriver }
