package ledgerd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	schemePostgres   = "postgres"
	schemePostgreSQL = "postgresql"
	sqlitePrefix     = "sqlite://"
	sqliteMemory     = ":memory:"
	sqliteDirMode    = 0o750
)

var (
	errUnsupportedDatabaseURL = errors.New("database url must use postgres://, postgresql:// or sqlite://")
	errEphemeralSQLite        = errors.New("in-memory sqlite loses every entry on restart")
	errMissingSQLitePath      = errors.New("sqlite url has no file path")
)

// databaseTarget is a parsed database url.
type databaseTarget struct {
	postgres   bool
	dsn        string
	sqliteFile string
}

// parseDatabaseURL accepts postgres URLs and sqlite:// file URLs. sqlite:///abs
// names an absolute path; sqlite://rel names a path under the working directory.
func parseDatabaseURL(raw string) (databaseTarget, error) {
	trimmed := strings.TrimSpace(raw)
	if rest, isSQLite := strings.CutPrefix(trimmed, sqlitePrefix); isSQLite {
		path, query, _ := strings.Cut(rest, "?")
		if path == sqliteMemory || strings.Contains(query, "mode=memory") {
			return databaseTarget{}, errEphemeralSQLite
		}
		if path == "" || strings.HasSuffix(path, "/") {
			return databaseTarget{}, errMissingSQLitePath
		}
		return databaseTarget{sqliteFile: filepath.Clean(path)}, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return databaseTarget{}, fmt.Errorf("%w: %v", errUnsupportedDatabaseURL, err)
	}
	if parsed.Scheme != schemePostgres && parsed.Scheme != schemePostgreSQL {
		return databaseTarget{}, errUnsupportedDatabaseURL
	}
	return databaseTarget{postgres: true, dsn: trimmed}, nil
}

func openDatabase(raw string) (*gorm.DB, func() error, error) {
	target, err := parseDatabaseURL(raw)
	if err != nil {
		return nil, nil, err
	}

	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	var db *gorm.DB
	if target.postgres {
		db, err = gorm.Open(postgres.Open(target.dsn), cfg)
	} else {
		if mkdirErr := os.MkdirAll(filepath.Dir(target.sqliteFile), sqliteDirMode); mkdirErr != nil {
			return nil, nil, fmt.Errorf("sqlite directory: %w", mkdirErr)
		}
		db, err = gorm.Open(sqlite.Open(target.sqliteFile), cfg)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if !target.postgres {
		// SQLite serializes writers; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}
	return db, sqlDB.Close, nil
}
