package ledgerd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDatabaseURL(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name         string
		raw          string
		wantPostgres bool
		wantFile     string
	}{
		{name: "postgres", raw: "postgres://ledger@localhost/ledger", wantPostgres: true},
		{name: "postgresql", raw: "postgresql://ledger@localhost/ledger?sslmode=disable", wantPostgres: true},
		{name: "absolute sqlite", raw: "sqlite:///var/lib/ledger/ledger.db", wantFile: "/var/lib/ledger/ledger.db"},
		{name: "relative sqlite", raw: "sqlite://data/ledger.db", wantFile: "data/ledger.db"},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			target, err := parseDatabaseURL(testCase.raw)
			require.NoError(test, err)
			assert.Equal(test, testCase.wantPostgres, target.postgres)
			assert.Equal(test, testCase.wantFile, target.sqliteFile)
		})
	}
}

func TestParseDatabaseURLRejects(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "bare path", raw: "/tmp/ledger.db", wantErr: errUnsupportedDatabaseURL},
		{name: "mysql", raw: "mysql://ledger@localhost/ledger", wantErr: errUnsupportedDatabaseURL},
		{name: "memory", raw: "sqlite://:memory:", wantErr: errEphemeralSQLite},
		{name: "shared memory", raw: "sqlite://ledger?mode=memory", wantErr: errEphemeralSQLite},
		{name: "no file", raw: "sqlite:///", wantErr: errMissingSQLitePath},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			_, err := parseDatabaseURL(testCase.raw)
			require.ErrorIs(test, err, testCase.wantErr)
		})
	}
}

func TestOpenDatabaseCreatesSQLiteDirectory(test *testing.T) {
	test.Parallel()
	file := filepath.Join(test.TempDir(), "nested", "ledger.db")
	db, cleanup, err := openDatabase("sqlite://" + file)
	require.NoError(test, err)
	defer func() { require.NoError(test, cleanup()) }()
	sqlDB, err := db.DB()
	require.NoError(test, err)
	require.NoError(test, sqlDB.Ping())
	assert.DirExists(test, filepath.Dir(file))
}
