package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"podplayer/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
	episode_id    INTEGER PRIMARY KEY,
	position      REAL NOT NULL DEFAULT 0,
	is_finished   INTEGER NOT NULL DEFAULT 0,
	timestamp     INTEGER NOT NULL,
	device_id     TEXT NOT NULL,
	device_type   TEXT NOT NULL,
	playback_rate REAL NOT NULL DEFAULT 1.0
);

CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewTestDB swaps the package-level store for a fresh in-memory sqlite
// database with the real schema, restored on test cleanup.
func NewTestDB(t *testing.T) *sqlx.DB {
	sqlxDB, err := sqlx.Connect("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	// Every new pool connection would get its own empty :memory: database.
	sqlxDB.SetMaxOpenConns(1)
	if _, err := sqlxDB.Exec(schema); err != nil {
		t.Fatalf("failed to create test schema: %v", err)
	}

	originalDB := db.DB
	db.DB = sqlxDB
	t.Cleanup(func() {
		db.DB = originalDB
		sqlxDB.Close()
	})

	return sqlxDB
}

// NewMockDB swaps the package-level store for a sqlmock-backed connection,
// used to simulate storage failures that an in-memory database can't produce.
func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "sqlmock")

	originalDB := db.DB
	db.DB = sqlxDB
	t.Cleanup(func() {
		db.DB = originalDB
		mockDb.Close()
	})

	return sqlxDB, mock
}
