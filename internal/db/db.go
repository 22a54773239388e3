package db

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // The database driver
)

// DB is the global database connection.
var DB *sqlx.DB

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

// InitDB opens the local store and creates the schema if needed.
// The store is an embedded per-install database so resume positions
// survive restarts with no network and no external services.
func InitDB() {
	var err error
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = "podplayer.db"
	}

	DB, err = sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		log.Fatalf("Failed to open local store: %v", err)
	}

	// Single writer keeps sqlite happy under the concurrent save tickers.
	DB.SetMaxOpenConns(1)

	if _, err = DB.Exec(schema); err != nil {
		log.Fatalf("Failed to create local store schema: %v", err)
	}

	log.Printf("Local store opened at %s", dbPath)
}
