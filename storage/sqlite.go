package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var sqlite = dialect{
	name: "sqlite",
	migrationTable: `CREATE TABLE IF NOT EXISTS migration
("id" INTEGER PRIMARY KEY AUTOINCREMENT, "query" TEXT)`,
	migrations: sqliteMigration,
}

var sqliteMigration = []string{
	`CREATE TABLE video (
id VARCHAR(64) PRIMARY KEY,
title TEXT NOT NULL,
channel TEXT NOT NULL,
published_at VARCHAR(32) NOT NULL,
description TEXT NOT NULL DEFAULT '',
has_stats BOOLEAN NOT NULL DEFAULT FALSE,
views INTEGER,
comments INTEGER,
likes INTEGER,
length_minutes REAL,
transcript TEXT,
sentiment_model VARCHAR(255),
sentiment_title REAL,
sentiment_transcript REAL
)`,
	`CREATE INDEX video_published_at ON video (published_at)`,
	`CREATE INDEX video_views ON video (views)`,
}

// NewSQLite expects db to be opened with the "sqlite" driver. The database is
// limited to one connection so writers never see SQLITE_BUSY.
func NewSQLite(db *sql.DB) (*SQL, error) {
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 10000`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			return &SQL{}, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQL{db: db, dialect: sqlite}
	if err := s.migrate(sqlite.migrations); err != nil {
		return &SQL{}, err
	}

	return s, nil
}
