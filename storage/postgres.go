package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
)

type dialect struct {
	name           string
	migrationTable string
	migrations     []string
	numbered       bool
}

var postgres = dialect{
	name: "postgres",
	migrationTable: `CREATE TABLE IF NOT EXISTS migration
("id" SERIAL PRIMARY KEY, "query" TEXT)`,
	migrations: pgMigration,
	numbered:   true,
}

var pgMigration = []string{
	`CREATE TABLE video (
id VARCHAR(64) PRIMARY KEY,
title TEXT NOT NULL,
channel TEXT NOT NULL,
published_at VARCHAR(32) NOT NULL,
description TEXT NOT NULL DEFAULT '',
has_stats BOOLEAN NOT NULL DEFAULT FALSE,
views BIGINT,
comments BIGINT,
likes BIGINT,
length_minutes DOUBLE PRECISION,
transcript TEXT,
sentiment_model VARCHAR(255),
sentiment_title DOUBLE PRECISION,
sentiment_transcript DOUBLE PRECISION
)`,
	`CREATE INDEX video_published_at ON video (published_at)`,
	`CREATE INDEX video_views ON video (views)`,
}

// NewPostgres expects db to be opened with the "postgres" driver.
func NewPostgres(db *sql.DB) (*SQL, error) {
	s := &SQL{db: db, dialect: postgres}
	if err := s.migrate(postgres.migrations); err != nil {
		return &SQL{}, err
	}

	return s, nil
}

// rebind rewrites ? placeholders to $1, $2, ... for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteString("$" + strconv.Itoa(n))
	}

	return b.String()
}

func (s *SQL) migrate(wanted []string) error {
	ctx := context.Background()
	if _, err := s.db.ExecContext(ctx, s.dialect.migrationTable); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	// find existing
	rows, err := s.db.QueryContext(ctx, `SELECT query FROM migration ORDER BY id`)
	if err != nil {
		return err
	}

	existing := []string{}
	for rows.Next() {
		var query string
		if err := rows.Scan(&query); err != nil {
			rows.Close()
			return err
		}
		existing = append(existing, query)
	}
	rows.Close()

	// compare
	missing, err := compareMigrations(wanted, existing)
	if err != nil {
		return err
	}

	// execute missing
	for _, query := range missing {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}

		// register
		if _, err := s.db.ExecContext(ctx, s.dialect.rebind(`
INSERT INTO migration
(query) VALUES (?)
`), query); err != nil {
			return err
		}
	}

	return nil
}

func compareMigrations(wanted, existing []string) ([]string, error) {
	needed := []string{}
	if len(wanted) < len(existing) {
		return []string{}, fmt.Errorf("not enough migrations")
	}

	for i, want := range wanted {
		switch {
		case i >= len(existing):
			needed = append(needed, want)
		case want == existing[i]:
			// do nothing
		case want != existing[i]:
			return []string{}, fmt.Errorf("incompatible migration: %v", want)
		}
	}

	return needed, nil
}
