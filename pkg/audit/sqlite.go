// SPDX-License-Identifier: Apache-2.0
package audit

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"

	"github.com/jllopis/arbiter/pkg/errors"
)

// SQLiteStore persists audit entries in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed audit store and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := ensureSQLiteSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "create audit schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Record stores a single entry.
func (s *SQLiteStore) Record(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO arbiter_audit_entries (
			kind, round_id, tick, agent, tracker_id, action_key, action_name,
			context, score, state_from, state_to, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(entry.Kind),
		entry.RoundID,
		int64(entry.Tick),
		entry.Agent,
		entry.TrackerID,
		entry.ActionKey,
		entry.ActionName,
		entry.Context,
		entry.Score,
		entry.From,
		entry.To,
		normalizeTime(entry.RecordedAt),
	)
	if err != nil {
		return errors.New(errors.CodeStorage, "insert audit entry", err)
	}
	return nil
}

// List returns entries matching the filter.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	query := `
		SELECT kind, round_id, tick, agent, tracker_id, action_key, action_name,
			context, score, state_from, state_to, recorded_at
		FROM arbiter_audit_entries
	`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.Agent != "" {
		addFilter("agent = ?", filter.Agent)
	}
	if filter.ActionKey != "" {
		addFilter("action_key = ?", filter.ActionKey)
	}
	if filter.Kind != "" {
		addFilter("kind = ?", string(filter.Kind))
	}
	query += where + " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query audit entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry    Entry
			kind     string
			tick     int64
			recorded sql.NullTime
		)
		if err := rows.Scan(
			&kind,
			&entry.RoundID,
			&tick,
			&entry.Agent,
			&entry.TrackerID,
			&entry.ActionKey,
			&entry.ActionName,
			&entry.Context,
			&entry.Score,
			&entry.From,
			&entry.To,
			&recorded,
		); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan audit entry", err)
		}
		entry.Kind = Kind(kind)
		entry.Tick = uint64(tick)
		if recorded.Valid {
			entry.RecordedAt = recorded.Time.UTC()
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate audit entries", err)
	}
	return entries, nil
}

func ensureSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS arbiter_audit_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			round_id TEXT NOT NULL DEFAULT '',
			tick INTEGER NOT NULL DEFAULT 0,
			agent TEXT NOT NULL,
			tracker_id TEXT NOT NULL DEFAULT '',
			action_key TEXT NOT NULL DEFAULT '',
			action_name TEXT NOT NULL DEFAULT '',
			context TEXT NOT NULL DEFAULT '',
			score REAL NOT NULL DEFAULT 0,
			state_from TEXT NOT NULL DEFAULT '',
			state_to TEXT NOT NULL DEFAULT '',
			recorded_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_arbiter_audit_agent ON arbiter_audit_entries(agent);
		CREATE INDEX IF NOT EXISTS idx_arbiter_audit_action ON arbiter_audit_entries(action_key);
		CREATE INDEX IF NOT EXISTS idx_arbiter_audit_kind ON arbiter_audit_entries(kind);
	`)
	return err
}
