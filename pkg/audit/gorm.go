// SPDX-License-Identifier: Apache-2.0
package audit

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/jllopis/arbiter/pkg/errors"
)

type entryRow struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Kind       string `gorm:"size:32;not null;index"`
	RoundID    string `gorm:"size:64"`
	Tick       int64
	Agent      string `gorm:"size:255;not null;index"`
	TrackerID  string `gorm:"size:64"`
	ActionKey  string `gorm:"size:255;index"`
	ActionName string `gorm:"size:255"`
	Context    string
	Score      float64
	StateFrom  string `gorm:"size:32"`
	StateTo    string `gorm:"size:32"`
	RecordedAt time.Time
}

func (entryRow) TableName() string { return "arbiter_audit_entries" }

// GormStore persists audit entries through gorm.
type GormStore struct {
	db *gorm.DB
}

// OpenPostgres opens a gorm connection to PostgreSQL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open postgres", err)
	}
	return db, nil
}

// NewGormStore creates a gorm-backed store and migrates its table.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New(errors.CodeInvalidInput, "db is nil", nil)
	}
	if err := db.WithContext(ctx).AutoMigrate(&entryRow{}); err != nil {
		return nil, errors.New(errors.CodeStorage, "migrate audit table", err)
	}
	return &GormStore{db: db}, nil
}

// Record stores a single entry.
func (s *GormStore) Record(ctx context.Context, entry Entry) error {
	row := entryRow{
		Kind:       string(entry.Kind),
		RoundID:    entry.RoundID,
		Tick:       int64(entry.Tick),
		Agent:      entry.Agent,
		TrackerID:  entry.TrackerID,
		ActionKey:  entry.ActionKey,
		ActionName: entry.ActionName,
		Context:    entry.Context,
		Score:      entry.Score,
		StateFrom:  entry.From,
		StateTo:    entry.To,
		RecordedAt: normalizeTime(entry.RecordedAt),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.New(errors.CodeStorage, "insert audit entry", err)
	}
	return nil
}

// List returns entries matching the filter.
func (s *GormStore) List(ctx context.Context, filter Filter) ([]Entry, error) {
	rows := []entryRow{}
	query := s.db.WithContext(ctx).
		Where(&entryRow{Agent: filter.Agent, ActionKey: filter.ActionKey, Kind: string(filter.Kind)}).
		Clauses(clause.OrderBy{
			Columns: []clause.OrderByColumn{{Column: clause.Column{Name: "id"}}},
		})
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.New(errors.CodeStorage, "query audit entries", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, Entry{
			Kind:       Kind(row.Kind),
			RoundID:    row.RoundID,
			Tick:       uint64(row.Tick),
			Agent:      row.Agent,
			TrackerID:  row.TrackerID,
			ActionKey:  row.ActionKey,
			ActionName: row.ActionName,
			Context:    row.Context,
			Score:      row.Score,
			From:       row.StateFrom,
			To:         row.StateTo,
			RecordedAt: row.RecordedAt.UTC(),
		})
	}
	return out, nil
}
