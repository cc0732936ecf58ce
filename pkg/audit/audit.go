// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records decision outcomes and tracker state changes.
package audit

import (
	"context"
	"sync"
	"time"
)

// Kind distinguishes audit entries.
type Kind string

const (
	KindPick       Kind = "pick"
	KindTransition Kind = "transition"
)

// Entry is one audited fact. Pick entries carry the score and context;
// transition entries carry the tracker and the state edge.
type Entry struct {
	Kind       Kind
	RoundID    string
	Tick       uint64
	Agent      string
	TrackerID  string
	ActionKey  string
	ActionName string
	Context    string
	Score      float64
	From       string
	To         string
	RecordedAt time.Time
}

// Filter limits audit queries. Zero fields match everything.
type Filter struct {
	Agent     string
	ActionKey string
	Kind      Kind
	Limit     int
}

func (f Filter) match(e Entry) bool {
	if f.Agent != "" && e.Agent != f.Agent {
		return false
	}
	if f.ActionKey != "" && e.ActionKey != f.ActionKey {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	return true
}

// Store persists audit entries. List returns entries in recording order.
type Store interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// MemoryStore keeps audit entries in memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore returns an in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Record appends an entry.
func (s *MemoryStore) Record(_ context.Context, entry Entry) error {
	entry.RecordedAt = normalizeTime(entry.RecordedAt)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// List returns filtered entries.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !filter.match(e) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// normalizeTime stamps missing times and converts to UTC.
func normalizeTime(value time.Time) time.Time {
	if value.IsZero() {
		return time.Now().UTC()
	}
	return value.UTC()
}
