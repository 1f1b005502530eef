// Copyright 2026 © The NeuroFlow Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lamwimham/neuroflow-sub001/pkg/errors"
)

const entryTable = "memory_entries"

// SQLiteStore is the durable Store backend. It implements the same contract
// as InMemoryStore; expiry is enforced at query time so readers never see
// stale rows, and a sweep can reclaim them later.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an existing handle and ensures schema.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			agent_id TEXT NOT NULL,
			key TEXT NOT NULL,
			id TEXT NOT NULL,
			value_json BLOB NOT NULL,
			memory_type TEXT NOT NULL,
			tags_json BLOB NOT NULL,
			importance REAL NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(agent_id, key)
		);`, entryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_agent ON %s(agent_id);`, entryTable, entryTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at);`, entryTable, entryTable),
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Store upserts by (agent_id, key).
func (s *SQLiteStore) Store(ctx context.Context, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	valueJSON, err := json.Marshal(entry.Value)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "marshal value", err)
	}
	tagsJSON, err := json.Marshal(entry.Tags)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "marshal tags", err)
	}
	var expires int64
	if exp := entry.ExpiresAt(); !exp.IsZero() {
		expires = exp.UnixNano()
	}

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(agent_id, key, id, value_json, memory_type, tags_json, importance, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id, key) DO UPDATE SET
			id=excluded.id, value_json=excluded.value_json,
			memory_type=excluded.memory_type, tags_json=excluded.tags_json,
			importance=excluded.importance, created_at=excluded.created_at,
			expires_at=excluded.expires_at`, entryTable),
		entry.AgentID, entry.Key, entry.ID, valueJSON, string(entry.Type),
		tagsJSON, entry.Importance, entry.CreatedAt.UnixNano(), expires)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "store entry", err)
	}
	return nil
}

// Retrieve returns the live entry for (agent_id, key).
func (s *SQLiteStore) Retrieve(ctx context.Context, agentID, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT id, value_json, memory_type, tags_json, importance, created_at, expires_at
		 FROM %s WHERE agent_id = ? AND key = ?`, entryTable), agentID, key)

	entry, err := scanEntry(row, agentID, key)
	if err == sql.ErrNoRows {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.New(errors.CodeMemoryError, "retrieve entry", err)
	}
	if entry.Expired(time.Now()) {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, agentID, key string) (Entry, error) {
	var (
		entry     Entry
		valueJSON []byte
		tagsJSON  []byte
		memType   string
		createdAt int64
		expiresAt int64
	)
	err := row.Scan(&entry.ID, &valueJSON, &memType, &tagsJSON, &entry.Importance, &createdAt, &expiresAt)
	if err != nil {
		return Entry{}, err
	}
	entry.AgentID = agentID
	entry.Key = key
	entry.Type = Type(memType)
	entry.CreatedAt = time.Unix(0, createdAt).UTC()
	if expiresAt > 0 {
		entry.TTL = time.Unix(0, expiresAt).Sub(entry.CreatedAt)
	}
	if err := json.Unmarshal(valueJSON, &entry.Value); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(tagsJSON, &entry.Tags); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Search filters in SQL where cheap (agent, type, importance, expiry) and in
// Go for tags, then orders like InMemoryStore.
func (s *SQLiteStore) Search(ctx context.Context, query Query) ([]Entry, error) {
	sqlQuery := fmt.Sprintf(
		`SELECT key, id, value_json, memory_type, tags_json, importance, created_at, expires_at
		 FROM %s WHERE agent_id = ? AND (expires_at = 0 OR expires_at > ?)`, entryTable)
	args := []any{query.AgentID, time.Now().UnixNano()}
	if query.Type != "" {
		sqlQuery += " AND memory_type = ?"
		args = append(args, string(query.Type))
	}
	if query.MinImportance != nil {
		sqlQuery += " AND importance >= ?"
		args = append(args, *query.MinImportance)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "search entries", err)
	}
	defer rows.Close()

	results := make([]Entry, 0)
	for rows.Next() {
		var key string
		var entry Entry
		var valueJSON, tagsJSON []byte
		var memType string
		var createdAt, expiresAt int64
		if err := rows.Scan(&key, &entry.ID, &valueJSON, &memType, &tagsJSON,
			&entry.Importance, &createdAt, &expiresAt); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "scan entry", err)
		}
		entry.AgentID = query.AgentID
		entry.Key = key
		entry.Type = Type(memType)
		entry.CreatedAt = time.Unix(0, createdAt).UTC()
		if expiresAt > 0 {
			entry.TTL = time.Unix(0, expiresAt).Sub(entry.CreatedAt)
		}
		if err := json.Unmarshal(valueJSON, &entry.Value); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "decode value", err)
		}
		if err := json.Unmarshal(tagsJSON, &entry.Tags); err != nil {
			return nil, errors.New(errors.CodeMemoryError, "decode tags", err)
		}

		tagged := true
		for _, tag := range query.Tags {
			if !entry.HasTag(tag) {
				tagged = false
				break
			}
		}
		if tagged {
			results = append(results, entry)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeMemoryError, "iterate entries", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Importance != results[j].Importance {
			return results[i].Importance > results[j].Importance
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].Key < results[j].Key
	})

	if query.Limit > 0 && len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Delete removes the entry; absent keys are a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, agentID, key string) error {
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE agent_id = ? AND key = ?`, entryTable), agentID, key)
	if err != nil {
		return errors.New(errors.CodeMemoryError, "delete entry", err)
	}
	return nil
}

// Sweep removes expired rows and returns how many were reclaimed.
func (s *SQLiteStore) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE expires_at > 0 AND expires_at <= ?`, entryTable),
		time.Now().UnixNano())
	if err != nil {
		return 0, errors.New(errors.CodeMemoryError, "sweep entries", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
