// Package storage provides the durable key/value capability the story
// orchestrator persists its live session and archive through.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/db"
	"github.com/Taherchk/StoryCanvas-Ai/pkg/db/queries"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a minimal get/set/delete by key abstraction.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps values in process memory. Used by tests and the "memory" driver.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// SQLStore persists values in the kv_records table through sqlx.
type SQLStore struct {
	conn *sqlx.DB
}

func NewSQLStore(conn *sqlx.DB) *SQLStore {
	return &SQLStore{conn: conn}
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	record, err := queries.FindRecordByKey(ctx, s.conn, key)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return []byte(record.Value), nil
}

func (s *SQLStore) Set(ctx context.Context, key string, value []byte) error {
	return queries.UpsertRecord(ctx, s.conn, &db.KVRecord{Key: key, Value: string(value)})
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	return queries.DeleteRecord(ctx, s.conn, key)
}

// Open builds the Store for driver. The returned close func releases the
// underlying connection and is safe to call for the memory driver.
func Open(ctx context.Context, driver, dsn string) (Store, func(), error) {
	switch driver {
	case "memory":
		return NewMemoryStore(), func() {}, nil
	case "sqlite", "postgres":
		conn, err := db.Open(ctx, driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		return NewSQLStore(conn), func() { db.Close(conn) }, nil
	default:
		return nil, nil, fmt.Errorf("storage: unknown driver %q", driver)
	}
}
