package queries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Taherchk/StoryCanvas-Ai/pkg/db"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// FindRecordByKey returns nil, nil when no row exists for key.
func FindRecordByKey(ctx context.Context, q sqlx.ExtContext, key string) (*db.KVRecord, error) {
	record := &db.KVRecord{}
	query := q.Rebind(`SELECT key, value, updated_at FROM kv_records WHERE key = ?`)
	if err := sqlx.GetContext(ctx, q, record, query, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debugf("Record with key '%s' not found.", key)
			return nil, nil
		}
		log.Errorf("Error finding record by key '%s': %v", key, err)
		return nil, fmt.Errorf("error finding record by key: %w", err)
	}
	return record, nil
}

// UpsertRecord inserts or overwrites the value stored under record.Key.
func UpsertRecord(ctx context.Context, e sqlx.ExtContext, record *db.KVRecord) error {
	record.UpdatedAt = time.Now().UTC().UnixMilli()

	query := e.Rebind(`
        INSERT INTO kv_records (key, value, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)

	if _, err := e.ExecContext(ctx, query, record.Key, record.Value, record.UpdatedAt); err != nil {
		log.Errorf("Error upserting record '%s': %v", record.Key, err)
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	log.Debugf("Record '%s' stored (%d bytes).", record.Key, len(record.Value))
	return nil
}

// DeleteRecord removes the row for key. Deleting a missing key is not an error.
func DeleteRecord(ctx context.Context, e sqlx.ExtContext, key string) error {
	query := e.Rebind(`DELETE FROM kv_records WHERE key = ?`)
	result, err := e.ExecContext(ctx, query, key)
	if err != nil {
		log.Errorf("Error deleting record '%s': %v", key, err)
		return fmt.Errorf("failed to delete record: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		log.Debugf("No record with key '%s' to delete.", key)
	}
	return nil
}
