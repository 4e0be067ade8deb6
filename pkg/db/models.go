package db

// KVRecord is one durable key/value row. Value holds a JSON document
// (the live session or the archive list).
type KVRecord struct {
	Key       string `db:"key"`
	Value     string `db:"value"`
	UpdatedAt int64  `db:"updated_at"` // unix millis
}
