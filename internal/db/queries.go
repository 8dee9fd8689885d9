package db

import (
	"database/sql"
	"errors"
	"fmt"
)

// PipelineEvent represents a row in the pipeline_events table.
type PipelineEvent struct {
	ID        int
	Subject   string
	Event     string
	Item      string
	Detail    string
	Timestamp string
}

// LogPipelineEvent inserts a pipeline event. item may be empty for events
// that concern the whole run.
func (d *DB) LogPipelineEvent(subject, event, item, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO pipeline_events (subject, event, item, detail) VALUES (?, ?, ?, ?)`,
		subject, event, nullable(item), nullable(detail),
	)
	if err != nil {
		return fmt.Errorf("log pipeline event: %w", err)
	}
	return nil
}

// ListPipelineEvents returns the newest events first. An empty subject
// lists events for every subject; limit <= 0 means no limit.
func (d *DB) ListPipelineEvents(subject string, limit int) ([]PipelineEvent, error) {
	query := `SELECT id, subject, event, item, detail, timestamp FROM pipeline_events`
	var args []interface{}
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pipeline events: %w", err)
	}
	defer rows.Close()

	var events []PipelineEvent
	for rows.Next() {
		var e PipelineEvent
		var item, detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Subject, &e.Event, &item, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pipeline event: %w", err)
		}
		e.Item = item.String
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// KVGet reads a value from the kv table. found is false when the key is
// absent.
func (d *DB) KVGet(key string) (value []byte, found bool, err error) {
	err = d.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// KVSet inserts or replaces a value.
func (d *DB) KVSet(key string, value []byte) error {
	_, err := d.conn.Exec(
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// KVSetNX inserts a value only when the key is absent.
func (d *DB) KVSetNX(key string, value []byte) (bool, error) {
	res, err := d.conn.Exec(`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`, key, value)
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("kv setnx %s: %w", key, err)
	}
	return n == 1, nil
}

// KVDelete removes a key. Deleting an absent key is not an error.
func (d *DB) KVDelete(key string) error {
	if _, err := d.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("kv delete %s: %w", key, err)
	}
	return nil
}

// KVList returns the keys starting with prefix in ascending order.
func (d *DB) KVList(prefix string) ([]string, error) {
	query := `SELECT key FROM kv ORDER BY key`
	var args []interface{}
	if prefix != "" {
		query = `SELECT key FROM kv WHERE instr(key, ?) = 1 ORDER BY key`
		args = append(args, prefix)
	}
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("kv list %s: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan kv key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
