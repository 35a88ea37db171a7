package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/eventops/manifest/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// SQLite is a Provider backed by a SQLite database. It exists so the
// boundary contract (atomic instance+events+dedup writes, at-most-once
// per idempotency key) is testable end to end against real transactions;
// production deployments plug in their own relational adapter.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens a SQLite database at the given path and
// applies the schema. The connection is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, tenantID, entityName, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT properties, version FROM instances
		WHERE tenant_id = ? AND entity = ? AND id = ?`,
		tenantID, entityName, id)

	var propsJSON string
	var version int64
	if err := row.Scan(&propsJSON, &version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}

	props, err := decodeProperties(propsJSON)
	if err != nil {
		return nil, fmt.Errorf("get instance %s/%s: %w", entityName, id, err)
	}
	return &Record{ID: id, Properties: props, Version: version}, nil
}

func (s *SQLite) Put(ctx context.Context, tenantID, entityName string, rec *Record) error {
	propsJSON, err := encodeProperties(rec.Properties)
	if err != nil {
		return fmt.Errorf("put instance %s/%s: %w", entityName, rec.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO instances (tenant_id, entity, id, properties, version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity, id)
		DO UPDATE SET properties = excluded.properties, version = excluded.version`,
		tenantID, entityName, rec.ID, propsJSON, rec.Version)
	if err != nil {
		return fmt.Errorf("put instance: %w", err)
	}
	return nil
}

func (s *SQLite) Apply(ctx context.Context, tenantID, entityName string, rec *Record, events []EventRecord, idempotencyKey string) error {
	propsJSON, err := encodeProperties(rec.Properties)
	if err != nil {
		return fmt.Errorf("apply %s/%s: %w", entityName, rec.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback()

	if idempotencyKey != "" {
		// INSERT OR IGNORE + RowsAffected detects a replayed key without
		// aborting the transaction machinery on the constraint.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO command_dedup (idempotency_key, applied_at)
			VALUES (?, ?)
			ON CONFLICT(idempotency_key) DO NOTHING`,
			idempotencyKey, time.Now().UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("record idempotency key: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("record idempotency key: %w", err)
		}
		if affected == 0 {
			return ErrDuplicateInvocation
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO instances (tenant_id, entity, id, properties, version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, entity, id)
		DO UPDATE SET properties = excluded.properties, version = excluded.version`,
		tenantID, entityName, rec.ID, propsJSON, rec.Version); err != nil {
		return fmt.Errorf("apply instance: %w", err)
	}

	for _, ev := range events {
		payload, err := ir.MarshalCanonical(ev.Payload)
		if err != nil {
			return fmt.Errorf("apply event %q: %w", ev.Name, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (tenant_id, entity, instance_id, name, payload, provenance, emitted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			tenantID, entityName, ev.InstanceID, ev.Name, string(payload),
			ev.Provenance, ev.EmittedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("apply event %q: %w", ev.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply: %w", err)
	}
	return nil
}

// Events returns a tenant's persisted events in emission (rowid) order.
func (s *SQLite) Events(ctx context.Context, tenantID string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, name, payload, provenance, emitted_at
		FROM events WHERE tenant_id = ? ORDER BY rowid`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		var payloadJSON, emittedAt string
		if err := rows.Scan(&ev.InstanceID, &ev.Name, &payloadJSON, &ev.Provenance, &emittedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		payload, err := ir.UnmarshalValue([]byte(payloadJSON))
		if err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		ev.Payload = payload
		ts, err := time.Parse(time.RFC3339Nano, emittedAt)
		if err != nil {
			return nil, fmt.Errorf("decode event timestamp: %w", err)
		}
		ev.EmittedAt = ts
		out = append(out, ev)
	}
	return out, rows.Err()
}

func encodeProperties(props ir.Object) (string, error) {
	if props == nil {
		props = ir.Object{}
	}
	data, err := ir.MarshalCanonical(props)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(data), nil
}

func decodeProperties(data string) (ir.Object, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	obj, ok := v.(ir.Object)
	if !ok {
		return nil, fmt.Errorf("decode properties: not an object")
	}
	return obj, nil
}
