package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// KV definiert das Interface für die Schlüssel/Wert-Persistenz.
// Werte werden immer vollständig überschrieben.
type KV interface {
	// Get liefert den Wert; ok ist false, wenn der Schlüssel fehlt
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set überschreibt den Wert
	Set(ctx context.Context, key, value string) error

	Close() error
}

// SQLiteKV implementiert KV mit SQLite
type SQLiteKV struct {
	db *sql.DB
}

// NewSQLiteKV öffnet die Datenbank und legt das Schema an
func NewSQLiteKV(dbPath string) (*SQLiteKV, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// jede Verbindung hätte sonst eine eigene In-Memory-Datenbank
		db.SetMaxOpenConns(1)
	}

	kv := &SQLiteKV{db: db}
	if err := kv.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return kv, nil
}

func (s *SQLiteKV) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO kv_store (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now())
	return err
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}

// MemoryKV hält alle Werte im Speicher
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Close() error {
	return nil
}
