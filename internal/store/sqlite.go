package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/timzifer/ringd/settings"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS settings (
	namespace TEXT NOT NULL,
	user_id   INTEGER NOT NULL,
	name      TEXT NOT NULL,
	value     TEXT,
	PRIMARY KEY (namespace, user_id, name)
)`

type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string) (*sqliteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: ensure directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		sqliteSchema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: init sqlite: %w", err)
		}
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) get(ctx context.Context, ns settings.Namespace, user int, key string) (string, bool, error) {
	var value sql.NullString
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE namespace = ? AND user_id = ? AND name = ?`,
		string(ns), user, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value.String, true, nil
}

func (b *sqliteBackend) put(ctx context.Context, ns settings.Namespace, user int, key, value string) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO settings (namespace, user_id, name, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace, user_id, name) DO UPDATE SET value = excluded.value`,
		string(ns), user, key, value,
	)
	return err
}

func (b *sqliteBackend) close() error {
	return b.db.Close()
}
