package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/model"
)

// SQLiteStore persists history in a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS recent_books (
			storage_key TEXT PRIMARY KEY,
			id          TEXT NOT NULL,
			title       TEXT NOT NULL,
			author      TEXT NOT NULL,
			opened_seq  INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS characters (
			storage_key TEXT PRIMARY KEY,
			payload     TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS portraits (
			portrait_key TEXT PRIMARY KEY,
			data         BLOB NOT NULL,
			created_at   TEXT NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadRecentBooks(ctx context.Context) ([]model.Book, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, author FROM recent_books ORDER BY opened_seq DESC LIMIT ?", MaxRecentBooks)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]model.Book, 0, MaxRecentBooks)
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

func (s *SQLiteStore) AddRecentBook(ctx context.Context, book model.Book) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO recent_books (storage_key, id, title, author, opened_seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(opened_seq), 0) + 1 FROM recent_books))
		ON CONFLICT(storage_key) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			author = excluded.author,
			opened_seq = excluded.opened_seq`,
		book.StorageKey(), book.ID, book.Title, book.Author,
	)
	if err != nil {
		return fmt.Errorf("upsert recent book: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM recent_books WHERE storage_key NOT IN (
			SELECT storage_key FROM recent_books ORDER BY opened_seq DESC LIMIT ?
		)`, MaxRecentBooks)
	if err != nil {
		return fmt.Errorf("trim recent books: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadCachedCharacters(ctx context.Context, book model.Book) ([]model.BookCharacter, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM characters WHERE storage_key = ?", book.StorageKey()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var characters []model.BookCharacter
	if err := json.Unmarshal([]byte(payload), &characters); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached characters: %w", err)
	}
	if len(characters) == 0 {
		return nil, false, nil
	}
	return characters, true, nil
}

func (s *SQLiteStore) SaveCharacters(ctx context.Context, characters []model.BookCharacter, book model.Book) error {
	payload, err := json.Marshal(characters)
	if err != nil {
		return fmt.Errorf("marshal characters: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO characters (storage_key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		book.StorageKey(), string(payload), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SQLiteStore) LoadPortrait(ctx context.Context, book model.Book, character model.BookCharacter) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM portraits WHERE portrait_key = ?", model.PortraitKey(book, character)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *SQLiteStore) SavePortrait(ctx context.Context, data []byte, book model.Book, character model.BookCharacter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portraits (portrait_key, data, created_at) VALUES (?, ?, ?)
		ON CONFLICT(portrait_key) DO UPDATE SET data = excluded.data, created_at = excluded.created_at`,
		model.PortraitKey(book, character), data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

var _ deps.HistoryStore = (*SQLiteStore)(nil)
