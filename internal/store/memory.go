// Package store implements deps.HistoryStore on memory, SQLite and Redis.
package store

import (
	"context"
	"sync"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/model"
)

// MaxRecentBooks caps the recently opened list.
const MaxRecentBooks = 20

// MemoryStore keeps history in process memory. Useful for tests and single
// instance deployments.
type MemoryStore struct {
	mu         sync.RWMutex
	recent     []model.Book
	characters map[string][]model.BookCharacter
	portraits  map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		characters: make(map[string][]model.BookCharacter),
		portraits:  make(map[string][]byte),
	}
}

func (s *MemoryStore) LoadRecentBooks(context.Context) ([]model.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Book, len(s.recent))
	copy(out, s.recent)
	return out, nil
}

func (s *MemoryStore) AddRecentBook(_ context.Context, book model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = pushRecent(s.recent, book)
	return nil
}

func (s *MemoryStore) LoadCachedCharacters(_ context.Context, book model.Book) ([]model.BookCharacter, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cached := s.characters[book.StorageKey()]
	if len(cached) == 0 {
		return nil, false, nil
	}
	out := make([]model.BookCharacter, len(cached))
	copy(out, cached)
	return out, true, nil
}

func (s *MemoryStore) SaveCharacters(_ context.Context, characters []model.BookCharacter, book model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]model.BookCharacter, len(characters))
	copy(stored, characters)
	s.characters[book.StorageKey()] = stored
	return nil
}

func (s *MemoryStore) LoadPortrait(_ context.Context, book model.Book, character model.BookCharacter) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.portraits[model.PortraitKey(book, character)]
	return data, ok, nil
}

func (s *MemoryStore) SavePortrait(_ context.Context, data []byte, book model.Book, character model.BookCharacter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portraits[model.PortraitKey(book, character)] = append([]byte(nil), data...)
	return nil
}

// pushRecent moves book to the front, drops an older entry with the same
// storage key and enforces MaxRecentBooks.
func pushRecent(recent []model.Book, book model.Book) []model.Book {
	key := book.StorageKey()
	out := make([]model.Book, 0, len(recent)+1)
	out = append(out, book)
	for _, b := range recent {
		if b.StorageKey() == key {
			continue
		}
		out = append(out, b)
		if len(out) == MaxRecentBooks {
			break
		}
	}
	return out
}

var _ deps.HistoryStore = (*MemoryStore)(nil)
