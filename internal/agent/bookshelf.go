package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/agent/sanitize"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// sharedLoadTimeout bounds a character or portrait load shared by callers.
const sharedLoadTimeout = 2 * time.Minute

// Bookshelf ties the repositories, the chat service and the history store
// together into the use cases served over HTTP.
type Bookshelf struct {
	books      deps.BooksRepository
	characters deps.CharactersRepository
	chat       deps.ChatService
	store      deps.HistoryStore
	portraits  deps.PortraitGenerator

	characterLoads singleflight.Group
	portraitLoads  singleflight.Group
}

// BookshelfDeps holds the collaborators of a Bookshelf. Portraits may be nil.
type BookshelfDeps struct {
	Books      deps.BooksRepository
	Characters deps.CharactersRepository
	Chat       deps.ChatService
	Store      deps.HistoryStore
	Portraits  deps.PortraitGenerator
}

func NewBookshelf(d BookshelfDeps) *Bookshelf {
	return &Bookshelf{
		books:      d.Books,
		characters: d.Characters,
		chat:       d.Chat,
		store:      d.Store,
		portraits:  d.Portraits,
	}
}

// SearchBooks validates and normalizes query before searching.
func (b *Bookshelf) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	normalized := sanitize.Query(query)
	if normalized == "" {
		return nil, fmt.Errorf("%w: enter a book title", errx.ErrValidation)
	}
	return b.books.SearchBooks(ctx, normalized)
}

// RecentBooks lists recently opened books, most recent first.
func (b *Bookshelf) RecentBooks(ctx context.Context) ([]model.Book, error) {
	books, err := b.store.LoadRecentBooks(ctx)
	if err != nil {
		return nil, errx.WrapStore(err)
	}
	return books, nil
}

// OpenBook records book as recently opened and returns the updated list.
func (b *Bookshelf) OpenBook(ctx context.Context, book model.Book) ([]model.Book, error) {
	book, err := normalizeBook(book)
	if err != nil {
		return nil, err
	}
	if err := b.store.AddRecentBook(ctx, book); err != nil {
		return nil, errx.WrapStore(err)
	}
	return b.RecentBooks(ctx)
}

// Characters returns the cached list for book or loads it from the model.
// Concurrent loads of the same book share one model call.
func (b *Bookshelf) Characters(ctx context.Context, book model.Book, refresh bool) ([]model.BookCharacter, error) {
	book, err := normalizeBook(book)
	if err != nil {
		return nil, err
	}

	if !refresh {
		cached, ok, err := b.store.LoadCachedCharacters(ctx, book)
		if err != nil {
			logx.Warn().Err(err).Str("book", book.StorageKey()).Msg("load cached characters failed")
		} else if ok {
			return cached, nil
		}
	}

	characters, shared, err := loadShared(ctx, &b.characterLoads, book.StorageKey(), func(ctx context.Context) ([]model.BookCharacter, error) {
		characters, err := b.characters.Characters(ctx, book)
		if err != nil {
			return nil, err
		}
		if err := b.store.SaveCharacters(ctx, characters, book); err != nil {
			logx.Warn().Err(err).Str("book", book.StorageKey()).Msg("save characters failed")
		}
		return characters, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logx.Debug().Str("book", book.StorageKey()).Msg("characters load shared")
	}
	return characters, nil
}

// Chat appends the user turn to history, asks the character for a reply and
// returns the reply together with the extended history.
func (b *Bookshelf) Chat(ctx context.Context, book model.Book, character model.BookCharacter, history []model.ChatMessage, userText string) (model.ChatMessage, []model.ChatMessage, error) {
	text := sanitize.Message(userText)
	if text == "" {
		return model.ChatMessage{}, nil, fmt.Errorf("%w: message is empty", errx.ErrValidation)
	}

	turns := make([]model.ChatMessage, 0, len(history)+2)
	turns = append(turns, history...)
	turns = append(turns, model.NewChatMessage(model.RoleUser, text))

	reply, err := b.chat.SendMessage(ctx, text, turns, character, book)
	if err != nil {
		return model.ChatMessage{}, turns, err
	}
	return reply, append(turns, reply), nil
}

// Portrait returns the cached portrait or generates and caches a new one.
func (b *Bookshelf) Portrait(ctx context.Context, book model.Book, character model.BookCharacter) ([]byte, error) {
	if b.portraits == nil {
		return nil, fmt.Errorf("%w: portrait generation is disabled", errx.ErrNoImageFound)
	}
	book, err := normalizeBook(book)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(character.Name) == "" {
		return nil, fmt.Errorf("%w: character name is empty", errx.ErrValidation)
	}

	if data, ok, err := b.store.LoadPortrait(ctx, book, character); err != nil {
		logx.Warn().Err(err).Msg("load portrait failed")
	} else if ok {
		return data, nil
	}

	data, _, err := loadShared(ctx, &b.portraitLoads, model.PortraitKey(book, character), func(ctx context.Context) ([]byte, error) {
		data, err := b.portraits.GeneratePortrait(ctx, character, book)
		if err != nil {
			return nil, err
		}
		if err := b.store.SavePortrait(ctx, data, book, character); err != nil {
			logx.Warn().Err(err).Msg("save portrait failed")
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// loadShared runs load once per key for all concurrent callers. The load is
// detached from any single caller and bounded by sharedLoadTimeout; each
// caller stops waiting when its own ctx is done.
func loadShared[T any](ctx context.Context, group *singleflight.Group, key string, load func(context.Context) (T, error)) (T, bool, error) {
	ch := group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLoadTimeout)
		defer cancel()
		return load(loadCtx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}

func normalizeBook(book model.Book) (model.Book, error) {
	book.Title = strings.TrimSpace(book.Title)
	book.Author = strings.TrimSpace(book.Author)
	if book.Title == "" {
		return book, fmt.Errorf("%w: book title is empty", errx.ErrValidation)
	}
	return book, nil
}
