package deps

import (
	"context"

	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/model"
)

// LLMClient sends one self-contained request. Implementations must not keep
// per-request configuration between calls.
type LLMClient interface {
	Send(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// BooksRepository finds books for a free-text query.
type BooksRepository interface {
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
}

// CharactersRepository lists the characters of one book.
type CharactersRepository interface {
	Characters(ctx context.Context, book model.Book) ([]model.BookCharacter, error)
}

// ChatService produces the next in-character reply.
type ChatService interface {
	SendMessage(ctx context.Context, userText string, history []model.ChatMessage, character model.BookCharacter, book model.Book) (model.ChatMessage, error)
}

// HistoryStore persists recent books, character lists and portraits.
type HistoryStore interface {
	LoadRecentBooks(ctx context.Context) ([]model.Book, error)
	AddRecentBook(ctx context.Context, book model.Book) error
	LoadCachedCharacters(ctx context.Context, book model.Book) ([]model.BookCharacter, bool, error)
	SaveCharacters(ctx context.Context, characters []model.BookCharacter, book model.Book) error
	LoadPortrait(ctx context.Context, book model.Book, character model.BookCharacter) ([]byte, bool, error)
	SavePortrait(ctx context.Context, data []byte, book model.Book, character model.BookCharacter) error
}

// PortraitGenerator renders a character image.
type PortraitGenerator interface {
	GeneratePortrait(ctx context.Context, character model.BookCharacter, book model.Book) ([]byte, error)
}

// VisualizationService finds a character image for a book title.
type VisualizationService interface {
	Generate(ctx context.Context, bookTitle string) (model.Visualization, error)
}

// PaywallService is the billing capability used by the onboarding paywall.
type PaywallService interface {
	FetchPlans(ctx context.Context) ([]model.PaywallPlan, error)
	Purchase(ctx context.Context, planID string) (bool, error)
	RestorePurchases(ctx context.Context) (bool, error)
}
