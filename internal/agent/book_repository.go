package agent

import (
	"context"
	"fmt"
	"strings"

	"bookgpt/backend/internal/agent/deps"
	"bookgpt/backend/internal/agent/prompt"
	"bookgpt/backend/internal/agent/response"
	"bookgpt/backend/internal/agent/validation"
	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/llm"
	"bookgpt/backend/internal/metrics"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"
)

// MaxSearchResults caps the number of books returned by one search.
const MaxSearchResults = 12

type bookItem struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
}

type booksPayload struct {
	Books []bookItem
}

func (p *booksPayload) UnmarshalJSON(data []byte) error {
	items, err := response.UnmarshalList(data, []string{"books", "items", "results"}, func(i bookItem) bool {
		return i.Title != nil && i.Author != nil
	})
	if err != nil {
		return err
	}
	p.Books = items
	return nil
}

// LLMBooksRepository finds books by asking the model for structured JSON.
type LLMBooksRepository struct {
	client    deps.LLMClient
	config    llm.Configuration
	builder   *prompt.Builder
	corrector *validation.ResponseCorrector
	pipeline  *validation.Pipeline
}

// NewLLMBooksRepository creates a repository. config is the base request
// configuration; the system prompt is set per call.
func NewLLMBooksRepository(client deps.LLMClient, config llm.Configuration) *LLMBooksRepository {
	return &LLMBooksRepository{
		client:    client,
		config:    config,
		builder:   prompt.NewBuilder(),
		corrector: validation.NewResponseCorrector(client),
		pipeline:  validation.BooksPipeline(),
	}
}

// SearchBooks returns up to MaxSearchResults distinct books for query.
func (r *LLMBooksRepository) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query is empty", errx.ErrValidation)
	}
	logx.Debug().Str("query", query).Msg("searchBooks")

	resp, err := r.client.Send(ctx, llm.Request{
		Config:   r.config.WithSystemPrompt(prompt.BooksSystemPrompt),
		Messages: []llm.Message{llm.UserText(r.builder.BuildBooksPrompt(query, MaxSearchResults))},
	})
	if err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	logx.Debug().
		Str("model", resp.Model).
		Int("tokens", resp.Usage.TotalTokens).
		Int("text_length", len(resp.Text)).
		Msg("searchBooks response")

	payload, err := response.Decode[booksPayload](resp.Text)
	if err != nil {
		logx.Warn().Err(err).Str("raw_head", head(resp.Text, 400)).Msg("searchBooks first decode failed")

		repaired, repairErr := r.corrector.Repair(ctx, "books", r.config,
			prompt.BooksRepairSystemPrompt, r.builder.BuildBooksRepairPrompt(resp.Text))
		if repairErr != nil {
			return nil, repairErr
		}
		payload, err = response.Decode[booksPayload](repaired)
		if err != nil {
			return nil, fmt.Errorf("search books: %w", err)
		}
	}

	books := make([]model.Book, 0, len(payload.Books))
	seen := make(map[string]struct{}, len(payload.Books))
	for _, item := range payload.Books {
		title := strings.TrimSpace(*item.Title)
		author := strings.TrimSpace(*item.Author)

		result := r.pipeline.Validate(ctx, validation.ValidationInput{
			Source: "books",
			Fields: []validation.Field{{Name: "title", Value: title}, {Name: "author", Value: author}},
		})
		if !result.IsValid {
			metrics.PlaceholderDropped.WithLabelValues("books").Inc()
			continue
		}

		book := model.NewBook(title, author)
		if _, dup := seen[book.StorageKey()]; dup {
			continue
		}
		seen[book.StorageKey()] = struct{}{}
		books = append(books, book)
		if len(books) == MaxSearchResults {
			break
		}
	}

	logx.Debug().Int("count", len(books)).Msg("searchBooks parsed")
	return books, nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
