package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	logx "bookgpt/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	// ChatTimeout is the maximum time allowed for a chat request
	ChatTimeout = 60 * time.Second
	// MaxRetries is the maximum number of retries for failed requests
	MaxRetries = 1
	// MaxMessageLength is the maximum allowed message length
	MaxMessageLength = 2000
)

type ChatRequest struct {
	Book      model.Book          `json:"book"`
	Character model.BookCharacter `json:"character"`
	History   []model.ChatMessage `json:"history"`
	Message   string              `json:"message" binding:"required,max=2000"`
}

type ChatResponseDTO struct {
	Message model.ChatMessage   `json:"message"`
	History []model.ChatMessage `json:"history"`
}

func (h *Handler) HandleChat(c *gin.Context) {
	startTime := time.Now()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if strings.Contains(err.Error(), "max") {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Message is too long (max 2000 characters)",
				"code":  "MESSAGE_TOO_LONG",
			})
			return
		}
		badRequest(c, "Invalid request: message is required")
		return
	}

	reply, history, err := h.chatWithRetry(c.Request.Context(), req)
	if err != nil {
		logx.Debug().Dur("elapsed", time.Since(startTime)).Msg("chat failed")
		writeError(c, err)
		return
	}

	logx.Debug().
		Str("character", req.Character.Name).
		Int("turns", len(history)).
		Dur("elapsed", time.Since(startTime)).
		Msg("chat completed")

	c.JSON(http.StatusOK, ChatResponseDTO{
		Message: reply,
		History: history,
	})
}

// chatWithRetry retries transport failures only. Each attempt starts from
// the history the client sent, so the user turn is appended exactly once.
func (h *Handler) chatWithRetry(ctx context.Context, req ChatRequest) (model.ChatMessage, []model.ChatMessage, error) {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			logx.Info().Int("attempt", attempt+1).Int("max", MaxRetries+1).Msg("retrying chat")
			select {
			case <-ctx.Done():
				return model.ChatMessage{}, nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, ChatTimeout)
		reply, history, err := h.shelf.Chat(timeoutCtx, req.Book, req.Character, req.History, req.Message)
		cancel()

		if err == nil {
			return reply, history, nil
		}
		lastErr = err

		if !retryable(err) {
			return model.ChatMessage{}, nil, err
		}
		logx.Warn().Err(err).Int("attempt", attempt+1).Msg("chat attempt failed")
	}

	return model.ChatMessage{}, nil, lastErr
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errx.ErrRateLimited) || errors.Is(err, errx.ErrUnauthorized) {
		return false
	}
	return errors.Is(err, errx.ErrNetwork)
}
