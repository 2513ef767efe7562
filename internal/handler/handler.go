// Package handler exposes the bookshelf and onboarding use cases over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	errx "bookgpt/backend/internal/core/error"
	"bookgpt/backend/internal/model"
	"bookgpt/backend/internal/onboarding"
	logx "bookgpt/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Shelf is the subset of agent.Bookshelf the handlers call.
type Shelf interface {
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	RecentBooks(ctx context.Context) ([]model.Book, error)
	OpenBook(ctx context.Context, book model.Book) ([]model.Book, error)
	Characters(ctx context.Context, book model.Book, refresh bool) ([]model.BookCharacter, error)
	Chat(ctx context.Context, book model.Book, character model.BookCharacter, history []model.ChatMessage, userText string) (model.ChatMessage, []model.ChatMessage, error)
	Portrait(ctx context.Context, book model.Book, character model.BookCharacter) ([]byte, error)
}

type Handler struct {
	shelf      Shelf
	onboarding *onboarding.Manager
	ready      atomic.Bool
}

func New(shelf Shelf, manager *onboarding.Manager) *Handler {
	return &Handler{shelf: shelf, onboarding: manager}
}

// SetReady flips the readiness check.
func (h *Handler) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Register mounts the API routes. limit guards the model-backed endpoints and
// session creation, and may be nil.
func (h *Handler) Register(r gin.IRouter, limit gin.HandlerFunc) {
	guarded := []gin.HandlerFunc{}
	if limit != nil {
		guarded = append(guarded, limit)
	}
	with := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, guarded...), fn)
	}

	api := r.Group("/api")
	{
		api.GET("/books", with(h.HandleSearchBooks)...)
		api.GET("/books/recent", h.HandleRecentBooks)
		api.POST("/books/recent", h.HandleOpenBook)
		api.POST("/characters", with(h.HandleCharacters)...)
		api.POST("/chat", with(h.HandleChat)...)
		api.POST("/portraits", with(h.HandlePortrait)...)
	}

	ob := api.Group("/onboarding")
	{
		ob.GET("/content", h.HandleOnboardingContent)
		ob.POST("/sessions", with(h.HandleCreateSession)...)

		s := ob.Group("/sessions/:id")
		s.GET("", h.HandleGetSession)
		s.DELETE("", h.HandleDeleteSession)
		s.PUT("/answers", h.HandleUpdateAnswers)
		s.POST("/advance", h.sessionAction(func(f *onboarding.Flow) bool { return f.Advance() }))
		s.POST("/back", h.sessionAction(func(f *onboarding.Flow) bool { return f.GoBack() }))
		s.POST("/visualization", h.sessionAction(func(f *onboarding.Flow) bool { f.StartVisualization(); return true }))
		s.POST("/personalization", h.sessionAction(func(f *onboarding.Flow) bool { f.StartPersonalization(); return true }))
		s.DELETE("/personalization", h.sessionAction(func(f *onboarding.Flow) bool { f.CancelPersonalization(); return true }))
		s.POST("/plans", h.sessionAction(func(f *onboarding.Flow) bool { f.LoadPlans(); return true }))
		s.PUT("/plan", h.HandleSelectPlan)
		s.POST("/purchase", h.sessionAction(func(f *onboarding.Flow) bool { return f.Purchase() }))
		s.POST("/restore", h.sessionAction(func(f *onboarding.Flow) bool { return f.RestorePurchase() }))
		s.POST("/finish", h.HandleFinish)
	}
}

// writeError maps err onto the JSON error shape shared by every endpoint.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		logx.Warn().Err(err).Str("path", c.FullPath()).Msg("request timed out")
		c.JSON(http.StatusGatewayTimeout, gin.H{
			"error": "Request timed out. Please try again.",
			"code":  "TIMEOUT",
		})
		return
	}

	appErr := errx.FromError(err)
	event := logx.Warn()
	if appErr.Status >= http.StatusInternalServerError {
		event = logx.Error()
	}
	event.Err(err).Str("path", c.FullPath()).Int("status", appErr.Status).Str("code", appErr.Code).Msg("request failed")

	c.JSON(appErr.Status, gin.H{
		"error": appErr.Message,
		"code":  appErr.Code,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  "INVALID_REQUEST",
	})
}
