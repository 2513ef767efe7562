package handler

import (
	"net/http"

	"bookgpt/backend/internal/model"

	"github.com/gin-gonic/gin"
)

type openBookRequest struct {
	Book model.Book `json:"book"`
}

type charactersRequest struct {
	Book    model.Book `json:"book"`
	Refresh bool       `json:"refresh"`
}

type portraitRequest struct {
	Book      model.Book          `json:"book"`
	Character model.BookCharacter `json:"character"`
}

type booksResponse struct {
	Books []model.Book `json:"books"`
}

type charactersResponse struct {
	Characters []model.BookCharacter `json:"characters"`
}

// HandleSearchBooks runs a model-backed search for ?query=.
func (h *Handler) HandleSearchBooks(c *gin.Context) {
	books, err := h.shelf.SearchBooks(c.Request.Context(), c.Query("query"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booksResponse{Books: nonNil(books)})
}

func (h *Handler) HandleRecentBooks(c *gin.Context) {
	books, err := h.shelf.RecentBooks(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booksResponse{Books: nonNil(books)})
}

// HandleOpenBook records a book as opened and returns the new recent list.
func (h *Handler) HandleOpenBook(c *gin.Context) {
	var req openBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: book is required")
		return
	}
	books, err := h.shelf.OpenBook(c.Request.Context(), req.Book)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, booksResponse{Books: nonNil(books)})
}

func (h *Handler) HandleCharacters(c *gin.Context) {
	var req charactersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: book is required")
		return
	}
	characters, err := h.shelf.Characters(c.Request.Context(), req.Book, req.Refresh)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, charactersResponse{Characters: nonNil(characters)})
}

// HandlePortrait responds with the raw image bytes.
func (h *Handler) HandlePortrait(c *gin.Context) {
	var req portraitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: book and character are required")
		return
	}
	data, err := h.shelf.Portrait(c.Request.Context(), req.Book, req.Character)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
