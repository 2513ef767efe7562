package handler

import (
	"errors"
	"io"
	"net/http"

	"bookgpt/backend/internal/onboarding"

	"github.com/gin-gonic/gin"
)

type createSessionRequest struct {
	StartAtPaywall bool   `json:"startAtPaywall"`
	CustomerID     string `json:"customerId"`
}

type selectPlanRequest struct {
	PlanID string `json:"planId" binding:"required"`
}

// sessionResponse reports whether the requested action was taken along with
// the state after it.
type sessionResponse struct {
	ID       string              `json:"id"`
	Accepted bool                `json:"accepted"`
	Session  onboarding.Snapshot `json:"session"`
}

func (h *Handler) HandleOnboardingContent(c *gin.Context) {
	c.JSON(http.StatusOK, h.onboarding.Content())
}

func (h *Handler) HandleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return
	}

	id, flow := h.onboarding.Create(req.StartAtPaywall, req.CustomerID)
	c.JSON(http.StatusCreated, sessionResponse{ID: id, Accepted: true, Session: flow.Snapshot()})
}

func (h *Handler) HandleGetSession(c *gin.Context) {
	flow, ok := h.flow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Accepted: true, Session: flow.Snapshot()})
}

func (h *Handler) HandleDeleteSession(c *gin.Context) {
	if err := h.onboarding.Discard(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) HandleUpdateAnswers(c *gin.Context) {
	flow, ok := h.flow(c)
	if !ok {
		return
	}
	var patch onboarding.AnswersPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "Invalid answers")
		return
	}
	if err := flow.UpdateAnswers(patch); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Accepted: true, Session: flow.Snapshot()})
}

func (h *Handler) HandleSelectPlan(c *gin.Context) {
	flow, ok := h.flow(c)
	if !ok {
		return
	}
	var req selectPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: planId is required")
		return
	}
	if err := flow.SelectPlan(req.PlanID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Accepted: true, Session: flow.Snapshot()})
}

func (h *Handler) HandleFinish(c *gin.Context) {
	flow, ok := h.flow(c)
	if !ok {
		return
	}
	if err := flow.Finish(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Accepted: true, Session: flow.Snapshot()})
}

// sessionAction runs an action that is silently ignored when the flow is not
// in a state that allows it. Accepted carries the outcome.
func (h *Handler) sessionAction(action func(*onboarding.Flow) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := h.flow(c)
		if !ok {
			return
		}
		accepted := action(flow)
		c.JSON(http.StatusOK, sessionResponse{ID: c.Param("id"), Accepted: accepted, Session: flow.Snapshot()})
	}
}

func (h *Handler) flow(c *gin.Context) (*onboarding.Flow, bool) {
	flow, err := h.onboarding.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return flow, true
}
