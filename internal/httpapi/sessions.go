package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

type draftView struct {
	attendance.Draft
	Counts attendance.Counts `json:"counts"`
}

func viewDraft(d attendance.Draft) draftView {
	return draftView{Draft: d, Counts: d.Counts()}
}

type startSessionRequest struct {
	Group   string `json:"group" binding:"required"`
	Weekday string `json:"weekday"`
}

type rowRequest struct {
	Status      string `json:"status"`
	LateMinutes *int   `json:"late_minutes"`
}

func (h *Handler) startSession(c *gin.Context) {
	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.attendance.StartDraft(c.Request.Context(), auth.UserID(c), req.Group, req.Weekday)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewDraft(d))
}

func (h *Handler) getSession(c *gin.Context) {
	d, err := h.attendance.GetDraft(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewDraft(d))
}

func (h *Handler) discardSession(c *gin.Context) {
	if err := h.attendance.DiscardDraft(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) setSessionRow(c *gin.Context) {
	var req rowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status, err := attendance.ParseStatus(req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	d, err := h.attendance.SetDraftStatus(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("studentId"), status, req.LateMinutes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewDraft(d))
}

func (h *Handler) saveSession(c *gin.Context) {
	snap, err := h.attendance.SaveDraft(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}
