package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

type clearRequest struct {
	Before  string `json:"before" binding:"required"`
	Confirm bool   `json:"confirm"`
}

func (h *Handler) listHistory(c *gin.Context) {
	snaps, err := h.attendance.List(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": orEmpty(snaps)})
}

func (h *Handler) saveHistory(c *gin.Context) {
	var in attendance.SaveInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	snap, err := h.attendance.Save(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (h *Handler) getHistory(c *gin.Context) {
	snap, err := h.attendance.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) deleteHistory(c *gin.Context) {
	if !confirmed(c) {
		h.fail(c, errConfirmationRequired)
		return
	}
	if err := h.attendance.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) editHistoryRow(c *gin.Context) {
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
	snap, err := h.attendance.EditStudent(c.Request.Context(), auth.UserID(c), c.Param("id"), c.Param("studentId"), status, req.LateMinutes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) clearHistory(c *gin.Context) {
	var req clearRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Confirm && !confirmed(c) {
		h.fail(c, errConfirmationRequired)
		return
	}
	res, err := h.attendance.ClearOlderThan(c.Request.Context(), auth.UserID(c), req.Before)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listLocks(c *gin.Context) {
	locks, err := h.attendance.ActiveLocks(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"locks": orEmpty(locks), "cooldown": h.attendance.Cooldown().String()})
}

func (h *Handler) checkLock(c *gin.Context) {
	state, err := h.attendance.CheckLock(c.Request.Context(), auth.UserID(c), c.Query("group"), c.Query("date"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}
