package httpapi

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
	"rollcall/internal/roster"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) listStudents(c *gin.Context) {
	students, err := h.roster.List(c.Request.Context(), auth.UserID(c), c.Query("search"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": orEmpty(students)})
}

func (h *Handler) createStudent(c *gin.Context) {
	var in roster.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.roster.Create(c.Request.Context(), auth.UserID(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) getStudent(c *gin.Context) {
	st, err := h.roster.Get(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) updateStudent(c *gin.Context) {
	var in roster.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.roster.Update(c.Request.Context(), auth.UserID(c), c.Param("id"), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) deleteStudent(c *gin.Context) {
	if !confirmed(c) {
		h.fail(c, errConfirmationRequired)
		return
	}
	if err := h.roster.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) exportStudents(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.roster.Export(c.Request.Context(), auth.UserID(c), &buf); err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="students.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) listGroups(c *gin.Context) {
	groups, err := h.roster.Groups(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": orEmpty(groups)})
}

func (h *Handler) groupWeekdays(c *gin.Context) {
	days, err := h.roster.GroupWeekdays(c.Request.Context(), auth.UserID(c), c.Param("group"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"weekdays": orEmpty(days)})
}

func (h *Handler) eligible(c *gin.Context) {
	students, err := h.attendance.Eligible(c.Request.Context(), auth.UserID(c), c.Query("group"), c.Query("weekday"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": orEmpty(students)})
}
