// Package httpapi exposes the roster, attendance and account services over
// JSON HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/avatar"
	"rollcall/internal/roster"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) bool

// Handler serves the v1 API.
type Handler struct {
	roster     *roster.Service
	attendance *attendance.Service
	auth       *auth.Service
	log        zerolog.Logger
	checks     map[string]Check
}

// New creates a handler. checks feed /healthz and may be nil.
func New(r *roster.Service, a *attendance.Service, au *auth.Service, log zerolog.Logger, checks map[string]Check) *Handler {
	return &Handler{roster: r, attendance: a, auth: au, log: log, checks: checks}
}

// Register mounts every route. bearer guards the owner-scoped routes.
func (h *Handler) Register(r *gin.Engine, bearer gin.HandlerFunc) {
	r.GET("/healthz", h.health)

	public := r.Group("/v1/auth")
	public.POST("/signup", h.signUp)
	public.POST("/signin", h.signIn)
	public.POST("/refresh", h.refresh)
	public.POST("/signout", h.signOut)

	v1 := r.Group("/v1", bearer)
	v1.GET("/auth/session", h.session)
	v1.PATCH("/auth/user", h.updateUser)
	v1.POST("/auth/avatar", h.uploadAvatar)

	v1.GET("/students", h.listStudents)
	v1.POST("/students", h.createStudent)
	v1.GET("/students/export", h.exportStudents)
	v1.GET("/students/:id", h.getStudent)
	v1.PUT("/students/:id", h.updateStudent)
	v1.DELETE("/students/:id", h.deleteStudent)
	v1.GET("/groups", h.listGroups)
	v1.GET("/groups/:group/weekdays", h.groupWeekdays)
	v1.GET("/eligible", h.eligible)

	v1.POST("/sessions", h.startSession)
	v1.GET("/sessions/:id", h.getSession)
	v1.DELETE("/sessions/:id", h.discardSession)
	v1.PUT("/sessions/:id/rows/:studentId", h.setSessionRow)
	v1.POST("/sessions/:id/save", h.saveSession)

	v1.GET("/history", h.listHistory)
	v1.POST("/history", h.saveHistory)
	v1.POST("/history/clear", h.clearHistory)
	v1.GET("/history/:id", h.getHistory)
	v1.DELETE("/history/:id", h.deleteHistory)
	v1.PUT("/history/:id/students/:studentId", h.editHistoryRow)

	v1.GET("/locks", h.listLocks)
	v1.GET("/locks/check", h.checkLock)
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(ctx)
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// errConfirmationRequired gates destructive calls until the client confirms.
var errConfirmationRequired = errors.New("confirmation required: repeat the request with confirm=true")

// fail maps a service error onto a status code. Unexpected errors are logged
// and hidden behind a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	var (
		rosterInvalid roster.ValidationError
		attInvalid    attendance.ValidationError
		authInvalid   auth.ValidationError
		locked        *attendance.LockedError
	)
	switch {
	case errors.As(err, &rosterInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": rosterInvalid.Message, "field": rosterInvalid.Field})
	case errors.As(err, &attInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": attInvalid.Message, "field": attInvalid.Field})
	case errors.As(err, &authInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": authInvalid.Message, "field": authInvalid.Field})
	case errors.As(err, &locked):
		c.JSON(http.StatusConflict, gin.H{
			"error":     locked.Error(),
			"until":     locked.Until,
			"remaining": locked.Remaining,
		})
	case errors.Is(err, attendance.ErrEmptySession), errors.Is(err, avatar.ErrInvalidImage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, errConfirmationRequired):
		c.JSON(http.StatusPreconditionRequired, gin.H{"error": err.Error()})
	case errors.Is(err, roster.ErrNotFound), errors.Is(err, attendance.ErrNotFound), errors.Is(err, auth.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, attendance.ErrSaveInProgress), errors.Is(err, auth.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, avatar.ErrDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("method", c.Request.Method).Str("route", c.FullPath()).
			Str("owner", auth.UserID(c)).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// confirmed reports whether the caller passed confirm=true in the query.
func confirmed(c *gin.Context) bool {
	return c.Query("confirm") == "true"
}

// orEmpty keeps list responses as [] rather than null.
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
