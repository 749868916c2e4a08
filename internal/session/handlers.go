package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/logging"
	"github.com/mbd888/facegate/internal/pagination"
	"github.com/mbd888/facegate/internal/validation"
	"github.com/mbd888/facegate/internal/workflow"
)

// Handler provides HTTP endpoints for capture sessions.
type Handler struct {
	manager *Manager
}

// NewHandler creates a new session handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// RegisterRoutes sets up session and attempt routes. frameLimit, when not
// nil, guards frame submission.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, frameLimit gin.HandlerFunc) {
	r.POST("/sessions", h.CreateSession)

	s := r.Group("/sessions/:id", validation.IDParamMiddleware(idPrefix), sessionContext())
	if frameLimit != nil {
		s.POST("/frames", frameLimit, h.SubmitFrame)
	} else {
		s.POST("/frames", h.SubmitFrame)
	}
	s.GET("", h.GetSession)
	s.POST("/signals", h.SendSignal)
	s.POST("/capture", h.Capture)
	s.POST("/processing", h.BeginProcessing)
	s.POST("/complete", h.Complete)
	s.POST("/restart", h.Restart)
	s.DELETE("", h.CloseSession)

	r.GET("/attempts", h.ListAttempts)
	r.GET("/attempts/:id", validation.IDParamMiddleware(attemptIDPrefix), h.GetAttempt)
}

// sessionContext tags the request logger with the session ID.
func sessionContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := logging.WithSessionID(c.Request.Context(), c.Param("id"))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CreateRequest opens a session.
type CreateRequest struct {
	Scenario string `json:"scenario"`
}

// SignalRequest carries an out-of-band client event.
type SignalRequest struct {
	Signal string `json:"signal" binding:"required"`
}

// CompleteRequest reports the registration result.
type CompleteRequest struct {
	Success bool   `json:"success"`
	Failure string `json:"failure"` // failed_* state name; empty means failed_other
	Message string `json:"message"`
}

var signalNames = []string{
	string(SignalCameraReady), string(SignalNoFace), string(SignalMultipleFaces),
	string(SignalCameraError), string(SignalPermissionDenied), string(SignalNetworkError),
	string(SignalLivenessConfirmed),
}

// CreateSession handles POST /v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Invalid request body",
			})
			return
		}
	}

	s, err := h.manager.Create(c.Request.Context(), req.Scenario)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s.Snapshot()})
}

// GetSession handles GET /v1/sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s.Snapshot()})
}

// SubmitFrame handles POST /v1/sessions/:id/frames
func (h *Handler) SubmitFrame(c *gin.Context) {
	var f Frame
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	checks := []func() *validation.ValidationError{
		validation.NonNegative("faceCount", f.FaceCount),
		validation.InRange("evidence.confidence", f.Evidence.Confidence, 0, 1),
	}
	if f.Box != nil {
		checks = append(checks,
			validation.InRange("box.x", f.Box.X, -1, 2),
			validation.InRange("box.y", f.Box.Y, -1, 2),
			validation.InRange("box.width", f.Box.Width, 0, 2),
			validation.InRange("box.height", f.Box.Height, 0, 2),
		)
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	if f.Evidence.Timestamp.IsZero() {
		f.Evidence.Timestamp = time.Now()
	}

	out, err := h.manager.Observe(c.Request.Context(), c.Param("id"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// SendSignal handles POST /v1/sessions/:id/signals
func (h *Handler) SendSignal(c *gin.Context) {
	var req SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if errs := validation.Validate(validation.OneOf("signal", req.Signal, signalNames...)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.Signal(c.Request.Context(), Signal(req.Signal))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// Capture handles POST /v1/sessions/:id/capture
func (h *Handler) Capture(c *gin.Context) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.Capture(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// BeginProcessing handles POST /v1/sessions/:id/processing
func (h *Handler) BeginProcessing(c *gin.Context) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out, err := s.BeginProcessing(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// Complete handles POST /v1/sessions/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	failure := workflow.FailedOther
	if req.Failure != "" {
		st, err := workflow.ParseState(req.Failure)
		if err != nil || !st.IsFinal() || st == workflow.Success {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_error",
				"message": "failure must name a failed_* or timeout_* state",
			})
			return
		}
		failure = st
	}
	if errs := validation.Validate(validation.MaxLength("message", req.Message, validation.MaxStringLength)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}

	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	msg := validation.SanitizeString(req.Message, validation.MaxStringLength)
	out, err := s.Complete(c.Request.Context(), req.Success, failure, msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

// Restart handles POST /v1/sessions/:id/restart
func (h *Handler) Restart(c *gin.Context) {
	s, err := h.manager.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	snap, err := s.Restart(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": snap})
}

// CloseSession handles DELETE /v1/sessions/:id
func (h *Handler) CloseSession(c *gin.Context) {
	if err := h.manager.Close(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListAttempts handles GET /v1/attempts
func (h *Handler) ListAttempts(c *gin.Context) {
	limit := pagination.ParseLimit(c.Query("limit"), 50, 200)

	sessionID := c.Query("session")
	if errs := validation.Validate(validation.ValidID("session", sessionID, idPrefix)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
			"details": errs,
		})
		return
	}
	var opts []ListOption
	if sessionID != "" {
		opts = append(opts, WithSession(sessionID))
	}
	if cursor := c.Query("cursor"); cursor != "" {
		if _, err := pagination.Decode(cursor); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": err.Error()})
			return
		}
		opts = append(opts, WithCursor(cursor))
	}

	attempts, err := h.manager.ListAttempts(c.Request.Context(), limit+1, opts...)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to list attempts"})
		return
	}
	attempts, next, more := pagination.ComputePage(attempts, limit, func(a *Attempt) (time.Time, string) {
		return a.CreatedAt, a.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"attempts":   attempts,
		"count":      len(attempts),
		"nextCursor": next,
		"hasMore":    more,
	})
}

// GetAttempt handles GET /v1/attempts/:id
func (h *Handler) GetAttempt(c *gin.Context) {
	a, err := h.manager.GetAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempt": a})
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	msg := "Internal error"
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAttemptNotFound):
		status, code, msg = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, ErrClosed):
		status, code, msg = http.StatusGone, "session_closed", err.Error()
	case errors.Is(err, ErrInvalidFrame), errors.Is(err, ErrUnknownSignal):
		status, code, msg = http.StatusBadRequest, "validation_error", err.Error()
	case errors.Is(err, antispoof.ErrUnknownScenario):
		status, code, msg = http.StatusBadRequest, "unknown_scenario", err.Error()
	case errors.Is(err, ErrInvalidState):
		status, code, msg = http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, ErrTooManySessions):
		status, code, msg = http.StatusServiceUnavailable, "capacity_exceeded", err.Error()
	}
	c.JSON(status, gin.H{"error": code, "message": msg})
}
