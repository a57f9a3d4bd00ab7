package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/chomp-auth/adapters/backend"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/service"
	"github.com/rs/zerolog"
)

// maxWait bounds how long GET /auth/state may block waiting for a change
const maxWait = 30 * time.Second

type errorView struct {
	Kind    core.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

type stateView struct {
	Step          core.FlowState  `json:"step"`
	Method        string          `json:"method,omitempty"`
	Error         *errorView      `json:"error,omitempty"`
	Challenge     *core.Challenge `json:"challenge,omitempty"`
	Redirect      string          `json:"redirect,omitempty"`
	Attempt       uint64          `json:"attempt"`
	Authenticated bool            `json:"authenticated"`
}

// AuthHandlers contains HTTP handlers for the local agent
type AuthHandlers struct {
	orch     *service.Orchestrator
	endpoint *backend.Endpoint
	logger   zerolog.Logger
}

// NewAuthHandlers creates new auth handlers
func NewAuthHandlers(orch *service.Orchestrator, endpoint *backend.Endpoint, logger zerolog.Logger) *AuthHandlers {
	return &AuthHandlers{
		orch:     orch,
		endpoint: endpoint,
		logger:   logger,
	}
}

func (h *AuthHandlers) view() stateView {
	snap := h.orch.Snapshot()
	v := stateView{
		Step:          snap.Step,
		Method:        snap.Method.String(),
		Challenge:     snap.Challenge,
		Redirect:      snap.Redirect,
		Attempt:       snap.Attempt,
		Authenticated: h.orch.Sessions().Authenticated(),
	}
	if snap.Error != nil {
		v.Error = &errorView{Kind: snap.Error.Kind, Message: snap.Error.Message}
	}
	return v
}

// Methods lists the selectable auth methods
func (h *AuthHandlers) Methods(c *gin.Context) {
	var methods []string
	for _, m := range h.orch.Methods() {
		methods = append(methods, m.String())
	}
	c.JSON(http.StatusOK, gin.H{"methods": methods})
}

// State returns the flow state. With ?wait=<duration> it blocks until the
// state changes or the duration passes.
func (h *AuthHandlers) State(c *gin.Context) {
	if raw := c.Query("wait"); raw != "" {
		wait, err := time.ParseDuration(raw)
		if err != nil || wait < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wait duration"})
			return
		}
		if wait > maxWait {
			wait = maxWait
		}

		changes := h.orch.Changes()
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-changes:
		case <-timer.C:
		case <-c.Request.Context().Done():
			return
		}
	}
	c.JSON(http.StatusOK, h.view())
}

// Session reports the held session without its token
func (h *AuthHandlers) Session(c *gin.Context) {
	sessions := h.orch.Sessions()
	session, ok := sessions.Session()
	if !ok {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"loading":       sessions.IsLoading(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"loading":       sessions.IsLoading(),
		"user_id":       session.UserID,
		"method":        session.Method.String(),
		"expires_at":    session.ExpiresAt,
	})
}

// Login starts an attempt and answers once it resolves
func (h *AuthHandlers) Login(c *gin.Context) {
	var req struct {
		Method string `json:"method" binding:"required"`
		Input  string `json:"input"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	method, err := core.ParseAuthMethod(req.Method)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, err = h.orch.Begin(c.Request.Context(), method, req.Input)
	h.respond(c, err)
}

// Retry re-runs the failed attempt
func (h *AuthHandlers) Retry(c *gin.Context) {
	_, err := h.orch.Retry(c.Request.Context())
	h.respond(c, err)
}

// Cancel abandons the pending attempt
func (h *AuthHandlers) Cancel(c *gin.Context) {
	h.orch.Cancel()
	c.JSON(http.StatusOK, h.view())
}

// Dismiss clears the retained error
func (h *AuthHandlers) Dismiss(c *gin.Context) {
	h.orch.Dismiss()
	c.JSON(http.StatusOK, h.view())
}

// Logout ends the session
func (h *AuthHandlers) Logout(c *gin.Context) {
	if err := h.orch.Logout(c.Request.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("logout did not complete cleanly")
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Callback is where the OAuth2 provider sends the user back to. The attempt
// is resolved and the user is redirected to the URL without the callback
// parameters.
func (h *AuthHandlers) Callback(c *gin.Context) {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	callbackURL := scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()

	_, cleaned, err := h.orch.Resume(c.Request.Context(), callbackURL)
	if errors.Is(err, core.ErrNoCallback) || errors.Is(err, core.ErrNoAttempt) {
		c.JSON(http.StatusOK, h.view())
		return
	}
	// Failures are part of the flow state the redirect target renders
	c.Redirect(http.StatusSeeOther, cleaned)
}

// Backend returns the selected backend
func (h *AuthHandlers) Backend(c *gin.Context) {
	c.JSON(http.StatusOK, h.endpoint.Current())
}

// SelectBackend switches to another backend from the directory
func (h *AuthHandlers) SelectBackend(c *gin.Context) {
	var req backend.Backend
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.endpoint.Select(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.endpoint.Current())
}

// respond maps the outcome of an attempt to a status code; the body is
// always the resulting state
func (h *AuthHandlers) respond(c *gin.Context, err error) {
	statusCode := http.StatusOK

	var ae *core.AuthError
	switch {
	case err == nil:
	case errors.Is(err, core.ErrRedirectPending):
		statusCode = http.StatusAccepted
	case errors.Is(err, core.ErrInvalidMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrSuperseded), errors.Is(err, core.ErrNoAttempt):
		statusCode = http.StatusConflict
	case errors.Is(err, context.Canceled):
		return
	case errors.As(err, &ae):
		statusCode = statusForKind(ae.Kind)
	default:
		statusCode = http.StatusInternalServerError
	}

	c.JSON(statusCode, h.view())
}

func statusForKind(kind core.ErrorKind) int {
	switch kind {
	case core.KindNetwork, core.KindChallenge:
		return http.StatusBadGateway
	case core.KindWallet:
		return http.StatusUnprocessableEntity
	}
	return http.StatusUnauthorized
}
