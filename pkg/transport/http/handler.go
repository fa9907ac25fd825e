package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/averbach/colloquy/pkg/api"
	"github.com/averbach/colloquy/pkg/config"
	"github.com/averbach/colloquy/pkg/transport"
)

// sessionCookie carries the opaque session token that groups requests
// into one conversation. The token is minted here and never contains
// tenant or user data.
const sessionCookie = "colloquy_session"

// MessageHandler serves one inbound message end to end. Implemented by
// the pipeline; stubbed in tests.
type MessageHandler interface {
	Handle(ctx context.Context, tenant config.Tenant, req *api.MessageRequest, w transport.ResponseWriter) error
}

// HealthChecker reports backing-store health for the readiness endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Adapter serves the conversational API over HTTP. It routes requests,
// manages session cookies, and hands each message to the pipeline
// through an sseWriter.
type Adapter struct {
	handler MessageHandler
	health  HealthChecker // nil disables the store check on /healthz
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 1 << 20, // 1 MB; requests carry one free-text message
	}
}

// NewAdapter creates an HTTP adapter around the given message handler.
func NewAdapter(handler MessageHandler, health HealthChecker, cfg Config) *Adapter {
	a := &Adapter{
		handler: handler,
		health:  health,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/agents/{account}/{agent}/messages", a.handleMessage)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to
// integrate with an http.Server or test with httptest.
func (a *Adapter) Handler() http.Handler {
	return a.mux
}

// handleMessage handles POST /v1/agents/{account}/{agent}/messages.
func (a *Adapter) handleMessage(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("message", "message must not be empty"),
			http.StatusBadRequest,
		)
		return
	}

	tenant := config.Tenant{
		Account: r.PathValue("account"),
		Agent:   r.PathValue("agent"),
	}

	// The session ID comes from the cookie, never from the body. A
	// missing or malformed cookie starts a fresh conversation.
	req.SessionID = a.ensureSession(w, r)

	rw := newSSEWriter(w)
	if err := a.handler.Handle(r.Context(), tenant, &req, rw); err != nil {
		// The pipeline reports its own failures through the writer; an
		// error here means the response itself could not be written.
		if !rw.streaming() {
			transport.WriteAPIError(w, transport.AsAPIError(err))
		}
	}
}

// ensureSession returns the session token from the request cookie,
// minting and setting a new one when absent or malformed.
func (a *Adapter) ensureSession(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(sessionCookie); err == nil && validSessionToken(c.Value) {
		return c.Value
	}

	token := "sess_" + uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return token
}

// validSessionToken accepts only tokens this server could have minted.
func validSessionToken(v string) bool {
	rest, ok := strings.CutPrefix(v, "sess_")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health.HealthCheck(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
