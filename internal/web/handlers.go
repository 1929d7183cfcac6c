// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 TuneVault Contributors

// Package web is the JSON request boundary for the auth service. It decodes
// request bodies into the primitive arguments the core consumes and encodes
// typed outcomes into the success/error envelope.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/samber/oops"

	"github.com/tunevault/tunevault/internal/auth"
	"github.com/tunevault/tunevault/internal/observability"
	"github.com/tunevault/tunevault/pkg/errutil"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "tunevault_session"

// maxBodyBytes bounds request bodies; auth payloads are tiny.
const maxBodyBytes = 4 << 10

// Handler serves the /api/auth endpoints.
type Handler struct {
	svc     *auth.Service
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandler creates a Handler. metrics may be nil when the observability
// server is disabled.
func NewHandler(svc *auth.Service, logger *slog.Logger, metrics *observability.Metrics) (*Handler, error) {
	if svc == nil {
		return nil, oops.Code("WEB_NIL_DEPENDENCY").Errorf("auth service is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, metrics: metrics}, nil
}

// Register installs the auth routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/login", h.handleLogin)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("GET /api/auth/me", h.handleMe)
}

// envelope is the response body shape shared by all endpoints.
type envelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message,omitempty"`
	User    *userJSON `json:"user,omitempty"`
}

// userJSON is the client-facing user representation. The password hash is
// never serialized.
type userJSON struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func toUserJSON(u *auth.User) *userJSON {
	return &userJSON{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, "register", err)
		return
	}

	// Auto-login after registration, mirroring the interactive flow.
	h.establishAndRespond(w, r, "register", user, http.StatusCreated, "registration successful")
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, "login", err)
		return
	}

	h.establishAndRespond(w, r, "login", user, http.StatusOK, "login successful")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if termErr := h.svc.Terminate(r.Context(), cookie.Value); termErr != nil {
			h.writeError(w, r, "logout", termErr)
			return
		}
	}

	// Logging out without a session is fine; the result is the same.
	http.SetCookie(w, expiredSessionCookie())
	h.count("logout", "ok")
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Message: "logout successful"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		h.count("me", "unauthenticated")
		h.writeJSON(w, http.StatusUnauthorized, envelope{Success: false, Message: "not authenticated"})
		return
	}

	userID, err := h.svc.Resolve(r.Context(), cookie.Value)
	if err != nil {
		h.writeError(w, r, "me", err)
		return
	}

	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "me", err)
		return
	}

	h.count("me", "ok")
	h.writeJSON(w, http.StatusOK, envelope{Success: true, User: toUserJSON(user)})
}

// establishAndRespond creates a session for the authenticated user, sets the
// session cookie, and writes the success envelope.
func (h *Handler) establishAndRespond(w http.ResponseWriter, r *http.Request, op string, user *auth.User, status int, message string) {
	session, token, err := h.svc.Establish(r.Context(), user)
	if err != nil {
		h.writeError(w, r, op, err)
		return
	}

	http.SetCookie(w, sessionCookie(token, session.ExpiresAt))
	if h.metrics != nil {
		h.metrics.SessionsEstablishedTotal.Inc()
	}
	h.count(op, "ok")
	h.writeJSON(w, status, envelope{Success: true, Message: message, User: toUserJSON(user)})
}

func sessionCookie(token string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func expiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// decode reads a JSON body into dst. Writes a 400 envelope and returns false
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: "invalid request body"})
		return false
	}
	return true
}

// writeError maps a typed core error to its HTTP status and envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := classify(err)
	if status == http.StatusInternalServerError {
		errutil.LogError(h.logger.With("operation", op), "request failed", err)
	}
	h.count(op, "error")
	h.writeJSON(w, status, envelope{Success: false, Message: message})
}

// classify maps core error codes to status codes per the boundary contract:
// validation failures 400, credential failures 401, not-found 404, anything
// else 500.
func classify(err error) (int, string) {
	switch errutil.Code(err) {
	case "AUTH_INVALID_USERNAME",
		"AUTH_INVALID_EMAIL",
		"AUTH_PASSWORD_TOO_SHORT",
		"AUTH_USERNAME_TAKEN",
		"AUTH_EMAIL_TAKEN":
		return http.StatusBadRequest, err.Error()
	case "AUTH_MISSING_CREDENTIALS":
		// Login failures are all 401; missing fields keep their message.
		return http.StatusUnauthorized, err.Error()
	case "AUTH_INVALID_CREDENTIALS", "SESSION_INVALID", "SESSION_EXPIRED":
		return http.StatusUnauthorized, "invalid credentials or session"
	case "USER_NOT_FOUND":
		return http.StatusNotFound, "user not found"
	}

	if errors.Is(err, auth.ErrNotFound) {
		return http.StatusNotFound, "not found"
	}
	return http.StatusInternalServerError, "internal server error"
}

func (h *Handler) count(op, outcome string) {
	if h.metrics != nil {
		h.metrics.AuthRequestsTotal.WithLabelValues(op, outcome).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("response encode failed", "error", err)
	}
}
