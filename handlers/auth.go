// Package handlers, HTTP request/response işlemlerini yönetir.
//
// Handler ince olmalı: body'yi parse et, service'i çağır, sonucu yaz.
// İş mantığı ve DB erişimi service katmanındadır.
package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/pkg/ratelimit"
	"github.com/akinalp/eventchat/services"
)

type contextKey string

// UserContextKey, AuthMiddleware'ın doğrulanmış kullanıcıyı koyduğu context key'i.
const UserContextKey contextKey = "user"

// currentUser, context'teki kullanıcıyı döner. Route AuthMiddleware
// arkasında değilse ok false olur.
func currentUser(r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserContextKey).(*models.User)
	return user, ok
}

// AuthHandler, auth endpoint'lerini yönetir.
type AuthHandler struct {
	authService  services.AuthService
	loginLimiter *ratelimit.Limiter
}

// NewAuthHandler, constructor. loginLimiter nil ise brute-force koruması kapalıdır.
func NewAuthHandler(authService services.AuthService, loginLimiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		loginLimiter: loginLimiter,
	}
}

// Register godoc
// POST /api/auth/register
// Support hesapları bu endpoint'ten açılamaz.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == models.RoleSupport {
		pkg.ErrorWithMessage(w, http.StatusForbidden, "support accounts cannot self-register")
		return
	}

	resp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusCreated, resp)
}

// Login godoc
// POST /api/auth/login
// IP bazlı rate limit: limit aşılırsa 429 + Retry-After.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.loginLimiter != nil {
		if ok, retryAfter := h.loginLimiter.Allow(ratelimit.ExtractIP(r)); !ok {
			seconds := int(math.Ceil(retryAfter.Seconds()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
			pkg.ErrorWithMessage(w, http.StatusTooManyRequests,
				fmt.Sprintf("too many login attempts, please try again in %ds", seconds))
			return
		}
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkg.ErrorWithMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, resp)
}

// Me godoc
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(r)
	if !ok {
		pkg.ErrorWithMessage(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	me, err := h.authService.Me(r.Context(), user.ID)
	if err != nil {
		pkg.Error(w, err)
		return
	}

	pkg.JSON(w, http.StatusOK, me)
}
