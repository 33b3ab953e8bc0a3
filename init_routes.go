package main

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/akinalp/eventchat/handlers"
	"github.com/akinalp/eventchat/middleware"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/services"
	"github.com/akinalp/eventchat/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Auth *handlers.AuthHandler
	Chat *handlers.ChatHandler
	WS   *ws.Handler
}

func initHandlers(svcs *Services, limiters *RateLimiters, hub *ws.Hub) *Handlers {
	return &Handlers{
		Auth: handlers.NewAuthHandler(svcs.Auth, limiters.Login),
		Chat: handlers.NewChatHandler(svcs.Chat, svcs.ReadState),
		WS:   ws.NewHandler(hub, svcs.Auth),
	}
}

// initRoutes, middleware chain'i kurar ve endpoint'leri mux'a bağlar.
//
// Literal path'ler parametrik olanlardan önce: "/api/chats/start" yoksa
// "{id}" olarak yorumlanır.
func initRoutes(
	mux *http.ServeMux,
	h *Handlers,
	authService services.AuthService,
	userRepo repository.UserRepository,
	db *sql.DB,
	reg *prometheus.Registry,
) {
	authMw := middleware.NewAuthMiddleware(authService, userRepo)
	metricsMw := middleware.NewMetricsMiddleware(reg)

	auth := func(route string, handler http.HandlerFunc) http.Handler {
		return metricsMw.Wrap(route, authMw.Require(handler))
	}
	public := func(route string, handler http.HandlerFunc) http.Handler {
		return metricsMw.Wrap(route, handler)
	}

	mux.Handle("GET /api/health", public("health", handlers.Health(db)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Auth
	mux.Handle("POST /api/auth/register", public("auth_register", h.Auth.Register))
	mux.Handle("POST /api/auth/login", public("auth_login", h.Auth.Login))
	mux.Handle("GET /api/auth/me", auth("auth_me", h.Auth.Me))

	// Chats
	mux.Handle("GET /api/chats", auth("chats_list", h.Chat.List))
	mux.Handle("POST /api/chats/start", auth("chats_start", h.Chat.Start))
	mux.Handle("GET /api/chats/{id}", auth("chats_get", h.Chat.Get))
	mux.Handle("POST /api/chats/{id}/messages", auth("chats_send", h.Chat.SendMessage))
	mux.Handle("PUT /api/chats/{id}/read", auth("chats_read", h.Chat.MarkRead))

	// WebSocket: token header'dan veya ?token= query'den, handler kendi doğrular
	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
}
