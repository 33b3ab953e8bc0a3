package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/handlers"
	"github.com/akinalp/eventchat/middleware"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg/ratelimit"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/services"
	"github.com/akinalp/eventchat/ws"
)

type nopHub struct{}

func (nopHub) BroadcastToRoom(string, ws.Event)               {}
func (nopHub) BroadcastToRoomExcept(string, string, ws.Event) {}
func (nopHub) BroadcastToUser(string, ws.Event)               {}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type api struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPI(t *testing.T, loginLimiter *ratelimit.Limiter) *api {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "api.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewSQLiteUserRepo(db.Conn)
	auth := services.NewAuthService(users, "secret", time.Hour, 4)
	chats := services.NewChatService(users, repository.NewSQLiteChatRepo(db.Conn), nopHub{}, nil)
	reads := services.NewReadStateService(repository.NewSQLiteReadStateRepo(db.Conn), chats, nopHub{})

	authH := handlers.NewAuthHandler(auth, loginLimiter)
	chatH := handlers.NewChatHandler(chats, reads)
	mw := middleware.NewAuthMiddleware(auth, users)
	protect := func(h http.HandlerFunc) http.Handler { return mw.Require(h) }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handlers.Health(db.Conn))
	mux.HandleFunc("POST /api/auth/register", authH.Register)
	mux.HandleFunc("POST /api/auth/login", authH.Login)
	mux.Handle("GET /api/auth/me", protect(authH.Me))
	mux.Handle("GET /api/chats", protect(chatH.List))
	mux.Handle("POST /api/chats/start", protect(chatH.Start))
	mux.Handle("GET /api/chats/{id}", protect(chatH.Get))
	mux.Handle("POST /api/chats/{id}/messages", protect(chatH.SendMessage))
	mux.Handle("PUT /api/chats/{id}/read", protect(chatH.MarkRead))

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &api{t: t, srv: srv}
}

func (a *api) do(method, path, token string, body any, out any) int {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.srv.URL+path, &buf)
	require.NoError(a.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && env.Success {
		require.NoError(a.t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode
}

func (a *api) register(name string, role models.UserRole) models.LoginResponse {
	var resp models.LoginResponse
	status := a.do(http.MethodPost, "/api/auth/register", "", models.RegisterRequest{
		Username: name, Password: "password123", Role: role,
	}, &resp)
	require.Equal(a.t, http.StatusCreated, status)
	return resp
}

func TestChatFlow(t *testing.T) {
	a := newAPI(t, nil)
	customer := a.register("ayse", models.RoleUser)
	vendor := a.register("flowers", models.RoleVendor)

	var me models.User
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/auth/me", customer.AccessToken, nil, &me))
	assert.Equal(t, customer.User.ID, me.ID)

	var chat models.ChatDetail
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/chats/start", customer.AccessToken,
		models.StartChatRequest{VendorID: &vendor.User.ID}, &chat))
	assert.Equal(t, vendor.User.ID, chat.Counterpart.ID)
	assert.Empty(t, chat.Messages)

	var msg models.Message
	require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/api/chats/"+chat.ID+"/messages", vendor.AccessToken,
		models.CreateMessageRequest{Content: "Teklifimiz hazır"}, &msg))
	assert.Equal(t, vendor.User.ID, msg.SenderID)

	var list []models.ChatListItem
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/chats", customer.AccessToken, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount["user"])
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "Teklifimiz hazır", list[0].LastMessage.Content)

	require.Equal(t, http.StatusOK, a.do(http.MethodPut, "/api/chats/"+chat.ID+"/read", customer.AccessToken, nil, nil))
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/chats", customer.AccessToken, nil, &list))
	assert.Zero(t, list[0].UnreadCount["user"])

	var detail models.ChatDetail
	require.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/chats/"+chat.ID, customer.AccessToken, nil, &detail))
	require.Len(t, detail.Messages, 1)
	assert.Equal(t, msg.ID, detail.Messages[0].ID)
}

func TestStartSupportWithEmptyBody(t *testing.T) {
	a := newAPI(t, nil)
	customer := a.register("ayse", models.RoleUser)

	var first, second models.ChatDetail
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/chats/start", customer.AccessToken, nil, &first))
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/chats/start", customer.AccessToken,
		map[string]any{"vendorId": nil}, &second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.RoleSupport, first.Counterpart.Role)
}

func TestErrorStatuses(t *testing.T) {
	a := newAPI(t, nil)
	customer := a.register("ayse", models.RoleUser)
	stranger := a.register("mehmet", models.RoleUser)

	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodGet, "/api/chats", "", nil, nil))
	assert.Equal(t, http.StatusForbidden, a.do(http.MethodPost, "/api/auth/register", "",
		models.RegisterRequest{Username: "sneaky", Password: "password123", Role: models.RoleSupport}, nil))

	var chat models.ChatDetail
	require.Equal(t, http.StatusOK, a.do(http.MethodPost, "/api/chats/start", customer.AccessToken, nil, &chat))

	assert.Equal(t, http.StatusNotFound, a.do(http.MethodGet, "/api/chats/"+chat.ID, stranger.AccessToken, nil, nil))
	assert.Equal(t, http.StatusBadRequest, a.do(http.MethodPost, "/api/chats/"+chat.ID+"/messages",
		customer.AccessToken, models.CreateMessageRequest{Content: " "}, nil))
	assert.Equal(t, http.StatusOK, a.do(http.MethodGet, "/api/health", "", nil, nil))
}

func TestLoginRateLimit(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute, time.Minute)
	defer limiter.Stop()

	a := newAPI(t, limiter)
	a.register("ayse", models.RoleUser)

	bad := models.LoginRequest{Username: "ayse", Password: "wrong-pass"}
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/auth/login", "", bad, nil))
	assert.Equal(t, http.StatusUnauthorized, a.do(http.MethodPost, "/api/auth/login", "", bad, nil))
	assert.Equal(t, http.StatusTooManyRequests, a.do(http.MethodPost, "/api/auth/login", "", bad, nil))
}
