package session

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/eventchat/config"
	"github.com/akinalp/eventchat/conversation"
	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/handlers"
	"github.com/akinalp/eventchat/live"
	"github.com/akinalp/eventchat/middleware"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/services"
	"github.com/akinalp/eventchat/ws"
)

// backend, gerçek sqlite + hub + REST ile uçtan uca test sunucusu.
type backend struct {
	srv    *httptest.Server
	hub    *ws.Hub
	auth   services.AuthService
	tokens map[string]string // username → access token
}

func startBackend(t *testing.T) *backend {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "e2e.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewSQLiteUserRepo(db.Conn)
	auth := services.NewAuthService(users, "secret", time.Hour, 4)

	var chats services.ChatService
	hub := ws.NewHub(ws.AuthorizerFunc(func(ctx context.Context, userID, chatID string) bool {
		return chats.CanAccessChat(ctx, userID, chatID)
	}), nil)
	chats = services.NewChatService(users, repository.NewSQLiteChatRepo(db.Conn), hub, nil)
	reads := services.NewReadStateService(repository.NewSQLiteReadStateRepo(db.Conn), chats, hub)
	hub.OnMarkRead(func(userID, chatID string) {
		_ = reads.MarkRead(context.Background(), userID, chatID)
	})
	go hub.Run()

	authH := handlers.NewAuthHandler(auth, nil)
	chatH := handlers.NewChatHandler(chats, reads)
	mw := middleware.NewAuthMiddleware(auth, users)
	protect := func(h http.HandlerFunc) http.Handler { return mw.Require(h) }

	mux := http.NewServeMux()
	mux.Handle("GET /api/auth/me", protect(authH.Me))
	mux.Handle("GET /api/chats", protect(chatH.List))
	mux.Handle("POST /api/chats/start", protect(chatH.Start))
	mux.Handle("GET /api/chats/{id}", protect(chatH.Get))
	mux.Handle("POST /api/chats/{id}/messages", protect(chatH.SendMessage))
	mux.Handle("PUT /api/chats/{id}/read", protect(chatH.MarkRead))
	mux.HandleFunc("GET /ws", ws.NewHandler(hub, auth).HandleConnection)

	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})

	b := &backend{srv: srv, hub: hub, auth: auth, tokens: map[string]string{}}
	for name, role := range map[string]models.UserRole{
		"ayse":     models.RoleUser,
		"helpdesk": models.RoleSupport,
	} {
		resp, err := auth.Register(context.Background(), &models.RegisterRequest{
			Username: name, Password: "password123", Role: role,
		})
		require.NoError(t, err)
		b.tokens[name] = resp.AccessToken
	}
	return b
}

func (b *backend) client(t *testing.T) *Controller {
	t.Helper()

	c := New(Options{
		Config: config.ClientConfig{
			APIBaseURL:        b.srv.URL + "/api",
			LiveURLs:          []string{"ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"},
			RequestTimeout:    5 * time.Second,
			RefreshInterval:   20 * time.Millisecond,
			TypingIdle:        50 * time.Millisecond,
			TypingTimeout:     time.Second,
			IdentityTTL:       time.Minute,
			ReconnectInitial:  10 * time.Millisecond,
			ReconnectMax:      20 * time.Millisecond,
			ReconnectAttempts: 3,
			HeartbeatInterval: time.Second,
		},
		Logger: log.New(io.Discard, "", 0),
	})
	t.Cleanup(c.Close)
	return c
}

func waitConnected(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Live().State() == live.Connected }, 3*time.Second, 5*time.Millisecond)
}

func TestSupportConversationEndToEnd(t *testing.T) {
	b := startBackend(t)
	ctx := context.Background()

	customer := b.client(t)
	id, err := customer.SignIn(ctx, b.tokens["ayse"])
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, id.Role)
	waitConnected(t, customer)

	conv, err := customer.OpenConversation(ctx, conversation.Support())
	require.NoError(t, err)
	assert.True(t, customer.Chats().Paused())
	chatID := conv.ChatID()
	require.Eventually(t, func() bool { return b.hub.RoomSize(chatID) == 1 }, 3*time.Second, 5*time.Millisecond)

	sent, err := conv.Send(ctx, "düğün için fiyat alabilir miyim?")
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(sent.ID, "temp-"))

	// Support tarafı listede konuşmayı okunmamış olarak görür
	agent := b.client(t)
	_, err = agent.SignIn(ctx, b.tokens["helpdesk"])
	require.NoError(t, err)
	waitConnected(t, agent)
	require.NoError(t, agent.Chats().Load(ctx))

	list := agent.Chats().Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, chatID, list[0].ID)
	assert.Equal(t, 1, list[0].UnreadCount)
	assert.Equal(t, "düğün için fiyat alabilir miyim?", list[0].LastMessagePreview)

	reply, err := agent.OpenConversation(ctx, conversation.Existing(chatID))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.hub.RoomSize(chatID) == 2 }, 3*time.Second, 5*time.Millisecond)

	reply.SetInput("tabii")
	require.Eventually(t, conv.CounterpartTyping, 3*time.Second, 5*time.Millisecond)

	_, err = reply.Send(ctx, "tabii, kaç kişilik?")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(conv.Messages()) == 2 }, 3*time.Second, 5*time.Millisecond)
	msgs := conv.Messages()
	assert.True(t, msgs[0].IsMine)
	assert.False(t, msgs[1].IsMine)
	assert.Equal(t, "tabii, kaç kişilik?", msgs[1].Content)
	assert.Len(t, reply.Messages(), 2, "sender's own echo is not duplicated")

	conv.Close()
	assert.False(t, customer.Chats().Paused())
	require.Eventually(t, func() bool { return b.hub.RoomSize(chatID) == 1 }, 3*time.Second, 5*time.Millisecond)
}

func TestSignInRejectsInvalidToken(t *testing.T) {
	b := startBackend(t)
	c := b.client(t)

	_, err := c.SignIn(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, pkg.ErrUnauthorized)
	assert.Equal(t, live.Absent, c.Live().State())
	assert.Nil(t, c.Chats())

	_, ok := c.Identity()
	assert.False(t, ok)
}

func TestOpenConversationRequiresSession(t *testing.T) {
	b := startBackend(t)
	c := b.client(t)

	_, err := c.OpenConversation(context.Background(), conversation.Support())
	require.ErrorIs(t, err, pkg.ErrNotAuthenticated)
}

func TestSignOutTearsDown(t *testing.T) {
	b := startBackend(t)
	c := b.client(t)
	ctx := context.Background()

	_, err := c.SignIn(ctx, b.tokens["ayse"])
	require.NoError(t, err)
	waitConnected(t, c)

	conv, err := c.OpenConversation(ctx, conversation.Support())
	require.NoError(t, err)

	c.SignOut()
	c.SignOut()

	assert.Equal(t, live.Absent, c.Live().State())
	assert.Equal(t, conversation.Closed, conv.Status())
	assert.Nil(t, c.Chats())

	_, err = conv.Send(ctx, "x")
	require.ErrorIs(t, err, pkg.ErrClosed)
}
