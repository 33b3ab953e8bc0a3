package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/pkg/ratelimit"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/ws"
)

type sentEvent struct {
	room    string
	exclude string
	event   ws.Event
}

// recordingHub, yayınlanan event'leri kaydeden ws.Broadcaster.
type recordingHub struct {
	mu     sync.Mutex
	events []sentEvent
}

func (h *recordingHub) BroadcastToRoom(chatID string, event ws.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{room: chatID, event: event})
}

func (h *recordingHub) BroadcastToRoomExcept(chatID, excludeUserID string, event ws.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, sentEvent{room: chatID, exclude: excludeUserID, event: event})
}

func (h *recordingHub) BroadcastToUser(string, ws.Event) {}

func (h *recordingHub) last() sentEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

type env struct {
	auth  AuthService
	chats ChatService
	reads ReadStateService
	hub   *recordingHub

	customer, vendor, support, other *models.User
}

func newEnv(t *testing.T, limiter *ratelimit.Limiter) *env {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "svc.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := repository.NewSQLiteUserRepo(db.Conn)
	hub := &recordingHub{}
	e := &env{
		auth: NewAuthService(users, "test-secret", time.Hour, 4),
		hub:  hub,
	}
	e.chats = NewChatService(users, repository.NewSQLiteChatRepo(db.Conn), hub, limiter)
	e.reads = NewReadStateService(repository.NewSQLiteReadStateRepo(db.Conn), e.chats, hub)

	register := func(name string, role models.UserRole) *models.User {
		resp, err := e.auth.Register(context.Background(), &models.RegisterRequest{
			Username: name, Password: "password123", Role: role,
		})
		require.NoError(t, err)
		return resp.User
	}
	e.customer = register("ayse", models.RoleUser)
	e.vendor = register("flowers", models.RoleVendor)
	e.support = register("helpdesk", models.RoleSupport)
	e.other = register("mehmet", models.RoleUser)
	return e
}

func TestAuthLoginAndValidate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	_, err := e.auth.Login(ctx, &models.LoginRequest{Username: "ayse", Password: "wrong-pass"})
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	resp, err := e.auth.Login(ctx, &models.LoginRequest{Username: "ayse", Password: "password123"})
	require.NoError(t, err)
	assert.Empty(t, resp.User.PasswordHash)

	claims, err := e.auth.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, e.customer.ID, claims.UserID)
	assert.Equal(t, models.RoleUser, claims.Role)

	_, err = e.auth.ValidateAccessToken(resp.AccessToken + "x")
	assert.ErrorIs(t, err, pkg.ErrUnauthorized)

	me, err := e.auth.Me(ctx, e.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, "ayse", me.Username)
}

func TestStartSupportChatIsFindOrCreate(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	first, err := e.chats.Start(ctx, e.customer.ID, nil)
	require.NoError(t, err)
	second, err := e.chats.Start(ctx, e.customer.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.RoleSupport, first.Counterpart.Role)

	_, err = e.chats.Start(ctx, e.vendor.ID, nil)
	assert.ErrorIs(t, err, pkg.ErrForbidden)

	_, err = e.chats.Start(ctx, e.customer.ID, &e.other.ID)
	assert.ErrorIs(t, err, pkg.ErrBadRequest)
}

func TestSendMessageBroadcastsAndCountsUnread(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	chat, err := e.chats.Start(ctx, e.customer.ID, &e.vendor.ID)
	require.NoError(t, err)
	assert.Equal(t, e.vendor.ID, chat.Counterpart.ID)

	msg, err := e.chats.SendMessage(ctx, e.vendor.ID, chat.ID, &models.CreateMessageRequest{Content: "  merhaba  "})
	require.NoError(t, err)
	assert.Equal(t, "merhaba", msg.Content)

	sent := e.hub.last()
	assert.Equal(t, chat.ID, sent.room)
	assert.Equal(t, ws.OpNewMessage, sent.event.Op)
	var data ws.NewMessageData
	require.NoError(t, sent.event.Decode(&data))
	assert.Equal(t, msg.ID, data.Message.ID)

	list, err := e.chats.List(ctx, e.customer.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount["user"])
	assert.Equal(t, 0, list[0].UnreadCount["vendor"])
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, msg.ID, list[0].LastMessage.ID)

	vendorList, err := e.chats.List(ctx, e.vendor.ID)
	require.NoError(t, err)
	require.Len(t, vendorList, 1)
	assert.Equal(t, e.customer.ID, vendorList[0].Counterpart.ID)
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	chat, err := e.chats.Start(ctx, e.customer.ID, &e.vendor.ID)
	require.NoError(t, err)

	_, err = e.chats.SendMessage(ctx, e.other.ID, chat.ID, &models.CreateMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	_, err = e.chats.SendMessage(ctx, e.customer.ID, chat.ID, &models.CreateMessageRequest{Content: "   "})
	assert.ErrorIs(t, err, pkg.ErrBadRequest)

	assert.False(t, e.chats.CanAccessChat(ctx, e.support.ID, chat.ID))
	assert.True(t, e.chats.CanAccessChat(ctx, e.vendor.ID, chat.ID))
}

func TestSupportAgentsShareSupportChats(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	chat, err := e.chats.Start(ctx, e.customer.ID, nil)
	require.NoError(t, err)

	assert.True(t, e.chats.CanAccessChat(ctx, e.support.ID, chat.ID))
	_, err = e.chats.SendMessage(ctx, e.support.ID, chat.ID, &models.CreateMessageRequest{Content: "nasıl yardımcı olabilirim?"})
	require.NoError(t, err)

	list, err := e.chats.List(ctx, e.customer.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].UnreadCount["user"])
	_, hasSupportKey := list[0].UnreadCount["support"]
	assert.True(t, hasSupportKey)
}

func TestSendMessageRateLimited(t *testing.T) {
	limiter := ratelimit.New(2, time.Minute, time.Minute)
	defer limiter.Stop()

	e := newEnv(t, limiter)
	ctx := context.Background()

	chat, err := e.chats.Start(ctx, e.customer.ID, &e.vendor.ID)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := e.chats.SendMessage(ctx, e.customer.ID, chat.ID, &models.CreateMessageRequest{Content: "spam"})
		require.NoError(t, err)
	}
	_, err = e.chats.SendMessage(ctx, e.customer.ID, chat.ID, &models.CreateMessageRequest{Content: "spam"})
	assert.ErrorIs(t, err, pkg.ErrTooManyRequests)
}

func TestMarkReadClearsUnreadAndNotifies(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	chat, err := e.chats.Start(ctx, e.customer.ID, &e.vendor.ID)
	require.NoError(t, err)
	_, err = e.chats.SendMessage(ctx, e.vendor.ID, chat.ID, &models.CreateMessageRequest{Content: "teklif hazır"})
	require.NoError(t, err)

	require.NoError(t, e.reads.MarkRead(ctx, e.customer.ID, chat.ID))

	sent := e.hub.last()
	assert.Equal(t, ws.OpMessagesRead, sent.event.Op)
	assert.Equal(t, e.customer.ID, sent.exclude)

	list, err := e.chats.List(ctx, e.customer.ID)
	require.NoError(t, err)
	assert.Zero(t, list[0].UnreadCount["user"])

	assert.ErrorIs(t, e.reads.MarkRead(ctx, e.other.ID, chat.ID), pkg.ErrNotFound)
}
