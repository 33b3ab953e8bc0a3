package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
)

type fixture struct {
	users UserRepository
	chats ChatRepository
	reads ReadStateRepository

	customer, vendor, support *models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "chat.db"), database.Migrations())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	f := &fixture{
		users: NewSQLiteUserRepo(db.Conn),
		chats: NewSQLiteChatRepo(db.Conn),
		reads: NewSQLiteReadStateRepo(db.Conn),
	}

	ctx := context.Background()
	mk := func(name string, role models.UserRole) *models.User {
		u := &models.User{Username: name, Role: role, PasswordHash: "x"}
		require.NoError(t, f.users.Create(ctx, u))
		return u
	}
	f.customer = mk("ayse", models.RoleUser)
	f.vendor = mk("flowers", models.RoleVendor)
	f.support = mk("helpdesk", models.RoleSupport)
	return f
}

func TestUserRepoDuplicateUsername(t *testing.T) {
	f := newFixture(t)

	err := f.users.Create(context.Background(), &models.User{Username: "ayse", PasswordHash: "x"})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	got, err := f.users.GetByUsername(context.Background(), "flowers")
	require.NoError(t, err)
	assert.Equal(t, models.RoleVendor, got.Role)

	_, err = f.users.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, pkg.ErrNotFound)
}

func TestChatRepoSupportChatIsUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.chats.Find(ctx, f.customer.ID, nil)
	assert.ErrorIs(t, err, pkg.ErrNotFound)

	chat := &models.Chat{UserID: f.customer.ID}
	require.NoError(t, f.chats.Create(ctx, chat))

	err = f.chats.Create(ctx, &models.Chat{UserID: f.customer.ID})
	assert.ErrorIs(t, err, pkg.ErrAlreadyExists)

	found, err := f.chats.Find(ctx, f.customer.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, found.ID)
	assert.True(t, found.IsSupport())
}

func TestChatRepoMessagesAndUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat := &models.Chat{UserID: f.customer.ID, VendorID: &f.vendor.ID}
	require.NoError(t, f.chats.Create(ctx, chat))

	send := func(sender, content string) models.Message {
		m := models.Message{ChatID: chat.ID, SenderID: sender, Content: content}
		require.NoError(t, f.chats.CreateMessage(ctx, &m))
		return m
	}
	send(f.customer.ID, "merhaba")
	send(f.vendor.ID, "buyrun")
	last := send(f.vendor.ID, "ne lazım?")

	msgs, err := f.chats.GetMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"merhaba", "buyrun", "ne lazım?"},
		[]string{msgs[0].Content, msgs[1].Content, msgs[2].Content})

	list, err := f.chats.ListOverviews(ctx, f.customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	ov := list[0]
	assert.Equal(t, 2, ov.CustomerUnread)
	assert.Equal(t, 0, ov.OtherUnread) // vendor kendi mesajıyla okumuş sayılır
	require.NotNil(t, ov.Vendor)
	assert.Equal(t, f.vendor.ID, ov.Vendor.ID)
	require.NotNil(t, ov.LastMessage)
	assert.Equal(t, last.ID, ov.LastMessage.ID)
	assert.NotNil(t, ov.Chat.LastMessageAt)

	require.NoError(t, f.reads.MarkLatest(ctx, f.customer.ID, chat.ID))
	list, err = f.chats.ListOverviews(ctx, f.customer)
	require.NoError(t, err)
	assert.Zero(t, list[0].CustomerUnread)

	rs, err := f.reads.Get(ctx, f.customer.ID, chat.ID)
	require.NoError(t, err)
	assert.Positive(t, rs.LastReadSeq)
}

func TestChatRepoVisibilityByRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.chats.Create(ctx, &models.Chat{UserID: f.customer.ID, VendorID: &f.vendor.ID}))
	require.NoError(t, f.chats.Create(ctx, &models.Chat{UserID: f.customer.ID}))

	forCustomer, err := f.chats.ListOverviews(ctx, f.customer)
	require.NoError(t, err)
	assert.Len(t, forCustomer, 2)

	forVendor, err := f.chats.ListOverviews(ctx, f.vendor)
	require.NoError(t, err)
	require.Len(t, forVendor, 1)
	assert.False(t, forVendor[0].Chat.IsSupport())

	forSupport, err := f.chats.ListOverviews(ctx, f.support)
	require.NoError(t, err)
	require.Len(t, forSupport, 1)
	assert.True(t, forSupport[0].Chat.IsSupport())
	assert.Nil(t, forSupport[0].Vendor)
}
