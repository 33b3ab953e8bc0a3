package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
)

// sqliteChatRepo, ChatRepository'nin SQLite implementasyonu.
// CreateMessage transaction açtığı için TxQuerier yerine *sql.DB tutar.
type sqliteChatRepo struct {
	db *sql.DB
}

// NewSQLiteChatRepo, constructor; interface döner.
func NewSQLiteChatRepo(db *sql.DB) ChatRepository {
	return &sqliteChatRepo{db: db}
}

const chatColumns = `id, user_id, vendor_id, created_at, last_message_at`

func (r *sqliteChatRepo) GetByID(ctx context.Context, id string) (*models.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
	return scanChat(row)
}

func (r *sqliteChatRepo) Find(ctx context.Context, userID string, vendorID *string) (*models.Chat, error) {
	var row *sql.Row
	if vendorID == nil {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+chatColumns+` FROM chats WHERE user_id = ? AND vendor_id IS NULL`, userID)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+chatColumns+` FROM chats WHERE user_id = ? AND vendor_id = ?`, userID, *vendorID)
	}
	return scanChat(row)
}

func (r *sqliteChatRepo) Create(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	chat.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, vendor_id, created_at)
		VALUES (?, ?, ?, ?)`,
		chat.ID, chat.UserID, chat.VendorID, chat.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: chat already exists", pkg.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// ListOverviews tek sorguda konuşma, iki taraf, son mesaj ve iki yönlü
// okunmamış sayıyı getirir.
//
// Okunmamış sayılar:
//   - customer: müşteri dışındakilerin, müşterinin watermark'ından sonraki mesajları
//   - other: müşterinin, karşı tarafın en ileri watermark'ından sonraki mesajları
//
// Support konuşmasında karşı taraf birden fazla support hesabı olabilir;
// herhangi birinin okuması yeterli sayılır (MAX).
func (r *sqliteChatRepo) ListOverviews(ctx context.Context, viewer *models.User) ([]models.ChatOverview, error) {
	var where string
	switch viewer.Role {
	case models.RoleVendor:
		where = `c.vendor_id = ?`
	case models.RoleSupport:
		where = `c.vendor_id IS NULL AND ? != ''`
	default:
		where = `c.user_id = ?`
	}

	query := `
		SELECT c.id, c.user_id, c.vendor_id, c.created_at, c.last_message_at,
		       cu.id, cu.username, cu.display_name, cu.avatar_url, cu.role, cu.created_at,
		       vu.id, vu.username, vu.display_name, vu.avatar_url, vu.role,
		       lm.id, lm.sender_id, lm.content, lm.created_at,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.sender_id != c.user_id
		          AND m.seq > COALESCE((SELECT last_read_seq FROM read_states
		                                WHERE chat_id = c.id AND user_id = c.user_id), 0)
		       ) AS customer_unread,
		       (SELECT COUNT(*) FROM messages m
		        WHERE m.chat_id = c.id AND m.sender_id = c.user_id
		          AND m.seq > COALESCE((SELECT MAX(last_read_seq) FROM read_states
		                                WHERE chat_id = c.id AND user_id != c.user_id), 0)
		       ) AS other_unread
		FROM chats c
		INNER JOIN users cu ON cu.id = c.user_id
		LEFT JOIN users vu ON vu.id = c.vendor_id
		LEFT JOIN messages lm ON lm.id = (
			SELECT id FROM messages WHERE chat_id = c.id ORDER BY seq DESC LIMIT 1
		)
		WHERE ` + where + `
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`

	rows, err := r.db.QueryContext(ctx, query, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	overviews := []models.ChatOverview{}
	for rows.Next() {
		var (
			ov models.ChatOverview

			vID, vUsername, vRole     *string
			vDisplayName, vAvatarURL  *string
			lmID, lmSender, lmContent *string
			lmCreatedAt               *time.Time
		)

		if err := rows.Scan(
			&ov.Chat.ID, &ov.Chat.UserID, &ov.Chat.VendorID, &ov.Chat.CreatedAt, &ov.Chat.LastMessageAt,
			&ov.Customer.ID, &ov.Customer.Username, &ov.Customer.DisplayName, &ov.Customer.AvatarURL,
			&ov.Customer.Role, &ov.Customer.CreatedAt,
			&vID, &vUsername, &vDisplayName, &vAvatarURL, &vRole,
			&lmID, &lmSender, &lmContent, &lmCreatedAt,
			&ov.CustomerUnread, &ov.OtherUnread,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chat overview: %w", err)
		}

		if vID != nil {
			ov.Vendor = &models.User{
				ID:          *vID,
				Username:    deref(vUsername),
				DisplayName: vDisplayName,
				AvatarURL:   vAvatarURL,
				Role:        models.UserRole(deref(vRole)),
			}
		}
		if lmID != nil {
			ov.LastMessage = &models.Message{
				ID:       *lmID,
				ChatID:   ov.Chat.ID,
				SenderID: deref(lmSender),
				Content:  deref(lmContent),
			}
			if lmCreatedAt != nil {
				ov.LastMessage.CreatedAt = *lmCreatedAt
			}
		}

		overviews = append(overviews, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat rows: %w", err)
	}
	return overviews, nil
}

func (r *sqliteChatRepo) GetMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, content, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY seq ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return messages, nil
}

func (r *sqliteChatRepo) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = time.Now().UTC()

	return database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, sender_id, content, created_at, seq)
			VALUES (?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM messages))`,
			msg.ID, msg.ChatID, msg.SenderID, msg.Content, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to create message: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE chats SET last_message_at = ? WHERE id = ?`, msg.CreatedAt, msg.ChatID,
		); err != nil {
			return fmt.Errorf("failed to touch chat: %w", err)
		}

		// Kendi mesajı gönderen için okunmamış sayılmaz
		return NewSQLiteReadStateRepo(tx).MarkLatest(ctx, msg.SenderID, msg.ChatID)
	})
}

func scanChat(row rowScanner) (*models.Chat, error) {
	chat := &models.Chat{}
	err := row.Scan(&chat.ID, &chat.UserID, &chat.VendorID, &chat.CreatedAt, &chat.LastMessageAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}
	return chat, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
