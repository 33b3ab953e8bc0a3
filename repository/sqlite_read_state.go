package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/akinalp/eventchat/database"
	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
)

// sqliteReadStateRepo, ReadStateRepository'nin SQLite implementasyonu.
// TxQuerier aldığı için CreateMessage transaction'ı içinde de kullanılır.
type sqliteReadStateRepo struct {
	db database.TxQuerier
}

// NewSQLiteReadStateRepo, constructor; interface döner.
func NewSQLiteReadStateRepo(db database.TxQuerier) ReadStateRepository {
	return &sqliteReadStateRepo{db: db}
}

// MarkLatest, upsert pattern: PRIMARY KEY (user_id, chat_id) çakışırsa
// satır güncellenir. Watermark geri gitmez.
func (r *sqliteReadStateRepo) MarkLatest(ctx context.Context, userID, chatID string) error {
	query := `
		INSERT INTO read_states (user_id, chat_id, last_read_seq, last_read_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) FROM messages WHERE chat_id = ?), ?)
		ON CONFLICT(user_id, chat_id)
		DO UPDATE SET last_read_seq = MAX(last_read_seq, excluded.last_read_seq),
		              last_read_at = excluded.last_read_at`

	if _, err := r.db.ExecContext(ctx, query, userID, chatID, chatID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to upsert read state: %w", err)
	}
	return nil
}

func (r *sqliteReadStateRepo) Get(ctx context.Context, userID, chatID string) (*models.ReadState, error) {
	rs := &models.ReadState{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, chat_id, last_read_seq, last_read_at
		FROM read_states WHERE user_id = ? AND chat_id = ?`, userID, chatID,
	).Scan(&rs.UserID, &rs.ChatID, &rs.LastReadSeq, &rs.LastReadAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkg.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get read state: %w", err)
	}
	return rs, nil
}
