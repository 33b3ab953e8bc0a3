package repository

import (
	"context"

	"github.com/akinalp/eventchat/models"
)

// ChatRepository, konuşma ve mesaj veritabanı işlemleri için interface.
//
// Mesajlar konuşmadan bağımsız yaşamaz; bu yüzden ayrı bir MessageRepository
// yerine aynı interface'te tutulur.
type ChatRepository interface {
	GetByID(ctx context.Context, id string) (*models.Chat, error)
	// Find, müşteri ile vendor arasındaki konuşmayı bulur. vendorID nil ise
	// müşterinin support konuşması aranır.
	Find(ctx context.Context, userID string, vendorID *string) (*models.Chat, error)
	Create(ctx context.Context, chat *models.Chat) error
	// ListOverviews, viewer'ın görebileceği konuşmaları son aktiviteye göre
	// (en yeni önce) döner.
	ListOverviews(ctx context.Context, viewer *models.User) ([]models.ChatOverview, error)

	GetMessages(ctx context.Context, chatID string) ([]models.Message, error)
	// CreateMessage, mesajı ekler, konuşmanın last_message_at'ini ve
	// gönderenin read state'ini tek transaction'da günceller.
	CreateMessage(ctx context.Context, msg *models.Message) error
}

// ReadStateRepository, okuma watermark'ı işlemleri için interface.
type ReadStateRepository interface {
	// MarkLatest, kullanıcının watermark'ını konuşmanın son mesajına çeker.
	MarkLatest(ctx context.Context, userID, chatID string) error
	Get(ctx context.Context, userID, chatID string) (*models.ReadState, error)
}
