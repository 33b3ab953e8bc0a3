package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/akinalp/eventchat/models"
	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/pkg/ratelimit"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/ws"
)

// supportParticipant, müşteri tarafında support konuşmasının karşı tarafı.
// Support tek bir hesap değil, bir ekiptir.
var supportParticipant = models.Participant{
	ID:   "support",
	Name: "Support",
	Role: models.RoleSupport,
}

// ChatService, konuşma ve mesaj iş mantığı.
//
// ws.Hub oda yetkisi için CanAccessChat'i kullanır (ws.RoomAuthorizer).
type ChatService interface {
	List(ctx context.Context, userID string) ([]models.ChatListItem, error)
	Start(ctx context.Context, userID string, vendorID *string) (*models.ChatDetail, error)
	Get(ctx context.Context, userID, chatID string) (*models.ChatDetail, error)
	SendMessage(ctx context.Context, userID, chatID string, req *models.CreateMessageRequest) (*models.Message, error)
	CanAccessChat(ctx context.Context, userID, chatID string) bool
}

type chatService struct {
	userRepo repository.UserRepository
	chatRepo repository.ChatRepository
	hub      ws.Broadcaster
	limiter  *ratelimit.Limiter
}

// NewChatService, constructor. limiter nil ise mesaj hızı sınırlanmaz.
func NewChatService(
	userRepo repository.UserRepository,
	chatRepo repository.ChatRepository,
	hub ws.Broadcaster,
	limiter *ratelimit.Limiter,
) ChatService {
	return &chatService{
		userRepo: userRepo,
		chatRepo: chatRepo,
		hub:      hub,
		limiter:  limiter,
	}
}

func (s *chatService) List(ctx context.Context, userID string) ([]models.ChatListItem, error) {
	viewer, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	overviews, err := s.chatRepo.ListOverviews(ctx, viewer)
	if err != nil {
		return nil, err
	}

	items := make([]models.ChatListItem, 0, len(overviews))
	for _, ov := range overviews {
		items = append(items, toListItem(viewer, ov))
	}
	return items, nil
}

// Start, müşteri için konuşmayı bulur veya oluşturur.
// vendorID nil ise support konuşması; bir müşterinin en fazla bir tane olur.
func (s *chatService) Start(ctx context.Context, userID string, vendorID *string) (*models.ChatDetail, error) {
	viewer, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if viewer.Role != models.RoleUser {
		return nil, fmt.Errorf("%w: only customers can start chats", pkg.ErrForbidden)
	}

	if vendorID != nil {
		vendor, err := s.userRepo.GetByID(ctx, *vendorID)
		if err != nil {
			if errors.Is(err, pkg.ErrNotFound) {
				return nil, fmt.Errorf("%w: vendor not found", pkg.ErrNotFound)
			}
			return nil, err
		}
		if vendor.Role != models.RoleVendor {
			return nil, fmt.Errorf("%w: target is not a vendor", pkg.ErrBadRequest)
		}
	}

	chat, err := s.chatRepo.Find(ctx, userID, vendorID)
	if errors.Is(err, pkg.ErrNotFound) {
		chat = &models.Chat{UserID: userID, VendorID: vendorID}
		err = s.chatRepo.Create(ctx, chat)
		if errors.Is(err, pkg.ErrAlreadyExists) {
			// Eşzamanlı iki Start: diğeri kazandı, onunkini kullan
			chat, err = s.chatRepo.Find(ctx, userID, vendorID)
		}
	}
	if err != nil {
		return nil, err
	}

	return s.detail(ctx, viewer, chat)
}

func (s *chatService) Get(ctx context.Context, userID, chatID string) (*models.ChatDetail, error) {
	viewer, chat, err := s.authorize(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, viewer, chat)
}

// SendMessage, mesajı kaydeder ve odaya new_message yayınlar.
// Gönderen de odadaysa echo'yu alır; client id ile tekilleştirir.
func (s *chatService) SendMessage(ctx context.Context, userID, chatID string, req *models.CreateMessageRequest) (*models.Message, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", pkg.ErrBadRequest, err.Error())
	}

	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(userID); !ok {
			return nil, fmt.Errorf("%w: slow down, retry in %s", pkg.ErrTooManyRequests, retryAfter.Round(time.Second))
		}
	}

	_, chat, err := s.authorize(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ChatID:   chat.ID,
		SenderID: userID,
		Content:  req.Content,
	}
	if err := s.chatRepo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}

	event, err := ws.NewEvent(ws.OpNewMessage, ws.NewMessageData{ChatID: chat.ID, Message: *msg})
	if err != nil {
		log.Printf("[chat] failed to build new_message event: %v", err)
		return msg, nil
	}
	s.hub.BroadcastToRoom(chat.ID, event)

	return msg, nil
}

func (s *chatService) CanAccessChat(ctx context.Context, userID, chatID string) bool {
	_, _, err := s.authorize(ctx, userID, chatID)
	return err == nil
}

// authorize, kullanıcının konuşmanın tarafı olduğunu doğrular.
// Yetkisiz erişimde konuşmanın varlığını sızdırmamak için ErrNotFound döner.
func (s *chatService) authorize(ctx context.Context, userID, chatID string) (*models.User, *models.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	viewer, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	if chat.HasMember(userID) || (chat.IsSupport() && viewer.Role == models.RoleSupport) {
		return viewer, chat, nil
	}
	return nil, nil, fmt.Errorf("%w: chat not found", pkg.ErrNotFound)
}

func (s *chatService) detail(ctx context.Context, viewer *models.User, chat *models.Chat) (*models.ChatDetail, error) {
	messages, err := s.chatRepo.GetMessages(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	counterpart, err := s.counterpart(ctx, viewer, chat)
	if err != nil {
		return nil, err
	}

	return &models.ChatDetail{
		ID:          chat.ID,
		Counterpart: counterpart,
		Messages:    messages,
		CreatedAt:   chat.CreatedAt,
	}, nil
}

func (s *chatService) counterpart(ctx context.Context, viewer *models.User, chat *models.Chat) (models.Participant, error) {
	if viewer.ID == chat.UserID {
		if chat.IsSupport() {
			return supportParticipant, nil
		}
		vendor, err := s.userRepo.GetByID(ctx, *chat.VendorID)
		if err != nil {
			return models.Participant{}, err
		}
		return vendor.ToParticipant(), nil
	}

	customer, err := s.userRepo.GetByID(ctx, chat.UserID)
	if err != nil {
		return models.Participant{}, err
	}
	return customer.ToParticipant(), nil
}

// toListItem, ham satırı izleyene göre şekillendirir. Okunmamış sayılar rol
// anahtarlı döner: {"user": n, "vendor": m} veya {"user": n, "support": m}.
func toListItem(viewer *models.User, ov models.ChatOverview) models.ChatListItem {
	otherRole := models.RoleVendor
	if ov.Chat.IsSupport() {
		otherRole = models.RoleSupport
	}

	item := models.ChatListItem{
		ID:            ov.Chat.ID,
		LastMessage:   ov.LastMessage,
		LastMessageAt: ov.Chat.LastMessageAt,
		UnreadCount: map[string]int{
			string(models.RoleUser): ov.CustomerUnread,
			string(otherRole):       ov.OtherUnread,
		},
		CreatedAt: ov.Chat.CreatedAt,
	}

	switch {
	case viewer.ID != ov.Chat.UserID:
		item.Counterpart = ov.Customer.ToParticipant()
	case ov.Vendor != nil:
		item.Counterpart = ov.Vendor.ToParticipant()
	default:
		item.Counterpart = supportParticipant
	}
	return item
}
