package services

import (
	"context"
	"fmt"
	"log"

	"github.com/akinalp/eventchat/pkg"
	"github.com/akinalp/eventchat/repository"
	"github.com/akinalp/eventchat/ws"
)

// ReadStateService, okuma watermark'ı iş mantığı.
//
// MarkRead iki yoldan çağrılır: PUT /chats/{id}/read ve WS mark_read op'u
// (hub.OnMarkRead callback'i).
type ReadStateService interface {
	MarkRead(ctx context.Context, userID, chatID string) error
}

type readStateService struct {
	readStateRepo repository.ReadStateRepository
	chats         ChatService
	hub           ws.Broadcaster
}

func NewReadStateService(
	readStateRepo repository.ReadStateRepository,
	chats ChatService,
	hub ws.Broadcaster,
) ReadStateService {
	return &readStateService{
		readStateRepo: readStateRepo,
		chats:         chats,
		hub:           hub,
	}
}

// MarkRead, watermark'ı son mesaja çeker ve odadaki diğer tarafa
// messages_read yayınlar.
func (s *readStateService) MarkRead(ctx context.Context, userID, chatID string) error {
	if !s.chats.CanAccessChat(ctx, userID, chatID) {
		return fmt.Errorf("%w: chat not found", pkg.ErrNotFound)
	}

	if err := s.readStateRepo.MarkLatest(ctx, userID, chatID); err != nil {
		return err
	}

	event, err := ws.NewEvent(ws.OpMessagesRead, ws.MessagesReadData{ChatID: chatID, UserID: userID})
	if err != nil {
		log.Printf("[read_state] failed to build messages_read event: %v", err)
		return nil
	}
	s.hub.BroadcastToRoomExcept(chatID, userID, event)
	return nil
}
