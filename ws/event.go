// Package ws, live channel'ın wire formatını ve reference backend'in
// WebSocket hub'ını barındırır.
//
// Mimari:
//   - Hub: tüm bağlantıları ve chat odalarını (room) yöneten merkezi yapı
//   - Client: tek bir WebSocket bağlantısı
//   - Event: client-server arası iletilen zarf {op, d, seq}
//
// Event akışı:
//  1. Kullanıcı mesaj gönderir: HTTP POST, service, DB kayıt
//  2. Service, Hub.BroadcastToRoom ile "new_message" yayınlar
//  3. Odaya katılmış her client'ın WritePump'ı event'i yazar
//  4. Client core'daki live.Manager event'i decode edip odanın
//     aboneleri olan pipeline'a iletir
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/akinalp/eventchat/models"
)

// Event, WebSocket üzerinden iletilen bir mesaj.
//
// Op: event türü ("new_message", "typing" ...).
// Data: event'e özgü payload.
// Seq: server'ın her outbound event'e verdiği artan sayı. Client boşluk
// tespiti için takip eder; client'tan gelen event'lerde boştur.
type Event struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"d,omitempty"`
	Seq  int64           `json:"seq,omitempty"`
}

// NewEvent, payload'ı JSON'a çevirip Event oluşturur.
// payload nil ise Data boş kalır.
func NewEvent(op string, payload any) (Event, error) {
	ev := Event{Op: op}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", op, err)
	}
	ev.Data = raw
	return ev, nil
}

// Decode, Data alanını verilen hedefe parse eder.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Op)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Op, err)
	}
	return nil
}

// Client → Server operasyonları
const (
	OpHeartbeat = "heartbeat"  // 30sn'de bir, "hâlâ bağlıyım"
	OpJoinChat  = "join_chat"  // Odaya katıl
	OpLeaveChat = "leave_chat" // Odadan ayrıl
	OpTyping    = "typing"     // Yazıyor / yazmayı bıraktı
	OpMarkRead  = "mark_read"  // Konuşmayı okundu işaretle
)

// Server → Client operasyonları
const (
	OpHeartbeatAck = "heartbeat_ack"
	OpNewMessage   = "new_message"
	OpUserTyping   = "user_typing"
	OpMessagesRead = "messages_read"
	OpError        = "error"
)

// ChatRef, sadece chat id taşıyan payload (join_chat, leave_chat, mark_read).
type ChatRef struct {
	ChatID string `json:"chatId"`
}

// TypingData, client'ın gönderdiği typing payload'ı.
type TypingData struct {
	ChatID   string `json:"chatId"`
	IsTyping bool   `json:"isTyping"`
}

// NewMessageData, new_message payload'ı.
type NewMessageData struct {
	ChatID  string         `json:"chatId"`
	Message models.Message `json:"message"`
}

// UserTypingData, user_typing payload'ı. ChatID eski server'larda boş
// gelebilir; bu durumda client event'i açık olan tüm odalara dağıtır.
type UserTypingData struct {
	ChatID   string `json:"chatId,omitempty"`
	UserID   string `json:"userId"`
	IsTyping bool   `json:"isTyping"`
}

// MessagesReadData, messages_read payload'ı.
type MessagesReadData struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId,omitempty"`
}

// ErrorData, server'ın reddettiği client operasyonları için.
type ErrorData struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}
