package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket bağlantı sabitleri
const (
	// writeWait: bir mesajı yazmak için maksimum bekleme süresi.
	writeWait = 10 * time.Second

	// pongWait: client heartbeat'i için beklenen maksimum süre.
	// 3 heartbeat kaçırma = 30s × 3 = 90s.
	pongWait = 90 * time.Second

	// maxMessageSize: client'ın gönderebileceği maksimum mesaj boyutu (byte).
	// Mesaj içeriği HTTP ile gider; WS'ten sadece küçük kontrol event'leri gelir.
	maxMessageSize = 4096

	// sendBufferSize: her client'ın send channel buffer'ı.
	sendBufferSize = 256
)

// Client, tek bir WebSocket bağlantısı.
//
// Her bağlantı için iki goroutine:
//   - ReadPump: client'tan gelen event'leri okur
//   - WritePump: send channel'ındaki event'leri yazar
//
// gorilla/websocket aynı anda tek okuyucu ve tek yazıcı destekler.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	mu     sync.Mutex // conn yazmalarını korur

	// rooms, Hub.mu altında okunur/yazılır.
	rooms map[string]bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBufferSize),
		rooms:  make(map[string]bool),
	}
}

// ReadPump, bağlantı kapanana kadar gelen event'leri işler.
// Çıkışta client Hub'dan düşürülür.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] unexpected close for user %s: %v", c.userID, err)
			}
			return
		}

		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			log.Printf("[ws] invalid message from user %s: %v", c.userID, err)
			continue
		}

		c.handleEvent(event)
	}
}

// handleEvent, client'dan gelen event'i türüne göre işler.
func (c *Client) handleEvent(event Event) {
	switch event.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("[ws] failed to set read deadline for user %s: %v", c.userID, err)
			return
		}
		c.sendEvent(Event{Op: OpHeartbeatAck})

	case OpJoinChat:
		var ref ChatRef
		if err := event.Decode(&ref); err != nil || ref.ChatID == "" {
			return
		}
		if !c.hub.joinRoom(c, ref.ChatID) {
			log.Printf("[ws] join_chat denied: user=%s chat=%s", c.userID, ref.ChatID)
			c.sendError(OpJoinChat, "cannot join chat")
		}

	case OpLeaveChat:
		var ref ChatRef
		if err := event.Decode(&ref); err != nil || ref.ChatID == "" {
			return
		}
		c.hub.leaveRoom(c, ref.ChatID)

	case OpTyping:
		c.handleTyping(event)

	case OpMarkRead:
		var ref ChatRef
		if err := event.Decode(&ref); err != nil || ref.ChatID == "" {
			return
		}
		// Callback DB'ye yazar; Hub mutex'i ile çakışmaması için ayrı goroutine.
		if c.hub.onMarkRead != nil && c.inRoom(ref.ChatID) {
			go c.hub.onMarkRead(c.userID, ref.ChatID)
		}

	default:
		log.Printf("[ws] unknown op from user %s: %s", c.userID, event.Op)
	}
}

// handleTyping, typing event'ini odadaki diğer kullanıcılara iletir.
// Sadece odaya katılmış bağlantılar yazıyor bilgisi yayınlayabilir.
func (c *Client) handleTyping(event Event) {
	var typing TypingData
	if err := event.Decode(&typing); err != nil || typing.ChatID == "" {
		return
	}
	if !c.inRoom(typing.ChatID) {
		return
	}

	out, err := NewEvent(OpUserTyping, UserTypingData{
		ChatID:   typing.ChatID,
		UserID:   c.userID,
		IsTyping: typing.IsTyping,
	})
	if err != nil {
		return
	}
	c.hub.BroadcastToRoomExcept(typing.ChatID, c.userID, out)
}

func (c *Client) inRoom(chatID string) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.rooms[chatID]
}

func (c *Client) sendError(op, message string) {
	ev, err := NewEvent(OpError, ErrorData{Op: op, Message: message})
	if err != nil {
		return
	}
	c.sendEvent(ev)
}

// sendEvent, sadece bu client'a event gönderir.
func (c *Client) sendEvent(event Event) {
	data, ok := c.hub.marshal(event)
	if !ok {
		return
	}

	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	// Hub client'ı çıkardıysa send kapalıdır
	if _, ok := c.hub.clients[c.userID][c]; !ok {
		return
	}
	c.hub.deliver(c, data)
}

// WritePump, send channel'ındaki mesajları bağlantıya yazar.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for message := range c.send {
		if err := c.writeMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	// Channel kapatıldı: Hub client'ı çıkardı
	c.writeMessage(websocket.CloseMessage, nil)
}

func (c *Client) writeMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
