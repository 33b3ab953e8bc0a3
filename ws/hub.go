package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
)

// Broadcaster, service katmanının live event yayınlamak için kullandığı interface.
//
// Service'ler Hub'ın concrete struct'ına değil bu interface'e bağımlıdır;
// testlerde kaydedici bir fake kullanılır.
type Broadcaster interface {
	BroadcastToRoom(chatID string, event Event)
	BroadcastToRoomExcept(chatID, excludeUserID string, event Event)
	BroadcastToUser(userID string, event Event)
}

// RoomAuthorizer, join_chat isteğinde kullanıcının o konuşmanın tarafı
// olup olmadığını doğrular. main.go'da chat service bu interface'i karşılar.
type RoomAuthorizer interface {
	CanAccessChat(ctx context.Context, userID, chatID string) bool
}

// AuthorizerFunc, düz fonksiyonu RoomAuthorizer'a çevirir.
// Hub ile chat service birbirine bağlı kurulurken main.go'da kullanılır.
type AuthorizerFunc func(ctx context.Context, userID, chatID string) bool

func (f AuthorizerFunc) CanAccessChat(ctx context.Context, userID, chatID string) bool {
	return f(ctx, userID, chatID)
}

// Hub, bağlantıları ve chat odalarını yöneten merkezi yapı (Observer pattern).
//
// clients: userID → Client set (bir kullanıcının birden fazla cihazı olabilir).
// rooms: chatID → Client set. Odalar bağlantı bazlıdır: kullanıcı konuşmayı
// hangi cihazda açtıysa event sadece o bağlantıya gider.
type Hub struct {
	clients map[string]map[*Client]bool
	rooms   map[string]map[*Client]bool
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	closeOnce  sync.Once

	seq atomic.Int64

	authorizer RoomAuthorizer
	metrics    *Metrics

	// onMarkRead, client "mark_read" gönderdiğinde çağrılır.
	// DB güncellemesi ve messages_read yayını main.go'daki callback'e aittir.
	onMarkRead func(userID, chatID string)
}

// NewHub, yeni bir Hub oluşturur. metrics nil olabilir.
func NewHub(authorizer RoomAuthorizer, metrics *Metrics) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		authorizer: authorizer,
		metrics:    metrics,
	}
}

// OnMarkRead, mark_read callback'ini kaydeder. Run'dan önce çağrılmalıdır.
func (h *Hub) OnMarkRead(fn func(userID, chatID string)) {
	h.onMarkRead = fn
}

// Run, Hub'ın ana event loop'u. main.go'da `go hub.Run()` ile başlatılır.
// Shutdown çağrılınca döner.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			return
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.userID]; !ok {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	h.metrics.connectionOpened()

	log.Printf("[ws] client connected: user=%s (total connections for user: %d)",
		client.userID, len(h.clients[client.userID]))
}

// removeClient, client'ı Hub'dan ve tüm odalardan çıkarır, send channel'ını kapatır.
func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	for chatID := range client.rooms {
		h.leaveRoomLocked(client, chatID)
	}
	close(client.send)
	h.metrics.connectionClosed()

	if len(clients) == 0 {
		delete(h.clients, client.userID)
		log.Printf("[ws] user fully disconnected: %s", client.userID)
	} else {
		log.Printf("[ws] client disconnected: user=%s (remaining: %d)", client.userID, len(clients))
	}
}

// joinRoom, yetki kontrolünden sonra client'ı odaya ekler.
func (h *Hub) joinRoom(client *Client, chatID string) bool {
	if h.authorizer != nil && !h.authorizer.CanAccessChat(context.Background(), client.userID, chatID) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Client bu arada kopmuş olabilir
	if _, ok := h.clients[client.userID][client]; !ok {
		return false
	}
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][client] = true
	client.rooms[chatID] = true
	return true
}

func (h *Hub) leaveRoom(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(client, chatID)
}

func (h *Hub) leaveRoomLocked(client *Client, chatID string) {
	delete(client.rooms, chatID)
	members, ok := h.rooms[chatID]
	if !ok {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, chatID)
	}
}

// RoomSize, odadaki bağlantı sayısını döner.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// marshal, event'e seq verip JSON'a çevirir.
func (h *Hub) marshal(event Event) ([]byte, bool) {
	event.Seq = h.seq.Add(1)
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[ws] failed to marshal %s event: %v", event.Op, err)
		return nil, false
	}
	h.metrics.eventSent(event.Op)
	return data, true
}

// deliver, RLock altında çağrılır. Buffer'ı dolu client'lar unregister edilir.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		go h.drop(client)
	}
}

// drop, yavaş client'ı Hub loop'u üzerinden çıkarır.
func (h *Hub) drop(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToRoom, odadaki tüm bağlantılara event gönderir.
func (h *Hub) BroadcastToRoom(chatID string, event Event) {
	h.BroadcastToRoomExcept(chatID, "", event)
}

// BroadcastToRoomExcept, belirli bir kullanıcı hariç odaya event gönderir.
// Typing event'inde gönderen kendi event'ini almaz.
func (h *Hub) BroadcastToRoomExcept(chatID, excludeUserID string, event Event) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.rooms[chatID] {
		if excludeUserID != "" && client.userID == excludeUserID {
			continue
		}
		h.deliver(client, data)
	}
}

// BroadcastToUser, kullanıcının tüm bağlantılarına event gönderir.
func (h *Hub) BroadcastToUser(userID string, event Event) {
	data, ok := h.marshal(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[userID] {
		h.deliver(client, data)
	}
}

// GetOnlineUserIDs, bağlı olan tüm kullanıcı ID'lerini döner.
func (h *Hub) GetOnlineUserIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

// Shutdown, tüm bağlantıları kapatır ve Run loop'unu durdurur.
func (h *Hub) Shutdown() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		defer h.mu.Unlock()

		for _, clients := range h.clients {
			for client := range clients {
				close(client.send)
			}
		}
		h.clients = make(map[string]map[*Client]bool)
		h.rooms = make(map[string]map[*Client]bool)
		log.Println("[ws] hub shut down, all connections closed")
	})
}
