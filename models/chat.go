package models

import (
	"time"
)

// Chat, bir kullanıcı ile bir vendor (veya platform support) arasındaki
// konuşmanın DB satırı.
//
// VendorID nil ise konuşma support konuşmasıdır. Bir kullanıcının en fazla
// bir support konuşması olur (partial UNIQUE index).
type Chat struct {
	ID            string     `json:"id"`
	UserID        string     `json:"userId"`
	VendorID      *string    `json:"vendorId"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastMessageAt *time.Time `json:"lastMessageAt"`
}

// IsSupport, konuşmanın support konuşması olup olmadığını döner.
func (c *Chat) IsSupport() bool {
	return c.VendorID == nil
}

// HasMember, userID'nin bu konuşmanın tarafı olup olmadığını döner.
// Support konuşmalarında support rolündeki tüm hesaplar taraf sayılır,
// bu kontrol service katmanında rol ile birlikte yapılır.
func (c *Chat) HasMember(userID string) bool {
	if c.UserID == userID {
		return true
	}
	return c.VendorID != nil && *c.VendorID == userID
}

// ChatListItem, GET /chats yanıtındaki tek bir konuşma.
//
// Son mesaj iki şekilde gelebilir:
//   - gömülü LastMessage objesi
//   - düz LastMessagePreview + LastMessageAt çifti (eski kayıtlar)
//
// Client tarafındaki aggregator her iki şekli aynı summary'e normalize eder.
type ChatListItem struct {
	ID                 string         `json:"id"`
	Counterpart        Participant    `json:"counterpart"`
	LastMessage        *Message       `json:"lastMessage,omitempty"`
	LastMessagePreview *string        `json:"lastMessagePreview,omitempty"`
	LastMessageAt      *time.Time     `json:"lastMessageAt,omitempty"`
	UnreadCount        map[string]int `json:"unreadCount"`
	CreatedAt          time.Time      `json:"createdAt"`
}

// ChatDetail, GET /chats/{id} yanıtı: konuşma + sıralı mesaj dizisi.
type ChatDetail struct {
	ID          string      `json:"id"`
	Counterpart Participant `json:"counterpart"`
	Messages    []Message   `json:"messages"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// StartChatRequest, POST /chats/start body'si.
// VendorID nil (JSON null) ise support konuşması bulunur veya oluşturulur.
type StartChatRequest struct {
	VendorID *string `json:"vendorId"`
}

// ChatOverview, liste sorgusunun ham satırı: konuşma, iki taraf, son mesaj
// ve her iki taraf için okunmamış sayılar. Service katmanı bunu izleyen
// kullanıcıya göre ChatListItem'a çevirir.
type ChatOverview struct {
	Chat           Chat
	Customer       User
	Vendor         *User // support konuşmalarında nil
	LastMessage    *Message
	CustomerUnread int
	OtherUnread    int
}
