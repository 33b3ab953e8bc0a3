package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxMessageLength, bir mesajın rune cinsinden üst sınırı.
const MaxMessageLength = 2000

// Message, bir konuşmadaki mesajın wire/DB şekli.
//
// Gönderen iki şekilde gelebilir: düz SenderID alanı veya gömülü Sender
// objesi. AuthorID() her ikisini de tek bir id'ye indirger.
type Message struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	SenderID  string       `json:"senderId,omitempty"`
	Sender    *Participant `json:"sender,omitempty"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
}

// AuthorID, mesajı gönderen kullanıcının id'sini döner.
func (m *Message) AuthorID() string {
	if m.SenderID != "" {
		return m.SenderID
	}
	if m.Sender != nil {
		return m.Sender.ID
	}
	return ""
}

// CreateMessageRequest, POST /chats/{id}/messages body'si.
type CreateMessageRequest struct {
	Content string `json:"content"`
}

// Validate, içerik 1-2000 karakter arası olmalı.
func (r *CreateMessageRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	contentLen := utf8.RuneCountInString(r.Content)
	if contentLen < 1 {
		return fmt.Errorf("message content is required")
	}
	if contentLen > MaxMessageLength {
		return fmt.Errorf("message content must be at most %d characters", MaxMessageLength)
	}
	return nil
}
